package handler

import (
	"context"
	"net/http"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/analysis"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/response"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
)

// RunService is the part of the analysis service the run handlers use.
type RunService interface {
	SubmitRun(ctx context.Context, orgID, projectID uuid.UUID, kind, createdBy string) (*models.Run, error)
	GetLatestRun(ctx context.Context, orgID, projectID uuid.UUID, kind string) (*analysis.LatestRun, error)
	GetRun(ctx context.Context, orgID, runID uuid.UUID) (*models.Run, error)
	GetRunStatus(ctx context.Context, orgID, runID uuid.UUID) (string, error)
}

type submitRunResponse struct {
	RunID  uuid.UUID `json:"run_id"`
	Kind   string    `json:"kind"`
	Status string    `json:"status"`
}

type runStatusResponse struct {
	RunID  uuid.UUID `json:"run_id"`
	Status string    `json:"status"`
}

// NewSubmitRunHandler returns an http.HandlerFunc for
// POST /api/v1/projects/{projectID}/runs. The run is admitted immediately and
// answered with 202; clients poll the run until it is finished or failed.
func NewSubmitRunHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}
		projectID, ok := pathID(w, r, "projectID")
		if !ok {
			return
		}

		var req struct {
			Kind string `json:"kind"`
		}
		if !response.Decode(w, r, &req) {
			return
		}

		run, err := svc.SubmitRun(r.Context(), org, projectID, req.Kind, actor(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/api/v1/runs/"+run.ID.String())
		response.Accepted(w, submitRunResponse{RunID: run.ID, Kind: run.Kind, Status: run.Status})
	}
}

// NewLatestRunHandler returns an http.HandlerFunc for
// GET /api/v1/projects/{projectID}/runs/latest?kind=.
func NewLatestRunHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}
		projectID, ok := pathID(w, r, "projectID")
		if !ok {
			return
		}

		latest, err := svc.GetLatestRun(r.Context(), org, projectID, r.URL.Query().Get("kind"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, latest)
	}
}

// NewGetRunHandler returns an http.HandlerFunc for GET /api/v1/runs/{runID}.
func NewGetRunHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}
		runID, ok := pathID(w, r, "runID")
		if !ok {
			return
		}

		run, err := svc.GetRun(r.Context(), org, runID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, run)
	}
}

// NewRunStatusHandler returns an http.HandlerFunc for
// GET /api/v1/runs/{runID}/status, the cheap polling endpoint.
func NewRunStatusHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}
		runID, ok := pathID(w, r, "runID")
		if !ok {
			return
		}

		status, err := svc.GetRunStatus(r.Context(), org, runID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, runStatusResponse{RunID: runID, Status: status})
	}
}
