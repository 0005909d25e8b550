package handler

import (
	"net/http"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/response"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
)

// NewCreateProjectHandler returns an http.HandlerFunc for POST /api/v1/projects.
func NewCreateProjectHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}

		var req struct {
			Name string `json:"name"`
		}
		if !response.Decode(w, r, &req) {
			return
		}
		name, ok := validName(req.Name)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"name is required and must be at most 200 characters", nil)
			return
		}

		now := time.Now().UTC()
		project := &models.Project{
			ID:        uuid.New(),
			OrgID:     org,
			Name:      name,
			CreatedBy: actor(r),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.CreateProject(r.Context(), project); err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, project)
	}
}

// NewGetProjectHandler returns an http.HandlerFunc for GET /api/v1/projects/{projectID}.
func NewGetProjectHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "projectID")
		if !ok {
			return
		}

		project, err := s.GetProject(r.Context(), id, org)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, project)
	}
}

// NewSetProjectTemplateHandler returns an http.HandlerFunc for
// PUT /api/v1/projects/{projectID}/template.
func NewSetProjectTemplateHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "projectID")
		if !ok {
			return
		}

		var req struct {
			TemplateID string `json:"template_id"`
		}
		if !response.Decode(w, r, &req) {
			return
		}
		templateID, err := uuid.Parse(req.TemplateID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "template_id must be a UUID", nil)
			return
		}

		if err := s.SetProjectTemplate(r.Context(), id, org, templateID); err != nil {
			writeError(w, r, err)
			return
		}
		project, err := s.GetProject(r.Context(), id, org)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, project)
	}
}
