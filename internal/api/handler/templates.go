package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/analysis"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/response"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
)

const maxCriteriaPerTemplate = 200

// NewCreateTemplateHandler returns an http.HandlerFunc for POST /api/v1/templates.
// Templates are immutable once created.
func NewCreateTemplateHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}

		var req struct {
			Name     string             `json:"name"`
			Criteria []models.Criterion `json:"criteria"`
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
		if details := validateCriteria(req.Criteria); details != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid criteria", details)
			return
		}

		tmpl := &models.Template{
			ID:        uuid.New(),
			OrgID:     org,
			Name:      name,
			Criteria:  req.Criteria,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.CreateTemplate(r.Context(), tmpl); err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, tmpl)
	}
}

// NewGetTemplateHandler returns an http.HandlerFunc for GET /api/v1/templates/{templateID}.
func NewGetTemplateHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "templateID")
		if !ok {
			return
		}

		tmpl, err := s.GetTemplate(r.Context(), id, org)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, tmpl)
	}
}

func validateCriteria(criteria []models.Criterion) map[string]string {
	switch {
	case len(criteria) == 0:
		return map[string]string{"criteria": "at least one criterion is required"}
	case len(criteria) > maxCriteriaPerTemplate:
		return map[string]string{"criteria": fmt.Sprintf("at most %d criteria are accepted", maxCriteriaPerTemplate)}
	}

	keys := make(map[string]bool, len(criteria))
	for i, c := range criteria {
		if err := analysis.ValidateCriterion(c); err != nil {
			var se *analysis.SchemaValidationError
			if errors.As(err, &se) {
				return map[string]string{fmt.Sprintf("criteria[%d].%s", i, se.Field): se.Reason}
			}
			return map[string]string{fmt.Sprintf("criteria[%d]", i): err.Error()}
		}
		if keys[c.Key] {
			return map[string]string{fmt.Sprintf("criteria[%d].key", i): fmt.Sprintf("duplicate key %q", c.Key)}
		}
		keys[c.Key] = true
	}
	return nil
}
