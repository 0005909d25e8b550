// Package handler implements the HTTP handlers of the tender analysis API.
// Every handler resolves the organization from the authenticated API key and
// never reads or writes another organization's data.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/analysis"
	mw "github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/middleware"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/response"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxNameLen = 200

// writeError maps service and store errors onto the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var schemaErr *analysis.SchemaValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, analysis.ErrNoContent):
		response.Error(w, http.StatusUnprocessableEntity, "NO_CONTENT",
			"The project has no document pages to analyze", nil)
	case errors.Is(err, analysis.ErrMissingTemplate):
		response.Error(w, http.StatusUnprocessableEntity, "MISSING_TEMPLATE",
			"Assign a criteria template to the project first", nil)
	case errors.Is(err, analysis.ErrUnknownKind):
		response.Error(w, http.StatusBadRequest, "INVALID_KIND",
			"kind must be standard or criteria", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "CONFLICT", "Resource already exists", nil)
	case errors.As(err, &schemaErr):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request",
			map[string]string{schemaErr.Field: schemaErr.Reason})
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// orgID returns the caller's organization or writes a 401.
func orgID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := mw.GetOrgID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing organization", nil)
	}
	return id, ok
}

// pathID parses the named URL parameter as a UUID or writes a 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ID", "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// actor names the API key behind a change.
func actor(r *http.Request) string {
	if prefix, ok := mw.GetKeyPrefix(r); ok {
		return "api_key:" + prefix
	}
	return "api_key"
}

// validName checks a display name and reports the problem, if any.
func validName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	return name, name != "" && len(name) <= maxNameLen
}
