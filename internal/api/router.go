package api

import (
	"net/http"

	mw "github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/middleware"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/response"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateProject      http.HandlerFunc
	GetProject         http.HandlerFunc
	SetProjectTemplate http.HandlerFunc
	UploadDocument     http.HandlerFunc

	CreateTemplate http.HandlerFunc
	GetTemplate    http.HandlerFunc

	SubmitRun    http.HandlerFunc
	LatestRun    http.HandlerFunc
	GetRun       http.HandlerFunc
	GetRunStatus http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeRead))

			r.Get("/api/v1/projects/{projectID}", orNotImplemented(deps.GetProject))
			r.Get("/api/v1/projects/{projectID}/runs/latest", orNotImplemented(deps.LatestRun))
			r.Get("/api/v1/templates/{templateID}", orNotImplemented(deps.GetTemplate))
			r.Get("/api/v1/runs/{runID}", orNotImplemented(deps.GetRun))
			r.Get("/api/v1/runs/{runID}/status", orNotImplemented(deps.GetRunStatus))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeWrite))

			r.Post("/api/v1/projects", orNotImplemented(deps.CreateProject))
			r.Put("/api/v1/projects/{projectID}/template", orNotImplemented(deps.SetProjectTemplate))
			r.Post("/api/v1/projects/{projectID}/documents", orNotImplemented(deps.UploadDocument))
			r.Post("/api/v1/projects/{projectID}/runs", orNotImplemented(deps.SubmitRun))
			r.Post("/api/v1/templates", orNotImplemented(deps.CreateTemplate))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
