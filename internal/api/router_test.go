package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api"
	mw "github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/middleware"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/cache"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const readKey = "tdr_read_0123456789abcdef0123"

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return nil }
func (c *stubCache) SetRunStatus(_ context.Context, _, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetRunStatus(_ context.Context, _, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*stubCache)(nil)

// --- router tests ---

// newTestRouter wires only the health handler; every other route answers 501.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	s := store.NewMemoryStore()
	hash, err := bcrypt.GenerateFromPassword([]byte(readKey), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, s.CreateAPIKey(context.Background(), &models.APIKey{
		ID:        uuid.New(),
		OrgID:     uuid.New(),
		Name:      "reader",
		KeyHash:   string(hash),
		KeyPrefix: readKey[:mw.KeyPrefixLen],
		Scopes:    []string{models.ScopeRead},
	}))

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(s),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	})
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)["code"].(string)
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Content-Type"))
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t)
	id := uuid.NewString()

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/projects"},
		{http.MethodGet, "/api/v1/projects/" + id},
		{http.MethodPut, "/api/v1/projects/" + id + "/template"},
		{http.MethodPost, "/api/v1/projects/" + id + "/documents"},
		{http.MethodPost, "/api/v1/projects/" + id + "/runs"},
		{http.MethodGet, "/api/v1/projects/" + id + "/runs/latest"},
		{http.MethodPost, "/api/v1/templates"},
		{http.MethodGet, "/api/v1/templates/" + id},
		{http.MethodGet, "/api/v1/runs/" + id},
		{http.MethodGet, "/api/v1/runs/" + id + "/status"},
		{http.MethodPost, "/api/v1/admin/keys"},
		{http.MethodGet, "/api/v1/admin/keys"},
		{http.MethodDelete, "/api/v1/admin/keys/" + id},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(ep.method, ep.path, nil))

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_TOKEN", errorCode(t, w))
		})
	}
}

func TestRouter_ScopesGateRouteGroups(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/runs/" + uuid.NewString(), http.StatusNotImplemented},
		{http.MethodPost, "/api/v1/projects", http.StatusForbidden},
		{http.MethodGet, "/api/v1/admin/keys", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+readKey)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/v1/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", errorCode(t, w))
}
