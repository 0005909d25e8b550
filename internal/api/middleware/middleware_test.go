package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mw "github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/middleware"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- Stores ---

// brokenKeys fails every key lookup.
type brokenKeys struct {
	*store.MemoryStore
}

func (b brokenKeys) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, errors.New("connection reset")
}

// --- Mock Cache ---

type mockCache struct {
	counter int64
	err     error
	lastKey string
}

func (m *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (m *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (m *mockCache) Ping(_ context.Context) error                                     { return nil }
func (m *mockCache) SetRunStatus(_ context.Context, _, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (m *mockCache) GetRunStatus(_ context.Context, _, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.lastKey = key
	m.counter++
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

// seedKey stores a key for rawKey with the given scopes and returns the store.
func seedKey(t *testing.T, rawKey string, orgID uuid.UUID, scopes ...string) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	h, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, s.CreateAPIKey(context.Background(), &models.APIKey{
		ID:        uuid.New(),
		OrgID:     orgID,
		Name:      "ci",
		KeyHash:   string(h),
		KeyPrefix: rawKey[:mw.KeyPrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}))
	return s
}

func request(rawKey string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if rawKey != "" {
		req.Header.Set("Authorization", "Bearer "+rawKey)
	}
	return req
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_MissingAuthHeader(t *testing.T) {
	auth := mw.NewAuth(store.NewMemoryStore())
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, request(""))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
}

func TestAuth_InvalidBearerFormat(t *testing.T) {
	auth := mw.NewAuth(store.NewMemoryStore())
	req := request("")
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_KeyTooShort(t *testing.T) {
	auth := mw.NewAuth(store.NewMemoryStore())
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, request("short"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_KeyNotFound(t *testing.T) {
	auth := mw.NewAuth(store.NewMemoryStore())
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, request("tdr_test1234567890"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_WrongSecretSamePrefix(t *testing.T) {
	s := seedKey(t, "tdr_test1234567890abcdef", uuid.New(), models.ScopeRead)
	auth := mw.NewAuth(s)
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, request("tdr_testXXXXXXXXXXXXXXXX"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_LookupError(t *testing.T) {
	auth := mw.NewAuth(brokenKeys{store.NewMemoryStore()})
	w := httptest.NewRecorder()
	auth.Authenticate(okHandler()).ServeHTTP(w, request("tdr_test1234567890"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestAuth_ValidKey(t *testing.T) {
	rawKey := "tdr_test1234567890abcdef"
	orgID := uuid.New()
	auth := mw.NewAuth(seedKey(t, rawKey, orgID, models.ScopeRead))

	var (
		gotOrg    uuid.UUID
		gotOK     bool
		gotPrefix string
	)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg, gotOK = mw.GetOrgID(r)
		gotPrefix, _ = mw.GetKeyPrefix(r)
		w.WriteHeader(http.StatusOK)
	})
	w := httptest.NewRecorder()
	auth.Authenticate(inner).ServeHTTP(w, request(rawKey))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotOK)
	assert.Equal(t, orgID, gotOrg)
	assert.Equal(t, "tdr_test", gotPrefix)
}

func TestAuth_RevokedKeyRejected(t *testing.T) {
	rawKey := "tdr_gone1234567890abcdef"
	orgID := uuid.New()
	s := seedKey(t, rawKey, orgID, models.ScopeRead)
	keys, err := s.ListAPIKeys(context.Background(), orgID)
	require.NoError(t, err)
	require.NoError(t, s.RevokeAPIKey(context.Background(), keys[0].ID, orgID))

	w := httptest.NewRecorder()
	mw.NewAuth(s).Authenticate(okHandler()).ServeHTTP(w, request(rawKey))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_RequireScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		need   string
		want   int
	}{
		{"exact scope", []string{models.ScopeWrite}, models.ScopeWrite, http.StatusOK},
		{"admin grants all", []string{models.ScopeAdmin}, models.ScopeWrite, http.StatusOK},
		{"missing scope", []string{models.ScopeRead}, models.ScopeWrite, http.StatusForbidden},
		{"read is not admin", []string{models.ScopeRead, models.ScopeWrite}, models.ScopeAdmin, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rawKey := "tdr_scop1234567890abcdef"
			auth := mw.NewAuth(seedKey(t, rawKey, uuid.New(), tt.scopes...))
			w := httptest.NewRecorder()
			auth.Authenticate(auth.RequireScope(tt.need)(okHandler())).ServeHTTP(w, request(rawKey))

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", errBody(t, w)["code"])
			}
		})
	}
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func withPrefix(prefix string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	return req.WithContext(mw.SetKeyPrefix(req.Context(), prefix))
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{}
	w := httptest.NewRecorder()
	mw.NewRateLimit(mc, 60).Limit(okHandler()).ServeHTTP(w, withPrefix("tdr_test"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "ratelimit:tdr_test", mc.lastKey)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60}
	w := httptest.NewRecorder()
	mw.NewRateLimit(mc, 60).Limit(okHandler()).ServeHTTP(w, withPrefix("tdr_over"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_CacheErrorFailsOpen(t *testing.T) {
	mc := &mockCache{err: errors.New("redis down")}
	w := httptest.NewRecorder()
	mw.NewRateLimit(mc, 60).Limit(okHandler()).ServeHTTP(w, withPrefix("tdr_test"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_NoKeyPrefix_PassThrough(t *testing.T) {
	mc := &mockCache{}
	w := httptest.NewRecorder()
	mw.NewRateLimit(mc, 60).Limit(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, mc.counter)
}

func TestRateLimit_DefaultLimit(t *testing.T) {
	w := httptest.NewRecorder()
	mw.NewRateLimit(&mockCache{}, 0).Limit(okHandler()).ServeHTTP(w, withPrefix("tdr_test"))
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

// ========================================
// Recovery and Logging Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})
	w := httptest.NewRecorder()
	mw.Recovery(panicking).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	w := httptest.NewRecorder()
	mw.Recovery(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_PassesStatusThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
