package handler

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	mw "github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/middleware"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/api/response"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/internal/store"
	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const rawKeyPrefix = "tdr_"

var knownScopes = []string{models.ScopeRead, models.ScopeWrite, models.ScopeAdmin}

type keyResponse struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type createdKeyResponse struct {
	keyResponse
	Key string `json:"key"`
}

func toKeyResponse(k *models.APIKey) keyResponse {
	return keyResponse{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		Scopes:     k.Scopes,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// The raw key appears in the response once and is never stored.
func NewCreateKeyHandler(s store.Store, cost int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}

		var req struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
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
		scopes := req.Scopes
		if len(scopes) == 0 {
			scopes = []string{models.ScopeRead}
		}
		for _, sc := range scopes {
			if !slices.Contains(knownScopes, sc) {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid scopes",
					map[string]string{"scopes": fmt.Sprintf("unknown scope %q", sc)})
				return
			}
		}

		key, rawKey, err := newAPIKey(org, name, scopes, cost)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.CreateAPIKey(r.Context(), key); err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, createdKeyResponse{keyResponse: toKeyResponse(key), Key: rawKey})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}

		keys, err := s.ListAPIKeys(r.Context(), org)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]keyResponse, len(keys))
		for i, k := range keys {
			out[i] = toKeyResponse(k)
		}
		response.List(w, out, len(out))
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ok := orgID(w, r)
		if !ok {
			return
		}
		keyID, ok := pathID(w, r, "keyID")
		if !ok {
			return
		}

		if err := s.RevokeAPIKey(r.Context(), keyID, org); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

// EnsureAdminKey registers rawKey as an admin key of orgID unless a live key
// with the same secret already exists. It lets a fresh deployment obtain its
// first key.
func EnsureAdminKey(ctx context.Context, s store.Store, orgID uuid.UUID, rawKey string, cost int) (created bool, err error) {
	if len(rawKey) < mw.KeyPrefixLen+16 {
		return false, fmt.Errorf("bootstrap key must be at least %d characters", mw.KeyPrefixLen+16)
	}
	existing, err := s.GetAPIKeyByPrefix(ctx, rawKey[:mw.KeyPrefixLen])
	if err != nil {
		return false, fmt.Errorf("look up bootstrap key: %w", err)
	}
	for _, k := range existing {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil {
			return false, nil
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), cost)
	if err != nil {
		return false, fmt.Errorf("hash bootstrap key: %w", err)
	}
	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		OrgID:     orgID,
		Name:      "bootstrap",
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:mw.KeyPrefixLen],
		Scopes:    []string{models.ScopeAdmin},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		return false, fmt.Errorf("store bootstrap key: %w", err)
	}
	return true, nil
}

// newAPIKey generates a raw key and its stored form.
func newAPIKey(orgID uuid.UUID, name string, scopes []string, cost int) (*models.APIKey, string, error) {
	secret := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	rawKey := rawKeyPrefix + secret

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash api key: %w", err)
	}
	now := time.Now().UTC()
	return &models.APIKey{
		ID:        uuid.New(),
		OrgID:     orgID,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:mw.KeyPrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, rawKey, nil
}
