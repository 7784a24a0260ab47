package handler

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/threatlens/internal/api/middleware"
	"github.com/kiranshivaraju/threatlens/internal/api/response"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// RawKeyPrefix starts every generated API key.
const RawKeyPrefix = "tl_"

var knownScopes = []string{models.ScopeDetect, models.ScopeRead, models.ScopeAdmin}

// KeyStore is the API key side of the store.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// GenerateRawKey returns a fresh random API key.
func GenerateRawKey() string {
	a, b := uuid.New(), uuid.New()
	return RawKeyPrefix + hex.EncodeToString(a[:]) + hex.EncodeToString(b[:])
}

// NewAPIKey hashes rawKey and builds the record stored for it.
func NewAPIKey(name, rawKey string, scopes []string, cost int) (*models.APIKey, error) {
	if len(rawKey) < mw.KeyPrefixLen {
		return nil, fmt.Errorf("api key must be at least %d characters", mw.KeyPrefixLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), cost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}
	now := time.Now().UTC()
	return &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:mw.KeyPrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type createKeyRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/admin/keys.
// The raw key is returned once and never stored.
func NewCreateKeyHandler(s KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if len(req.Scopes) == 0 {
			req.Scopes = []string{models.ScopeDetect, models.ScopeRead}
		}
		for _, sc := range req.Scopes {
			if !slices.Contains(knownScopes, sc) {
				response.Error(w, http.StatusBadRequest, "INVALID_SCOPE",
					fmt.Sprintf("unknown scope %q", sc), map[string]any{"allowed": knownScopes})
				return
			}
		}

		rawKey := GenerateRawKey()
		key, err := NewAPIKey(req.Name, rawKey, req.Scopes, bcrypt.DefaultCost)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
			return
		}

		if err := s.CreateAPIKey(r.Context(), key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "API key already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
			return
		}

		response.Created(w, map[string]any{
			"id":         key.ID.String(),
			"name":       key.Name,
			"key":        rawKey,
			"key_prefix": key.KeyPrefix,
			"scopes":     key.Scopes,
			"created_at": key.CreatedAt,
		})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/admin/keys.
func NewListKeysHandler(s KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := s.ListAPIKeys(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list keys", nil)
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.JSON(w, keys)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/admin/keys/{keyID}.
func NewRevokeKeyHandler(s KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "Invalid key ID", nil)
			return
		}

		if err := s.RevokeAPIKey(r.Context(), keyID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke key", nil)
			return
		}
		response.NoContent(w)
	}
}
