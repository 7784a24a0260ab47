package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/kiranshivaraju/threatlens/internal/api/response"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is the number of leading key characters stored in clear for lookup.
const KeyPrefixLen = 8

const lastUsedTimeout = 5 * time.Second

// Auth provides authentication and scope-checking middleware.
type Auth struct {
	store    store.Store
	required bool
}

// NewAuth creates a new Auth middleware. When required is false, requests
// without an Authorization header pass through anonymously; requests that do
// send a key are still verified.
func NewAuth(s store.Store, required bool) *Auth {
	return &Auth{store: s, required: required}
}

// Authenticate validates the Bearer token, looks up the API key, and sets
// key_id, key_prefix, and scopes in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" && !a.required {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if len(rawKey) < KeyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		prefix := rawKey[:KeyPrefixLen]

		keys, err := a.store.GetAPIKeyByPrefix(r.Context(), prefix)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		// Find matching key by bcrypt comparison
		var matched bool
		for _, key := range keys {
			if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) == nil {
				r = r.WithContext(WithAPIKey(r.Context(), key.ID, prefix, key.Scopes))
				matched = true

				// Update last_used_at async
				go func(k *models.APIKey) {
					ctx, cancel := context.WithTimeout(context.Background(), lastUsedTimeout)
					defer cancel()
					if err := a.store.UpdateAPIKeyLastUsed(ctx, k.ID); err != nil {
						slog.Debug("failed to update api key last_used_at", "key_prefix", k.KeyPrefix, "error", err)
					}
				}(key)
				break
			}
		}

		if !matched {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireScope returns middleware that checks whether the authenticated
// API key has the specified scope. Admin implies every scope. Anonymous
// requests pass when auth is optional, except for the admin scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, authenticated := getKeyPrefix(r); !authenticated {
				if !a.required && scope != models.ScopeAdmin {
					next.ServeHTTP(w, r)
					return
				}
				response.Error(w, http.StatusUnauthorized,
					"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
				return
			}

			scopes := getScopes(r)
			if slices.Contains(scopes, scope) || slices.Contains(scopes, models.ScopeAdmin) {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
