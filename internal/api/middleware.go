package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"

	"github.com/gorilla/mux"
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// SecurityContext represents the security information for a request
type SecurityContext struct {
	APIKey      *models.APIKey
	Permissions []string
}

// HasPermission checks if the security context has the required permission
func (sc *SecurityContext) HasPermission(required string) bool {
	if sc == nil || sc.APIKey == nil {
		return false
	}
	return sc.APIKey.HasPermission(required)
}

// GetSecurityContext extracts security context from request context
func GetSecurityContext(r *http.Request) *SecurityContext {
	if apiKey, ok := r.Context().Value(apiKeyContextKey).(*models.APIKey); ok {
		return &SecurityContext{
			APIKey:      apiKey,
			Permissions: apiKey.Permissions,
		}
	}
	return nil
}

// KeyRing resolves bearer tokens against the configured API keys.
type KeyRing struct {
	keys []*models.APIKey
}

// NewKeyRing hashes and indexes the configured keys.
func NewKeyRing(configs []models.APIKeyConfig) *KeyRing {
	ring := &KeyRing{keys: make([]*models.APIKey, 0, len(configs))}
	for _, cfg := range configs {
		ring.keys = append(ring.keys, models.NewAPIKey(cfg))
	}
	return ring
}

// Lookup returns the enabled key matching rawKey. Every key is compared so
// the time taken does not depend on which one matched.
func (kr *KeyRing) Lookup(rawKey string) (*models.APIKey, bool) {
	var found *models.APIKey
	for _, k := range kr.keys {
		if k.Matches(rawKey) && found == nil {
			found = k
		}
	}
	if found == nil || !found.Enabled {
		return nil, false
	}
	return found, true
}

// authMiddleware requires a valid bearer token from ring.
func authMiddleware(ring *KeyRing) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Authorization required", models.ErrorCodeUnauthorized))
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid authorization format", models.ErrorCodeUnauthorized))
				return
			}

			apiKey, ok := ring.Lookup(strings.TrimSpace(authHeader[len(prefix):]))
			if !ok {
				slog.WarnContext(r.Context(), "Rejected admin request with invalid API key",
					"path", r.URL.Path,
					"client_ip", getClientIP(r))
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid API key", models.ErrorCodeUnauthorized))
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission creates middleware that enforces a specific permission
func RequirePermission(required string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GetSecurityContext(r).HasPermission(required) {
				writeJSON(w, http.StatusForbidden, models.NewErrorResponse(
					"Insufficient permissions for this operation",
					models.ErrorCodeForbidden,
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP returns the connection address of r for audit logs.
func getClientIP(r *http.Request) string {
	return ratelimit.ClientIP(false)(r)
}
