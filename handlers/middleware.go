package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/visionsuite/attendvision/models"
	"github.com/visionsuite/attendvision/services"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// APIKeyContextKey is the key used to store the authenticated API key in
	// the request context.
	APIKeyContextKey ContextKey = "api_key"
)

// extractToken pulls the API key token from X-API-Key or a Bearer
// Authorization header.
func extractToken(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// RequirePermission authenticates the request's API key and checks it grants
// the given permission. The validated key is added to the request context.
func RequirePermission(keys *services.APIKeyService, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				WriteAPIError(w, http.StatusUnauthorized, CodeUnauthenticated, "API key required")
				return
			}

			key, err := keys.Validate(token, permission)
			if err != nil {
				WriteServiceError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyFromContext returns the authenticated API key, or nil when the route
// was not protected.
func KeyFromContext(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(APIKeyContextKey).(*models.APIKey)
	return key
}
