package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/rs/zerolog/log"

	"github.com/hlab-io/openconsole/internal/auth"
)

// RequireSession rejects requests that reach it without an authenticated
// principal.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetUserFromContext(r.Context()); !ok {
			writeAuthError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin guards the admin surface. Unauthenticated callers get 401,
// authenticated callers without an admitting role get 403. The guard only
// answers with status codes; whether and where to redirect is the client's
// decision once it knows the session state.
func RequireAdmin(enforcer casbin.IEnforcer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.GetUserFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			allowed, err := auth.Authorize(enforcer, principal.Roles, r.URL.Path, r.Method)
			if err != nil {
				log.Error().Err(err).Msg("authorization check failed")
				writeAuthError(w, http.StatusInternalServerError, "authorization error")
				return
			}
			if !allowed {
				writeAuthError(w, http.StatusForbidden, "admin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
