package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hlab-io/openconsole/internal/auth"
)

// NewBearerPrincipal lifts verified bearer-token claims into an
// authenticated principal. It runs after the JWT verifier; requests that
// already carry a session principal or no claims pass through untouched.
// This is what lets automation callers with a provider access token use the
// same guarded routes as browser sessions.
func NewBearerPrincipal(rolesClaim string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if _, ok := auth.GetUserFromContext(ctx); ok {
				next.ServeHTTP(w, r)
				return
			}
			claims, ok := auth.ClaimsFromContext(ctx)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			sub, _ := claims["sub"].(string)
			if sub == "" {
				next.ServeHTTP(w, r)
				return
			}

			roles, err := auth.ExtractRoles(claims, rolesClaim)
			if err != nil {
				log.Warn().Err(err).Str("subject", sub).Msg("unreadable roles claim on bearer token")
				roles = []string{}
			}

			principal := auth.AuthenticatedPrincipal{
				Subject: sub,
				Roles:   roles,
			}
			if v, ok := claims["name"].(string); ok {
				principal.Name = v
			}
			if v, ok := claims["email"].(string); ok {
				principal.Email = v
			}

			next.ServeHTTP(w, r.WithContext(auth.SetUserContext(ctx, principal)))
		})
	}
}
