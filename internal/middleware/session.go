package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hlab-io/openconsole/internal/auth"
	"github.com/hlab-io/openconsole/internal/repository"
	"github.com/hlab-io/openconsole/internal/session"
)

// SessionDeps bundles what session authentication needs.
type SessionDeps struct {
	Sessions repository.SessionRepository
	Manager  *session.Manager
	Sync     *session.Synchronizer
}

// NewSessionAuth creates middleware that authenticates requests carrying the
// session cookie. A valid session puts the principal on the context; requests
// without a usable session pass through unauthenticated and are rejected by
// RequireSession or the admin guard further down the chain.
//
// A session whose refresh token was rejected is signed out here, once, and
// the cookie is cleared so the browser stops presenting it.
func NewSessionAuth(deps SessionDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			cookie, err := r.Cookie(auth.SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := deps.Sessions.GetByTokenHash(ctx, auth.HashToken(cookie.Value))
			if err != nil {
				if !errors.Is(err, repository.ErrNotFound) {
					log.Error().Err(err).Msg("session lookup failed")
				}
				ClearSessionCookie(w, r)
				next.ServeHTTP(w, r)
				return
			}

			if sess.Revoked || time.Now().After(sess.ExpiresAt) {
				ClearSessionCookie(w, r)
				next.ServeHTTP(w, r)
				return
			}

			// Make sure the session holds a live access token before any
			// handler relies on it.
			if _, err := deps.Manager.AccessToken(ctx, sess); err != nil {
				switch {
				case errors.Is(err, session.ErrRefreshFailed):
					deps.Sync.HandleRefreshFailure(ctx, sess.ID)
					ClearSessionCookie(w, r)
					next.ServeHTTP(w, r)
					return
				case errors.Is(err, session.ErrSessionRevoked):
					ClearSessionCookie(w, r)
					next.ServeHTTP(w, r)
					return
				default:
					log.Error().Err(err).Str("session_id", sess.ID).Msg("token lifecycle error")
					http.Error(w, "authentication error", http.StatusInternalServerError)
					return
				}
			}

			if err := deps.Sessions.UpdateLastUsed(ctx, sess.ID); err != nil {
				log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to record session use")
			}

			principal := auth.AuthenticatedPrincipal{
				Subject:   sess.UserSubject,
				Name:      sess.UserName,
				Email:     sess.UserEmail,
				Picture:   sess.UserPicture,
				SessionID: sess.ID,
				Roles:     sess.Roles,
			}
			next.ServeHTTP(w, r.WithContext(auth.SetUserContext(ctx, principal)))
		})
	}
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   r.URL.Scheme == "https",
		SameSite: http.SameSiteLaxMode,
	})
}
