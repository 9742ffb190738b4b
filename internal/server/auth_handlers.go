package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/hlab-io/openconsole/internal/auth"
	"github.com/hlab-io/openconsole/internal/db/bunx"
	"github.com/hlab-io/openconsole/internal/db/models"
	"github.com/hlab-io/openconsole/internal/middleware"
	"github.com/hlab-io/openconsole/internal/repository"
	"github.com/hlab-io/openconsole/internal/session"
)

// HandleSSOLogin initiates the OIDC Authorization Code Flow.
// Accepts an optional redirect_uri query parameter naming where to land after
// a successful login.
func HandleSSOLogin(rpAuth *auth.RelyingParty) http.HandlerFunc {
	// The library's AuthURLHandler takes care of PKCE challenge generation,
	// verifier/state cookies and the redirect to the provider.
	libraryAuthHandler := rp.AuthURLHandler(func() string {
		state, _ := auth.GenerateNonce()
		return state
	}, rpAuth.RP())
	return func(w http.ResponseWriter, r *http.Request) {
		if redirectURI := r.URL.Query().Get("redirect_uri"); redirectURI != "" {
			auth.SetRedirectURICookie(w, r, redirectURI)
		}
		libraryAuthHandler.ServeHTTP(w, r)
	}
}

// HandleSSOCallback finishes the code exchange and establishes the
// server-side session. Tokens never leave this process; the browser only
// gets the opaque session cookie.
func HandleSSOCallback(rpAuth *auth.RelyingParty, sessions repository.SessionRepository, rolesClaim string) http.HandlerFunc {
	codeExchangeCallback := func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens[*oidc.IDTokenClaims], state string, provider rp.RelyingParty) {
		ctx := r.Context()

		claims, err := auth.ParseIDTokenClaims(tokens.IDToken)
		if err != nil {
			log.Error().Err(err).Msg("sso callback: unreadable ID token")
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}
		profile, err := auth.ExtractProfile(claims)
		if err != nil {
			log.Error().Err(err).Msg("sso callback: ID token without subject")
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}
		roles, err := auth.ExtractRoles(claims, rolesClaim)
		if err != nil {
			log.Warn().Err(err).Str("subject", profile.Subject).Msg("sso callback: unreadable roles claim, continuing without roles")
			roles = []string{}
		}

		token, tokenHash, err := auth.GenerateSessionToken()
		if err != nil {
			log.Error().Err(err).Msg("sso callback: token generation failed")
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}

		now := time.Now()
		sess := &models.Session{
			ID:             bunx.NewUUIDv7(),
			TokenHash:      tokenHash,
			UserSubject:    profile.Subject,
			UserName:       profile.Name,
			UserEmail:      profile.Email,
			UserPicture:    profile.Picture,
			Roles:          models.RoleList(roles),
			AccessToken:    tokens.AccessToken,
			IDToken:        tokens.IDToken,
			RefreshToken:   tokens.RefreshToken,
			TokenExpiresAt: tokens.Expiry,
			ExpiresAt:      auth.CalculateExpiry(now),
			CreatedAt:      now,
			LastUsedAt:     now,
		}
		if err := sessions.Create(ctx, sess); err != nil {
			log.Error().Err(err).Str("subject", profile.Subject).Msg("sso callback: failed to persist session")
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookieName,
			Value:    token,
			Path:     "/",
			Expires:  sess.ExpiresAt,
			HttpOnly: true,
			Secure:   r.URL.Scheme == "https",
			SameSite: http.SameSiteLaxMode,
		})

		redirectURI := auth.GetRedirectURICookie(w, r)
		if redirectURI == "" {
			redirectURI = "/"
		}
		http.Redirect(w, r, redirectURI, http.StatusFound)
	}
	return rp.CodeExchangeHandler(codeExchangeCallback, rpAuth.RP())
}

// HandleLogout signs the current session out and clears the cookie.
func HandleLogout(sync *session.Synchronizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.GetUserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "no active session")
			return
		}

		// Bearer callers have no server-side session to sign out.
		if principal.SessionID == "" {
			writeError(w, http.StatusBadRequest, "no browser session")
			return
		}

		if _, err := sync.SignOut(r.Context(), principal.SessionID); err != nil {
			log.Error().Err(err).Str("session_id", principal.SessionID).Msg("logout failed")
			writeError(w, http.StatusInternalServerError, "logout failed")
			return
		}

		middleware.ClearSessionCookie(w, r)
		writeJSON(w, http.StatusOK, map[string]string{"status": "signedOut"})
	}
}

// HandleSessionInfo reports the session state to the browser. It always
// answers 200; an absent or dead session reads as unauthenticated rather
// than an error, so clients can poll it to drive their auth state.
func HandleSessionInfo(sessions repository.SessionRepository, margin time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.GetUserFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusOK, session.Record{Status: session.StatusUnauthenticated})
			return
		}

		sess, err := sessions.GetByID(r.Context(), principal.SessionID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				log.Error().Err(err).Str("session_id", principal.SessionID).Msg("session load failed")
			}
			writeJSON(w, http.StatusOK, session.Record{Status: session.StatusUnauthenticated})
			return
		}

		writeJSON(w, http.StatusOK, session.BuildRecord(sess, time.Now(), margin))
	}
}
