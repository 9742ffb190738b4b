package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/xenitab/go-oidc-middleware/oidctoken"
	"github.com/xenitab/go-oidc-middleware/options"

	"github.com/hlab-io/openconsole/internal/config"
)

type claimsContextKey struct{}

var defaultClaimsContextKey = claimsContextKey{}

type tokenStringContextKey struct{}

var defaultTokenStringContextKey = tokenStringContextKey{}

// Skipper defines a function to skip authentication for matching requests.
type Skipper func(*http.Request) bool

// ErrorResponder writes authentication failures to the response writer.
type ErrorResponder func(http.ResponseWriter, *http.Request, error)

type verifierOptions struct {
	skipper        Skipper
	errorResponder ErrorResponder
}

// VerifierOption customises the behaviour of the OIDC verifier middleware.
type VerifierOption func(*verifierOptions)

// WithSkipper overrides the default skipper used by the verifier.
func WithSkipper(skipper Skipper) VerifierOption {
	return func(o *verifierOptions) {
		if skipper != nil {
			o.skipper = skipper
		}
	}
}

// WithErrorResponder overrides the default error responder used by the verifier.
func WithErrorResponder(responder ErrorResponder) VerifierOption {
	return func(o *verifierOptions) {
		if responder != nil {
			o.errorResponder = responder
		}
	}
}

// NewVerifier constructs a Chi-compatible middleware that validates provider
// bearer tokens using go-oidc-middleware. Automation callers that hold a
// provider access token can use the API without a browser session.
func NewVerifier(cfg *config.Config, opts ...VerifierOption) (func(http.Handler) http.Handler, error) {
	if cfg.OIDC.Issuer == "" {
		return nil, errors.New("oidc issuer is required")
	}
	if cfg.OIDC.ClientID == "" {
		return nil, errors.New("oidc client id is required")
	}

	tokenHandler, err := oidctoken.New[map[string]any](nil,
		options.WithIssuer(cfg.OIDC.Issuer),
		options.WithRequiredAudience(cfg.OIDC.ClientID),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise oidc token handler: %w", err)
	}

	vOpts := verifierOptions{
		skipper:        defaultSkipper,
		errorResponder: defaultErrorResponder,
	}
	for _, opt := range opts {
		opt(&vOpts)
	}

	tokenStrings := [][]options.TokenStringOption{{}} // Default: Authorization header.

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if vOpts.skipper != nil && vOpts.skipper(r) {
				next.ServeHTTP(w, r)
				return
			}

			token, err := oidctoken.GetTokenString(r.Header.Get, tokenStrings)
			if err != nil || token == "" {
				vOpts.errorResponder(w, r, fmt.Errorf("unable to extract bearer token: %w", err))
				return
			}

			trimmedToken := strings.TrimSpace(token)

			claims, err := tokenHandler.ParseToken(r.Context(), trimmedToken)
			if err != nil {
				vOpts.errorResponder(w, r, fmt.Errorf("invalid token: %w", err))
				return
			}

			ctx := SetClaims(r.Context(), claims)
			ctx = SetTokenString(ctx, trimmedToken)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

// SetClaims returns a context carrying the verified JWT claims.
func SetClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, defaultClaimsContextKey, claims)
}

// SetTokenString returns a context carrying the raw bearer token.
func SetTokenString(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, defaultTokenStringContextKey, token)
}

// ClaimsFromContext returns the JWT claims stored on the request context.
func ClaimsFromContext(ctx context.Context) (map[string]any, bool) {
	claims, ok := ctx.Value(defaultClaimsContextKey).(map[string]any)
	return claims, ok
}

// TokenStringFromContext returns the raw bearer token extracted during verification.
func TokenStringFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(defaultTokenStringContextKey).(string)
	return token, ok
}

func defaultSkipper(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.Method == http.MethodOptions {
		return true
	}

	// Requests carrying a session cookie are authenticated by the session
	// middleware instead.
	if _, err := r.Cookie(SessionCookieName); err == nil {
		return true
	}

	path := r.URL.Path

	publicPrefixes := []string{
		"/healthz",
		"/auth/",
	}

	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}

func defaultErrorResponder(w http.ResponseWriter, _ *http.Request, err error) {
	_ = err
	http.Error(w, "unauthenticated", http.StatusUnauthorized)
}
