package server

import (
	"net/http"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hlab-io/openconsole/internal/auth"
	"github.com/hlab-io/openconsole/internal/config"
	consolemw "github.com/hlab-io/openconsole/internal/middleware"
	"github.com/hlab-io/openconsole/internal/repository"
	"github.com/hlab-io/openconsole/internal/session"
)

// RouterOptions controls the construction of the console HTTP router.
type RouterOptions struct {
	Cfg           *config.Config
	RelyingParty  *auth.RelyingParty
	Sessions      repository.SessionRepository
	Announcements repository.AnnouncementRepository
	Manager       *session.Manager
	Sync          *session.Synchronizer
	Enforcer      casbin.IEnforcer
	AdminDeps     *AdminDeps

	// BearerVerifier validates provider access tokens on cookie-less API
	// requests. Optional; without it only browser sessions authenticate.
	BearerVerifier func(http.Handler) http.Handler

	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewBearerVerifier builds the bearer-token middleware scoped to the API and
// admin surfaces. Requests with a session cookie, the session-info endpoint
// and everything outside /api and /admin bypass it.
func NewBearerVerifier(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	return auth.NewVerifier(cfg, auth.WithSkipper(bearerSkipper))
}

func bearerSkipper(r *http.Request) bool {
	if r == nil || r.Method == http.MethodOptions {
		return true
	}
	if _, err := r.Cookie(auth.SessionCookieName); err == nil {
		return true
	}
	if r.URL.Path == "/api/auth/session" {
		return true
	}
	return !strings.HasPrefix(r.URL.Path, "/admin") && !strings.HasPrefix(r.URL.Path, "/api/")
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy and
// the console handlers mounted.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	health := opts.HealthHandler
	if health == nil {
		health = defaultHealthHandler
	}
	r.Get("/healthz", health)

	if opts.RelyingParty != nil {
		r.Get("/auth/sso/login", HandleSSOLogin(opts.RelyingParty))
		r.Get("/auth/sso/callback", HandleSSOCallback(opts.RelyingParty, opts.Sessions, opts.Cfg.OIDC.RolesClaim))
	}

	margin := opts.Cfg.RefreshMargin

	// Authenticated surface. Session cookies and provider bearer tokens both
	// resolve to a principal; guards below decide who gets in.
	r.Group(func(r chi.Router) {
		r.Use(consolemw.NewSessionAuth(consolemw.SessionDeps{
			Sessions: opts.Sessions,
			Manager:  opts.Manager,
			Sync:     opts.Sync,
		}))
		if opts.BearerVerifier != nil {
			r.Use(opts.BearerVerifier)
			r.Use(consolemw.NewBearerPrincipal(opts.Cfg.OIDC.RolesClaim))
		}

		r.Get("/api/auth/session", HandleSessionInfo(opts.Sessions, margin))
		r.Post("/auth/logout", HandleLogout(opts.Sync))

		r.Group(func(r chi.Router) {
			r.Use(consolemw.RequireSession)
			r.Get("/api/announcements", HandleListAnnouncements(opts.Announcements))
			r.Get("/api/announcements/{slug}", HandleGetAnnouncement(opts.Announcements))
			r.Get("/api/instances", HandleListInstances())
		})

		if opts.AdminDeps != nil && opts.Enforcer != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(consolemw.RequireAdmin(opts.Enforcer))
				r.Get("/users", HandleAdminListUsers(opts.AdminDeps))
				r.Get("/roles", HandleAdminListRoles())
				r.Post("/users/{userID}/roles", HandleAdminAssignRoles(opts.AdminDeps))
				r.Delete("/users/{userID}/roles/{role}", HandleAdminRemoveRole(opts.AdminDeps))
			})
		}
	})

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}
