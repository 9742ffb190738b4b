package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlab-io/openconsole/internal/auth"
	"github.com/hlab-io/openconsole/internal/config"
	"github.com/hlab-io/openconsole/internal/db/bunx"
	"github.com/hlab-io/openconsole/internal/db/models"
	"github.com/hlab-io/openconsole/internal/iam"
	"github.com/hlab-io/openconsole/internal/repository"
	"github.com/hlab-io/openconsole/internal/session"
)

type testEnv struct {
	router   chi.Router
	sessions repository.SessionRepository
	sync     *session.Synchronizer
	admin    *AdminDeps
}

// newTestEnv wires a router over in-memory SQLite repositories and the given
// provider endpoint. No service account is configured, so management calls
// use the caller's own token.
func newTestEnv(t *testing.T, providerURL string) *testEnv {
	t.Helper()

	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunx.Close(db) })

	ctx := context.Background()
	for _, model := range []any{(*models.Session)(nil), (*models.Announcement)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	sessions := repository.NewBunSessionRepository(db)
	announcements := repository.NewBunAnnouncementRepository(db)

	require.NoError(t, announcements.Create(ctx, &models.Announcement{
		ID:          bunx.NewUUIDv7(),
		Slug:        "maintenance-fsn1",
		Title:       "Network maintenance in fsn1",
		Body:        "Expect brief connectivity drops between 02:00 and 04:00 UTC.",
		Severity:    "maintenance",
		PublishedAt: time.Now().Add(-time.Hour),
		CreatedAt:   time.Now().Add(-time.Hour),
	}))

	cfg := &config.Config{
		UserSearchLimit: 100,
		RefreshMargin:   time.Minute,
		OIDC: config.OIDCConfig{
			Issuer:     providerURL,
			ClientID:   "console",
			RolesClaim: "urn:zitadel:iam:org:project:roles",
		},
	}

	manager := session.NewManager(sessions, nil, cfg.RefreshMargin)
	sync := session.NewSynchronizer(sessions)

	enforcer, err := auth.InitEnforcer()
	require.NoError(t, err)

	client := iam.NewClient(providerURL)
	resolver := iam.NewResolver(nil, manager)

	admin := &AdminDeps{
		Sessions:        sessions,
		Resolver:        resolver,
		Client:          client,
		Aggregator:      iam.NewAggregator(client),
		UserSearchLimit: cfg.UserSearchLimit,
	}

	router := NewRouter(RouterOptions{
		Cfg:           cfg,
		Sessions:      sessions,
		Announcements: announcements,
		Manager:       manager,
		Sync:          sync,
		Enforcer:      enforcer,
		AdminDeps:     admin,
	})

	return &testEnv{router: router, sessions: sessions, sync: sync, admin: admin}
}

// signIn stores a session and returns the cookie value.
func (e *testEnv) signIn(t *testing.T, roles ...string) string {
	t.Helper()
	token, hash, err := auth.GenerateSessionToken()
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, e.sessions.Create(context.Background(), &models.Session{
		ID:             bunx.NewUUIDv7(),
		TokenHash:      hash,
		UserSubject:    "176000000000000001",
		UserName:       "Ada Lovelace",
		UserEmail:      "ada@example.com",
		Roles:          models.RoleList(roles),
		AccessToken:    "caller-token",
		RefreshToken:   "rt",
		TokenExpiresAt: now.Add(time.Hour),
		ExpiresAt:      now.Add(12 * time.Hour),
		CreatedAt:      now,
		LastUsedAt:     now,
	}))
	return token
}

func (e *testEnv) request(t *testing.T, method, path, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/management/v1/users/_search":
			require.Equal(t, "Bearer caller-token", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"result": [
				{"id": "u-1", "userName": "ada", "state": "USER_STATE_ACTIVE",
				 "human": {"profile": {"displayName": "Ada Lovelace"}, "email": {"email": "ada@example.com"}}},
				{"id": "u-2", "userName": "grace", "state": "USER_STATE_ACTIVE",
				 "human": {"profile": {"displayName": "Grace Hopper"}, "email": {"email": "grace@example.com"}}}
			]}`))
		case "/management/v1/users/u-1/grants/_search":
			_, _ = w.Write([]byte(`{"result": [{"id": "g-1", "projectId": "p-1", "roleKeys": ["admin"]}]}`))
		case "/management/v1/users/u-2/grants/_search":
			_, _ = w.Write([]byte(`{"result": []}`))
		default:
			t.Fatalf("unexpected provider path %s", r.URL.Path)
		}
	}))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "http://unused.invalid")
	rec := env.request(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminUsers_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, "http://unused.invalid")
	rec := env.request(t, http.MethodGet, "/admin/users", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminUsers_NonAdminForbidden(t *testing.T) {
	env := newTestEnv(t, "http://unused.invalid")
	cookie := env.signIn(t, "viewer")
	rec := env.request(t, http.MethodGet, "/admin/users", cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestAdminUsers_ListsUsersWithRoles(t *testing.T) {
	provider := fakeProvider(t)
	defer provider.Close()

	env := newTestEnv(t, provider.URL)
	cookie := env.signIn(t, "admin")

	rec := env.request(t, http.MethodGet, "/admin/users", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result []struct {
			User struct {
				ID          string `json:"id"`
				DisplayName string `json:"displayName"`
			} `json:"user"`
			Roles []string `json:"roles"`
		} `json:"result"`
		Details struct {
			TotalResult string `json:"totalResult"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.Result, 2)
	assert.Equal(t, "u-1", body.Result[0].User.ID)
	assert.Equal(t, []string{"admin"}, body.Result[0].Roles)
	assert.Equal(t, "u-2", body.Result[1].User.ID)
	assert.Empty(t, body.Result[1].Roles)
	assert.Equal(t, "2", body.Details.TotalResult)
}

func TestAdminUsers_ProviderFailure(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer provider.Close()

	env := newTestEnv(t, provider.URL)
	cookie := env.signIn(t, "admin")

	rec := env.request(t, http.MethodGet, "/admin/users", cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "provider request failed", body["error"])
}

// Automation callers authenticate with a provider bearer token and have no
// session row; their own token serves the management calls when no service
// account is configured.
func TestAdminUsers_BearerCallerUsesOwnToken(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/management/v1/users/_search":
			require.Equal(t, "Bearer automation-token", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"result": [
				{"id": "u-1", "userName": "ada", "state": "USER_STATE_ACTIVE",
				 "human": {"profile": {"displayName": "Ada Lovelace"}, "email": {"email": "ada@example.com"}}}
			]}`))
		case "/management/v1/users/u-1/grants/_search":
			_, _ = w.Write([]byte(`{"result": []}`))
		default:
			t.Fatalf("unexpected provider path %s", r.URL.Path)
		}
	}))
	defer provider.Close()

	env := newTestEnv(t, provider.URL)

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	ctx := auth.SetUserContext(req.Context(), auth.AuthenticatedPrincipal{
		Subject: "automation-1",
		Roles:   []string{"admin"},
	})
	ctx = auth.SetTokenString(ctx, "automation-token")

	rec := httptest.NewRecorder()
	HandleAdminListUsers(env.admin)(rec, req.WithContext(ctx))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result []iam.UserRoles `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Result, 1)
	assert.Equal(t, "u-1", body.Result[0].User.ID)
}

func TestAdminRoles(t *testing.T) {
	env := newTestEnv(t, "http://unused.invalid")
	cookie := env.signIn(t, "admin")

	rec := env.request(t, http.MethodGet, "/admin/roles", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result []RoleDescriptor `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Result, 2)
	assert.Equal(t, "admin", body.Result[0].Key)
}

func TestSessionInfo(t *testing.T) {
	env := newTestEnv(t, "http://unused.invalid")

	rec := env.request(t, http.MethodGet, "/api/auth/session", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var record session.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, session.StatusUnauthenticated, record.Status)

	cookie := env.signIn(t, "admin", "viewer")
	rec = env.request(t, http.MethodGet, "/api/auth/session", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, session.StatusValid, record.Status)
	require.NotNil(t, record.User)
	assert.Equal(t, "176000000000000001", record.User.Subject)
	assert.Equal(t, []string{"admin", "viewer"}, record.User.Roles)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, "http://unused.invalid")
	cookie := env.signIn(t, "viewer")

	rec := env.request(t, http.MethodPost, "/auth/logout", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The same cookie no longer authenticates.
	rec = env.request(t, http.MethodGet, "/api/auth/session", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var record session.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, session.StatusUnauthenticated, record.Status)

	rec = env.request(t, http.MethodPost, "/auth/logout", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_BearerCallerRejected(t *testing.T) {
	env := newTestEnv(t, "http://unused.invalid")

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	ctx := auth.SetUserContext(req.Context(), auth.AuthenticatedPrincipal{
		Subject: "automation-1",
		Roles:   []string{"admin"},
	})

	rec := httptest.NewRecorder()
	HandleLogout(env.sync)(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no browser session", body["error"])
}

func TestAnnouncements(t *testing.T) {
	env := newTestEnv(t, "http://unused.invalid")

	rec := env.request(t, http.MethodGet, "/api/announcements", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := env.signIn(t, "viewer")
	rec = env.request(t, http.MethodGet, "/api/announcements", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result []models.Announcement `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Result, 1)
	assert.Equal(t, "maintenance-fsn1", body.Result[0].Slug)

	rec = env.request(t, http.MethodGet, "/api/announcements/maintenance-fsn1", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/announcements/nope", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInstances(t *testing.T) {
	env := newTestEnv(t, "http://unused.invalid")
	cookie := env.signIn(t, "viewer")

	rec := env.request(t, http.MethodGet, "/api/instances", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result []Instance `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Result, 4)
}
