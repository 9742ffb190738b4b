package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2"

	"github.com/hlab-io/openconsole/internal/db/models"
	"github.com/hlab-io/openconsole/internal/repository"
)

// mockSessionRepo is an in-memory SessionRepository with the same write
// semantics as the bun implementation.
type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session

	updateCalls     int
	markFailedCalls int
	revokeCalls     int
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*models.Session)}
}

func (m *mockSessionRepo) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) GetByTokenHash(_ context.Context, hash string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockSessionRepo) UpdateTokens(_ context.Context, id string, update repository.TokenUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	s, ok := m.sessions[id]
	if !ok || s.Revoked {
		return false, nil
	}
	s.AccessToken = update.AccessToken
	s.IDToken = update.IDToken
	s.RefreshToken = update.RefreshToken
	s.TokenExpiresAt = update.TokenExpiresAt
	return true, nil
}

func (m *mockSessionRepo) MarkRefreshFailed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markFailedCalls++
	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.RefreshFailed = true
	return nil
}

func (m *mockSessionRepo) UpdateLastUsed(_ context.Context, id string) error { return nil }

func (m *mockSessionRepo) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeCalls++
	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Revoked = true
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	return 0, nil
}

// fakeRefresher returns canned refresh results and counts provider calls.
type fakeRefresher struct {
	mu    sync.Mutex
	calls int

	accessToken  string
	idToken      string
	refreshToken string
	expiresIn    time.Duration
	err          error

	// block, when set, holds every refresh until released so tests can pile
	// up concurrent callers.
	block chan struct{}
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) (*oidc.Tokens[*oidc.IDTokenClaims], error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &oidc.Tokens[*oidc.IDTokenClaims]{
		Token: &oauth2.Token{
			AccessToken:  f.accessToken,
			RefreshToken: f.refreshToken,
			Expiry:       time.Now().Add(f.expiresIn),
		},
		IDToken: f.idToken,
	}, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seedSession(t *testing.T, repo *mockSessionRepo, tokenExpiry time.Time) *models.Session {
	t.Helper()
	sess := &models.Session{
		ID:             "sess-1",
		TokenHash:      "hash-1",
		UserSubject:    "user-1",
		Roles:          models.RoleList{"viewer"},
		AccessToken:    "at-old",
		IDToken:        "idt-old",
		RefreshToken:   "rt-old",
		TokenExpiresAt: tokenExpiry,
		ExpiresAt:      time.Now().Add(12 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), sess))
	return sess
}

func TestAccessToken_FreshTokenSkipsProvider(t *testing.T) {
	repo := newMockSessionRepo()
	refresher := &fakeRefresher{}
	mgr := NewManager(repo, refresher, time.Minute)

	sess := seedSession(t, repo, time.Now().Add(30*time.Minute))

	token, err := mgr.AccessToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "at-old", token)
	assert.Equal(t, 0, refresher.callCount())
}

func TestAccessToken_StaleTokenRefreshes(t *testing.T) {
	repo := newMockSessionRepo()
	refresher := &fakeRefresher{
		accessToken:  "at-new",
		idToken:      "idt-new",
		refreshToken: "rt-new",
		expiresIn:    time.Hour,
	}
	mgr := NewManager(repo, refresher, time.Minute)

	sess := seedSession(t, repo, time.Now().Add(10*time.Second)) // inside the margin

	token, err := mgr.AccessToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "at-new", token)
	assert.Equal(t, 1, refresher.callCount())

	// The caller's session and the stored row both carry the new tokens.
	assert.Equal(t, "rt-new", sess.RefreshToken)
	stored, err := repo.GetByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "at-new", stored.AccessToken)
	assert.Equal(t, "rt-new", stored.RefreshToken)
}

func TestAccessToken_RotationOmittedKeepsRefreshToken(t *testing.T) {
	repo := newMockSessionRepo()
	refresher := &fakeRefresher{
		accessToken: "at-new",
		expiresIn:   time.Hour,
		// no refresh token in the response
	}
	mgr := NewManager(repo, refresher, time.Minute)

	sess := seedSession(t, repo, time.Now().Add(-time.Minute))

	_, err := mgr.AccessToken(context.Background(), sess)
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "rt-old", stored.RefreshToken)
}

func TestAccessToken_ProviderRejectionMarksFailure(t *testing.T) {
	repo := newMockSessionRepo()
	refresher := &fakeRefresher{err: errors.New("invalid_grant")}
	mgr := NewManager(repo, refresher, time.Minute)

	sess := seedSession(t, repo, time.Now().Add(-time.Minute))

	_, err := mgr.AccessToken(context.Background(), sess)
	require.ErrorIs(t, err, ErrRefreshFailed)

	stored, getErr := repo.GetByID(context.Background(), sess.ID)
	require.NoError(t, getErr)
	assert.True(t, stored.RefreshFailed)
	// Stale tokens stay on the row.
	assert.Equal(t, "at-old", stored.AccessToken)

	// Later calls fail without another provider round trip.
	_, err = mgr.AccessToken(context.Background(), stored)
	require.ErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, 1, refresher.callCount())
}

func TestAccessToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	repo := newMockSessionRepo()
	refresher := &fakeRefresher{
		accessToken:  "at-new",
		refreshToken: "rt-new",
		expiresIn:    time.Hour,
		block:        make(chan struct{}),
	}
	mgr := NewManager(repo, refresher, time.Minute)

	seedSession(t, repo, time.Now().Add(-time.Minute))

	const callers = 8
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		mu      sync.Mutex
		tokens  []string
	)
	started.Add(callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			sess, err := repo.GetByID(context.Background(), "sess-1")
			require.NoError(t, err)
			started.Done()
			token, err := mgr.AccessToken(context.Background(), sess)
			require.NoError(t, err)
			mu.Lock()
			tokens = append(tokens, token)
			mu.Unlock()
		}()
	}

	started.Wait()
	// Give the goroutines a moment to pile up on the singleflight key.
	time.Sleep(50 * time.Millisecond)
	close(refresher.block)
	wg.Wait()

	assert.Equal(t, 1, refresher.callCount())
	require.Len(t, tokens, callers)
	for _, token := range tokens {
		assert.Equal(t, "at-new", token)
	}
}

func TestAccessToken_SignOutDuringRefreshDiscardsResult(t *testing.T) {
	repo := newMockSessionRepo()
	refresher := &fakeRefresher{
		accessToken:  "at-new",
		refreshToken: "rt-new",
		expiresIn:    time.Hour,
	}
	mgr := NewManager(repo, refresher, time.Minute)

	sess := seedSession(t, repo, time.Now().Add(-time.Minute))

	// Revoke while the "provider call" is outstanding.
	refresher.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := mgr.AccessToken(context.Background(), sess)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, repo.Revoke(context.Background(), sess.ID))
	close(refresher.block)

	err := <-done
	require.ErrorIs(t, err, ErrSessionRevoked)

	stored, getErr := repo.GetByID(context.Background(), sess.ID)
	require.NoError(t, getErr)
	assert.True(t, stored.Revoked)
	assert.Equal(t, "at-old", stored.AccessToken, "refresh outcome must not land on a revoked session")
}

func TestAccessToken_SimulatedClock(t *testing.T) {
	repo := newMockSessionRepo()
	refresher := &fakeRefresher{
		accessToken:  "at-new",
		refreshToken: "rt-new",
		expiresIn:    time.Hour,
	}
	mgr := NewManager(repo, refresher, time.Minute)

	base := time.Now()
	now := base
	mgr.now = func() time.Time { return now }

	sess := seedSession(t, repo, base.Add(time.Hour))

	// Well before expiry: stored token is used.
	token, err := mgr.AccessToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "at-old", token)
	assert.Equal(t, 0, refresher.callCount())

	// 30 seconds before expiry, inside the one-minute margin.
	now = base.Add(time.Hour - 30*time.Second)
	token, err = mgr.AccessToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "at-new", token)
	assert.Equal(t, 1, refresher.callCount())
}
