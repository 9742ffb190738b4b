package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/sync/singleflight"

	"github.com/hlab-io/openconsole/internal/db/models"
	"github.com/hlab-io/openconsole/internal/repository"
)

var (
	// ErrRefreshFailed means the provider rejected the refresh token. The
	// session is unrecoverable and must be signed out.
	ErrRefreshFailed = errors.New("token refresh rejected by provider")

	// ErrSessionRevoked means the session was signed out while a token
	// operation was in flight. The operation's outcome is discarded.
	ErrSessionRevoked = errors.New("session revoked")
)

// TokenRefresher exchanges a refresh token for a new token set at the
// identity provider.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oidc.Tokens[*oidc.IDTokenClaims], error)
}

// Manager owns the access-token lifecycle for browser sessions. It hands out
// stored tokens while they are fresh and refreshes them at the provider once
// they fall within the expiry margin. Refreshes for the same session are
// deduplicated so concurrent requests cost a single provider round trip.
type Manager struct {
	repo      repository.SessionRepository
	refresher TokenRefresher
	margin    time.Duration

	group singleflight.Group
	now   func() time.Time
}

// NewManager creates a Manager. margin is subtracted from the stored token
// expiry when deciding whether a refresh is needed.
func NewManager(repo repository.SessionRepository, refresher TokenRefresher, margin time.Duration) *Manager {
	return &Manager{
		repo:      repo,
		refresher: refresher,
		margin:    margin,
		now:       time.Now,
	}
}

// AccessToken returns a provider access token for the session, refreshing it
// first when it is stale. The passed session is updated in place with the
// refresh outcome so callers observe the new token state.
func (m *Manager) AccessToken(ctx context.Context, sess *models.Session) (string, error) {
	if sess.Revoked {
		return "", ErrSessionRevoked
	}
	if sess.RefreshFailed {
		return "", ErrRefreshFailed
	}
	if m.fresh(sess) {
		return sess.AccessToken, nil
	}

	v, err, _ := m.group.Do(sess.ID, func() (interface{}, error) {
		return m.refresh(ctx, sess.ID)
	})
	if err != nil {
		return "", err
	}

	refreshed := v.(*models.Session)
	*sess = *refreshed
	return sess.AccessToken, nil
}

// fresh reports whether the stored token is still safely usable.
func (m *Manager) fresh(sess *models.Session) bool {
	return sess.AccessToken != "" && m.now().Before(sess.TokenExpiresAt.Add(-m.margin))
}

// refresh performs the provider round trip for one session. It re-reads the
// row first so a refresh completed by an earlier caller is reused instead of
// repeated.
func (m *Manager) refresh(ctx context.Context, id string) (*models.Session, error) {
	sess, err := m.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Revoked {
		return nil, ErrSessionRevoked
	}
	if sess.RefreshFailed {
		return nil, ErrRefreshFailed
	}
	if m.fresh(sess) {
		return sess, nil
	}

	if sess.RefreshToken == "" {
		m.markFailed(ctx, id)
		return nil, fmt.Errorf("%w: no refresh token on session", ErrRefreshFailed)
	}

	tokens, err := m.refresher.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		m.markFailed(ctx, id)
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	update := repository.TokenUpdate{
		AccessToken:    tokens.AccessToken,
		IDToken:        tokens.IDToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokens.Expiry,
	}
	// Providers may omit the refresh token when rotation is disabled; the
	// stored one stays valid in that case.
	if update.RefreshToken == "" {
		update.RefreshToken = sess.RefreshToken
	}

	applied, err := m.repo.UpdateTokens(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("store refreshed tokens: %w", err)
	}
	if !applied {
		// The session was signed out while the refresh was in flight.
		return nil, ErrSessionRevoked
	}

	sess.AccessToken = update.AccessToken
	sess.IDToken = update.IDToken
	sess.RefreshToken = update.RefreshToken
	sess.TokenExpiresAt = update.TokenExpiresAt
	return sess, nil
}

func (m *Manager) markFailed(ctx context.Context, id string) {
	if err := m.repo.MarkRefreshFailed(ctx, id); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("failed to mark session refresh failure")
	}
}
