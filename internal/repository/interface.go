package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hlab-io/openconsole/internal/db/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// TokenUpdate carries the outcome of a successful token refresh.
type TokenUpdate struct {
	AccessToken    string
	IDToken        string
	RefreshToken   string
	TokenExpiresAt time.Time
}

// SessionRepository persists server-side credential sessions.
//
// Writers are the auth callback (Create), the token lifecycle manager
// (UpdateTokens, MarkRefreshFailed) and the synchronizer (Revoke); everything
// else only reads.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)

	// UpdateTokens applies a refresh outcome to a live session. Revoked
	// sessions are never updated; the bool result reports whether a row
	// actually changed, so a refresh that lost the race against sign-out
	// can be discarded.
	UpdateTokens(ctx context.Context, id string, update TokenUpdate) (bool, error)

	// MarkRefreshFailed flags a terminal refresh rejection while retaining
	// the stale tokens.
	MarkRefreshFailed(ctx context.Context, id string) error

	UpdateLastUsed(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error

	// DeleteExpired removes sessions past their lifetime; returns the number
	// of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// AnnouncementRepository persists dashboard announcements.
type AnnouncementRepository interface {
	Create(ctx context.Context, a *models.Announcement) error
	GetBySlug(ctx context.Context, slug string) (*models.Announcement, error)
	List(ctx context.Context, limit int) ([]models.Announcement, error)
}
