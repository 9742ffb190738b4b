package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hlab-io/openconsole/internal/repository"
)

// Synchronizer keeps the stored session state in step with token lifecycle
// outcomes. Its main job is turning a terminal refresh failure into a forced
// sign-out that happens exactly once, no matter how many concurrent requests
// observe the failure.
type Synchronizer struct {
	repo repository.SessionRepository

	// mu serializes sign-outs so concurrent observers of the same failure
	// cannot both revoke.
	mu sync.Mutex
}

// NewSynchronizer creates a Synchronizer over the session store.
func NewSynchronizer(repo repository.SessionRepository) *Synchronizer {
	return &Synchronizer{repo: repo}
}

// SignOut revokes the session. It reports whether this call performed the
// revocation; an already revoked or missing session is a no-op, which gives
// forced sign-out its exactly-once behaviour.
func (s *Synchronizer) SignOut(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load session: %w", err)
	}
	if sess.Revoked {
		return false, nil
	}

	if err := s.repo.Revoke(ctx, sessionID); err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	return true, nil
}

// HandleRefreshFailure is called when the token lifecycle reports that the
// provider rejected a refresh. The session is signed out; the stale tokens
// stay on the revoked row for audit.
func (s *Synchronizer) HandleRefreshFailure(ctx context.Context, sessionID string) {
	signedOut, err := s.SignOut(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("forced sign-out after refresh failure did not complete")
		return
	}
	if signedOut {
		log.Info().Str("session_id", sessionID).Msg("session signed out after refresh failure")
	}
}
