package iam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/hlab-io/openconsole/internal/db/models"
	"github.com/hlab-io/openconsole/internal/session"
)

const saCacheKey = "service-account"

// serviceTokenMargin is the safety window under the minted token's expiry;
// a cached token this close to expiring is replaced.
const serviceTokenMargin = 5 * time.Minute

// Resolver picks the credential for management API calls. A configured
// service account wins; minted tokens are cached until near expiry. Without a
// service account (or when minting fails) the caller's own access token is
// used instead.
type Resolver struct {
	minter  *AssertionMinter
	manager *session.Manager

	mu    sync.Mutex
	cache *expirable.LRU[string, MintedToken]
	now   func() time.Time
}

// NewResolver creates a Resolver. minter may be nil when no service account
// is configured; every call then resolves to the caller's token.
func NewResolver(minter *AssertionMinter, manager *session.Manager) *Resolver {
	return &Resolver{
		minter:  minter,
		manager: manager,
		// The cache holds a single service-account token; the TTL is a
		// backstop under the provider's own expiry.
		cache: expirable.NewLRU[string, MintedToken](1, nil, time.Hour),
		now:   time.Now,
	}
}

// Resolve returns an access token for a management call made on behalf of
// the caller. Browser callers carry a session row; automation callers carry
// the provider access token they authenticated with. Both may be absent for
// background work, in which case only the service account can serve the call.
func (r *Resolver) Resolve(ctx context.Context, sess *models.Session, bearerToken string) (string, error) {
	if r.minter != nil {
		token, err := r.serviceToken(ctx)
		if err == nil {
			return token, nil
		}
		log.Warn().Err(err).Msg("service-account token unavailable, falling back to caller token")
	}

	if sess != nil {
		token, err := r.manager.AccessToken(ctx, sess)
		if err != nil {
			return "", fmt.Errorf("resolve user token: %w", err)
		}
		return token, nil
	}

	if bearerToken != "" {
		return bearerToken, nil
	}

	return "", ErrNoCredential
}

func (r *Resolver) serviceToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache.Get(saCacheKey); ok {
		if r.now().Before(cached.ExpiresAt.Add(-serviceTokenMargin)) {
			return cached.AccessToken, nil
		}
		r.cache.Remove(saCacheKey)
	}

	minted, err := r.minter.Mint(ctx)
	if err != nil {
		return "", err
	}
	r.cache.Add(saCacheKey, minted)
	return minted.AccessToken, nil
}
