package iam

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// defaultFanout bounds concurrent grant lookups against the provider.
const defaultFanout = 8

// UserRoles pairs a provider account with its flattened project role keys.
type UserRoles struct {
	User  User     `json:"user"`
	Roles []string `json:"roles"`
}

// Aggregator collects per-user grants from the provider, fanning out one
// lookup per user.
type Aggregator struct {
	client *Client
	fanout int
}

// NewAggregator creates an Aggregator over the management client.
func NewAggregator(client *Client) *Aggregator {
	return &Aggregator{client: client, fanout: defaultFanout}
}

// Collect resolves the role keys for every user. The result preserves the
// input order. A failed lookup yields empty roles for that user rather than
// failing the whole listing; the failure is logged.
func (a *Aggregator) Collect(ctx context.Context, token string, users []User) []UserRoles {
	results := make([]UserRoles, len(users))

	g := new(errgroup.Group)
	g.SetLimit(a.fanout)
	for i, user := range users {
		i, user := i, user
		g.Go(func() error {
			grants, err := a.client.SearchUserGrants(ctx, token, user.ID)
			if err != nil {
				log.Warn().Err(err).Str("user_id", user.ID).Msg("grant lookup failed, listing user without roles")
				results[i] = UserRoles{User: user, Roles: []string{}}
				return nil
			}
			results[i] = UserRoles{User: user, Roles: flattenRoles(grants)}
			return nil
		})
	}
	// Lookups absorb their own errors; Wait is just the join barrier.
	_ = g.Wait()

	return results
}

// flattenRoles merges role keys across grants, first occurrence wins.
func flattenRoles(grants []Grant) []string {
	seen := make(map[string]bool)
	roles := make([]string, 0)
	for _, g := range grants {
		for _, role := range g.RoleKeys {
			if !seen[role] {
				seen[role] = true
				roles = append(roles, role)
			}
		}
	}
	return roles
}
