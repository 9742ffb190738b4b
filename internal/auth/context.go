package auth

import "context"

// AuthenticatedPrincipal captures identity metadata propagated through the request context.
type AuthenticatedPrincipal struct {
	// Subject is the stable OIDC subject identifier.
	Subject string
	// Name is the display name from the ID token, when available.
	Name string
	// Email is optional and present when the provider released it.
	Email string
	// Picture is an optional avatar URL.
	Picture string
	// SessionID references the backing session row.
	SessionID string
	// Roles lists the project role keys granted to the user.
	Roles []string
}

// HasRole reports whether the principal holds the named role.
func (p AuthenticatedPrincipal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// SetUserContext stores the authenticated principal on the context for downstream consumers.
func SetUserContext(ctx context.Context, principal AuthenticatedPrincipal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// GetUserFromContext retrieves the authenticated principal from the context.
func GetUserFromContext(ctx context.Context) (AuthenticatedPrincipal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(AuthenticatedPrincipal)
	return principal, ok
}
