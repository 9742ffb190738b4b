package auth

import (
	"fmt"
	"sort"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
)

// Profile is the subset of ID-token claims the console keeps on the session.
type Profile struct {
	Subject string
	Name    string
	Email   string
	Picture string
}

// ParseIDTokenClaims decodes a JWT ID token without signature verification.
// The token has already been verified during code exchange; this is only used
// to re-read claims from a token we stored ourselves.
func ParseIDTokenClaims(idToken string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("parse ID token: %w", err)
	}
	return claims, nil
}

// ExtractProfile reads the standard profile claims from an ID-token claim set.
// The subject is mandatory; everything else is best effort.
func ExtractProfile(claims map[string]any) (Profile, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Profile{}, fmt.Errorf("sub claim missing")
	}

	profile := Profile{Subject: sub}
	if v, ok := claims["name"].(string); ok {
		profile.Name = v
	}
	if v, ok := claims["email"].(string); ok {
		profile.Email = v
	}
	if v, ok := claims["picture"].(string); ok {
		profile.Picture = v
	}
	return profile, nil
}

// ExtractRoles flattens the provider's project-roles claim into role keys.
// Supports:
//   - Object form: {"admin": {"org-id": "org.domain"}} (role keyed by name)
//   - Flat arrays: ["admin", "viewer"]
//
// A missing claim means the user has no roles, which is not an error. The
// result is sorted so the role set does not depend on map iteration order.
func ExtractRoles(claims map[string]any, claimField string) ([]string, error) {
	rawValue, ok := claims[claimField]
	if !ok || rawValue == nil {
		return []string{}, nil
	}

	// Flat string array
	if list, ok := rawValue.([]interface{}); ok {
		result := make([]string, 0, len(list))
		for _, v := range list {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
		sort.Strings(result)
		return result, nil
	}

	// Object keyed by role name; only the keys matter
	var grants map[string]map[string]interface{}
	if err := mapstructure.Decode(rawValue, &grants); err != nil {
		return nil, fmt.Errorf("decode roles claim: %w", err)
	}

	result := make([]string, 0, len(grants))
	for role := range grants {
		result = append(result, role)
	}
	sort.Strings(result)
	return result, nil
}
