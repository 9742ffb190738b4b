package iam

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceAccountNotConfigured means no service-account key material
	// was provided; callers fall back to user tokens.
	ErrServiceAccountNotConfigured = errors.New("service account not configured")

	// ErrNoCredential means neither a service-account token nor a user
	// token could be produced for a provider API call.
	ErrNoCredential = errors.New("no credential available for provider call")
)

// ProviderError reports a non-success response from a provider API endpoint.
// The body is kept for logs; handlers map the status to their own taxonomy.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider returned %d: %s", e.Op, e.StatusCode, e.Body)
}
