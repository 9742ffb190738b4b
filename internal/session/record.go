package session

import (
	"time"

	"github.com/hlab-io/openconsole/internal/db/models"
)

// Status describes the lifecycle state of a browser session.
type Status string

const (
	// StatusUnauthenticated means no usable session exists.
	StatusUnauthenticated Status = "unauthenticated"
	// StatusValid means the stored access token is fresh enough to use.
	StatusValid Status = "valid"
	// StatusRefreshing means the access token is near expiry and the next
	// access will trigger a refresh.
	StatusRefreshing Status = "refreshing"
	// StatusRefreshFailed means the provider rejected the refresh token and
	// the session must be signed out.
	StatusRefreshFailed Status = "refreshFailed"
)

// UserInfo is the profile subset surfaced to the browser.
type UserInfo struct {
	Subject string   `json:"sub"`
	Name    string   `json:"name,omitempty"`
	Email   string   `json:"email,omitempty"`
	Picture string   `json:"picture,omitempty"`
	Roles   []string `json:"roles"`
}

// Record is the session snapshot returned to the browser. It never contains
// token material.
type Record struct {
	Status    Status     `json:"status"`
	User      *UserInfo  `json:"user,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// BuildRecord derives the externally visible session state from a stored
// session row. A nil, revoked or expired row reads as unauthenticated.
func BuildRecord(sess *models.Session, now time.Time, margin time.Duration) Record {
	if sess == nil || sess.Revoked || now.After(sess.ExpiresAt) {
		return Record{Status: StatusUnauthenticated}
	}

	roles := sess.Roles
	if roles == nil {
		roles = []string{}
	}
	user := &UserInfo{
		Subject: sess.UserSubject,
		Name:    sess.UserName,
		Email:   sess.UserEmail,
		Picture: sess.UserPicture,
		Roles:   roles,
	}

	rec := Record{
		User:      user,
		ExpiresAt: &sess.ExpiresAt,
	}

	switch {
	case sess.RefreshFailed:
		rec.Status = StatusRefreshFailed
	case sess.AccessToken != "" && now.Before(sess.TokenExpiresAt.Add(-margin)):
		rec.Status = StatusValid
	default:
		rec.Status = StatusRefreshing
	}
	return rec
}
