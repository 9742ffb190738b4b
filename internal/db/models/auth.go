package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// RoleList stores a deduplicated role set as a JSON array.
type RoleList []string

// Contains reports membership in the role list.
func (r RoleList) Contains(role string) bool {
	for _, have := range r {
		if have == role {
			return true
		}
	}
	return false
}

// Scan implements sql.Scanner for reading from database
func (r *RoleList) Scan(value any) error {
	if value == nil {
		*r = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan RoleList: expected []byte or string, got %T", value)
	}
	return json.Unmarshal(bytes, r)
}

// Value implements driver.Valuer for writing to database
func (r RoleList) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Session is the server-side credential record for one browser session.
// It is the only place the provider tokens live; the client only ever sees
// the opaque session cookie and the restricted session view.
//
// TokenExpiresAt is the provider-reported access-token expiry, stored
// without adjustment; readers apply the refresh margin. ExpiresAt bounds
// the session itself regardless of token refreshes.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID        string `bun:"id,pk"`
	TokenHash string `bun:"token_hash,notnull,unique"`

	UserSubject string `bun:"user_subject,notnull"`
	UserName    string `bun:"user_name"`
	UserEmail   string `bun:"user_email"`
	UserPicture string `bun:"user_picture"`

	Roles RoleList `bun:"roles,type:jsonb,notnull,default:'[]'"`

	AccessToken    string    `bun:"access_token,notnull"`
	IDToken        string    `bun:"id_token"`
	RefreshToken   string    `bun:"refresh_token"`
	TokenExpiresAt time.Time `bun:"token_expires_at,notnull"`

	// RefreshFailed marks a terminal refresh-grant rejection. The record is
	// kept (with stale tokens) until the synchronizer forces sign-out.
	RefreshFailed bool `bun:"refresh_failed,notnull,default:false"`

	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt time.Time `bun:"last_used_at"`
	Revoked    bool      `bun:"revoked,notnull,default:false"`
}
