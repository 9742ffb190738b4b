package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Announcement is a platform notice shown on the console dashboard.
type Announcement struct {
	bun.BaseModel `bun:"table:announcements,alias:a"`

	ID          string    `bun:"id,pk"`
	Slug        string    `bun:"slug,notnull,unique"`
	Title       string    `bun:"title,notnull"`
	Body        string    `bun:"body"`
	Severity    string    `bun:"severity,notnull,default:'info'"` // info, maintenance, incident
	PublishedAt time.Time `bun:"published_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
