package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for database primary keys.
// Time ordering keeps index pages warm and works on both PostgreSQL and
// SQLite without a gen_random_uuid() dependency. Generation only fails on
// entropy exhaustion, at which point nothing else would work either.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
