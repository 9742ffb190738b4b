package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/hlab-io/openconsole/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260801000000, down_20260801000000)
}

// up_20260801000000 creates the console schema
func up_20260801000000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating sessions table...")
	_, err := db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	// Cookie lookups go through the token hash; sweeping goes by expiry.
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create index on sessions expiry: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_user_subject ON sessions(user_subject)`)
	if err != nil {
		return fmt.Errorf("failed to create index on sessions subject: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating announcements table...")
	_, err = db.NewCreateTable().
		Model((*models.Announcement)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create announcements table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_announcements_published_at ON announcements(published_at)`)
	if err != nil {
		return fmt.Errorf("failed to create index on announcements: %w", err)
	}

	if IsPostgreSQL(db) {
		_, err = db.Exec(`ALTER TABLE sessions ALTER COLUMN roles TYPE JSONB USING roles::jsonb`)
		if err != nil {
			return fmt.Errorf("failed to ensure roles column is jsonb: %w", err)
		}
	}
	fmt.Println(" OK")

	return nil
}

// down_20260801000000 drops the console schema
func down_20260801000000(ctx context.Context, db *bun.DB) error {
	for _, table := range []string{"announcements", "sessions"} {
		if _, err := db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
	}
	return nil
}
