package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/hlab-io/openconsole/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260801000001, down_20260801000001)
}

var seedAnnouncements = []models.Announcement{
	{
		Slug:     "welcome",
		Title:    "Welcome to the operator console",
		Body:     "Manage your instances, team access and maintenance windows from one place.",
		Severity: "info",
	},
	{
		Slug:     "ipv4-pricing-change",
		Title:    "IPv4 address pricing change",
		Body:     "Starting next month, additional IPv4 addresses are billed per address. Existing allocations are unaffected.",
		Severity: "info",
	},
}

// up_20260801000001 seeds the initial announcements
func up_20260801000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding announcements...")
	now := time.Now()
	for _, a := range seedAnnouncements {
		a.ID = uuid.Must(uuid.NewV7()).String()
		a.PublishedAt = now
		a.CreatedAt = now
		_, err := db.NewInsert().
			Model(&a).
			On("CONFLICT (slug) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed announcement %s: %w", a.Slug, err)
		}
	}
	fmt.Println(" OK")
	return nil
}

// down_20260801000001 removes the seeded announcements
func down_20260801000001(ctx context.Context, db *bun.DB) error {
	for _, a := range seedAnnouncements {
		if _, err := db.NewDelete().
			Model((*models.Announcement)(nil)).
			Where("slug = ?", a.Slug).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to remove announcement %s: %w", a.Slug, err)
		}
	}
	return nil
}
