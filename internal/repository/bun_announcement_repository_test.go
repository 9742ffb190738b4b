package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlab-io/openconsole/internal/db/bunx"
	"github.com/hlab-io/openconsole/internal/db/models"
)

func TestBunAnnouncementRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunAnnouncementRepository(db)
	ctx := context.Background()

	older := &models.Announcement{
		ID:          bunx.NewUUIDv7(),
		Slug:        "scheduled-maintenance",
		Title:       "Scheduled maintenance",
		Body:        "Storage nodes will be migrated.",
		Severity:    "maintenance",
		PublishedAt: time.Now().Add(-48 * time.Hour),
	}
	newer := &models.Announcement{
		ID:          bunx.NewUUIDv7(),
		Slug:        "new-regions",
		Title:       "New regions available",
		Severity:    "info",
		PublishedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	t.Run("list newest first", func(t *testing.T) {
		got, err := repo.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "new-regions", got[0].Slug)
		assert.Equal(t, "scheduled-maintenance", got[1].Slug)
	})

	t.Run("get by slug", func(t *testing.T) {
		got, err := repo.GetBySlug(ctx, "scheduled-maintenance")
		require.NoError(t, err)
		assert.Equal(t, "maintenance", got.Severity)
	})

	t.Run("missing slug", func(t *testing.T) {
		_, err := repo.GetBySlug(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
