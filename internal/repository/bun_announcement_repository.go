package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/hlab-io/openconsole/internal/db/models"
)

// BunAnnouncementRepository implements AnnouncementRepository using Bun ORM
type BunAnnouncementRepository struct {
	db *bun.DB
}

// NewBunAnnouncementRepository creates a new Bun-based announcement repository
func NewBunAnnouncementRepository(db *bun.DB) *BunAnnouncementRepository {
	return &BunAnnouncementRepository{db: db}
}

// Create inserts a new announcement
func (r *BunAnnouncementRepository) Create(ctx context.Context, a *models.Announcement) error {
	_, err := r.db.NewInsert().
		Model(a).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// GetBySlug retrieves an announcement by its slug
func (r *BunAnnouncementRepository) GetBySlug(ctx context.Context, slug string) (*models.Announcement, error) {
	a := new(models.Announcement)
	err := r.db.NewSelect().
		Model(a).
		Where("slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get announcement: %w", err)
	}
	return a, nil
}

// List returns announcements, newest first
func (r *BunAnnouncementRepository) List(ctx context.Context, limit int) ([]models.Announcement, error) {
	var announcements []models.Announcement
	q := r.db.NewSelect().
		Model(&announcements).
		Order("published_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return announcements, nil
}
