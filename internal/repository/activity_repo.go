package repository

import (
	"context"
	"time"

	"kidledger/internal/model"

	"gorm.io/gorm"
)

type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.ActivityLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// ListSince returns entries newer than since, newest first.
func (r *ActivityRepository) ListSince(ctx context.Context, userID int64, since time.Time) ([]*model.ActivityLog, error) {
	entries := []*model.ActivityLog{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Order("id DESC").
		Find(&entries).Error
	return entries, err
}

func (r *ActivityRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*model.ActivityLog, error) {
	entries := []*model.ActivityLog{}
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&entries).Error
	return entries, err
}
