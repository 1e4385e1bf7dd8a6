package repository

import (
	"context"
	"errors"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/model"

	"gorm.io/gorm"
)

type AllowanceRepository struct {
	db *gorm.DB
}

func NewAllowanceRepository(db *gorm.DB) *AllowanceRepository {
	return &AllowanceRepository{db: db}
}

func (r *AllowanceRepository) Create(ctx context.Context, tx *gorm.DB, allowance *model.Allowance) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(allowance).Error
}

func (r *AllowanceRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Allowance, error) {
	if tx == nil {
		tx = r.db
	}
	var allowance model.Allowance
	err := tx.WithContext(ctx).Where("id = ?", id).First(&allowance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrAllowanceNotFound
		}
		return nil, err
	}
	return &allowance, nil
}

func (r *AllowanceRepository) ListByChildID(ctx context.Context, childID int64) ([]*model.Allowance, error) {
	allowances := []*model.Allowance{}
	err := r.db.WithContext(ctx).
		Where("child_id = ?", childID).
		Order("id ASC").
		Find(&allowances).Error
	return allowances, err
}

// ListDue returns active allowances whose next payment is at or before now.
func (r *AllowanceRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Allowance, error) {
	var allowances []*model.Allowance
	query := r.db.WithContext(ctx).
		Where("is_active = ? AND next_payment_date <= ?", true, now).
		Order("next_payment_date ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&allowances).Error
	return allowances, err
}

// Advance records one payment. It only succeeds against the payment count the
// caller read, so a period cannot be paid twice.
func (r *AllowanceRepository) Advance(ctx context.Context, tx *gorm.DB, allowance *model.Allowance, next time.Time, now time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Allowance{}).
		Where("id = ? AND is_active = ? AND payments_made = ?", allowance.ID, true, allowance.PaymentsMade).
		Updates(map[string]interface{}{
			"next_payment_date": next,
			"payments_made":     gorm.Expr("payments_made + 1"),
			"updated_at":        now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.ErrConflict
	}
	return nil
}

func (r *AllowanceRepository) Deactivate(ctx context.Context, id int64, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Allowance{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.ErrAllowanceNotFound
	}
	return nil
}
