package repository

import (
	"context"
	"errors"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Transaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.Transaction
	err := tx.WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// ListByUserID returns newest first. limit <= 0 returns the full history.
func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&transactions).Error
	return transactions, err
}

// ListPendingApprovals returns pending rows that wait for a parent, across userIDs.
func (r *TransactionRepository) ListPendingApprovals(ctx context.Context, userIDs []int64) ([]*model.Transaction, error) {
	transactions := []*model.Transaction{}
	if len(userIDs) == 0 {
		return transactions, nil
	}
	err := r.db.WithContext(ctx).
		Where("user_id IN ? AND status = ? AND parent_approval_required = ?", userIDs, model.TransactionStatusPending, true).
		Order("created_at DESC").
		Order("id DESC").
		Find(&transactions).Error
	return transactions, err
}

// Resolve moves a pending row to a terminal status and stamps the approver.
// It is the only update a transaction row ever receives; amounts and balances
// stay as they were recorded.
func (r *TransactionRepository) Resolve(ctx context.Context, tx *gorm.DB, id int64, status model.TransactionStatus, approverID int64, at time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"approved_by": approverID,
			"approved_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.ErrNotPending
	}
	return nil
}

// SumAmount adds up completed rows of one type and currency since a point in time.
func (r *TransactionRepository) SumAmount(ctx context.Context, userID int64, typ model.TransactionType, currency model.Currency, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND type = ? AND currency = ? AND created_at >= ?", userID, typ, currency, since).
		Scan(&total).Error
	return total, err
}
