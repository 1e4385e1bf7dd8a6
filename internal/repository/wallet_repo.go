package repository

import (
	"context"
	"errors"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/model"

	"gorm.io/gorm"
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, tx *gorm.DB, wallet *model.Wallet) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(wallet).Error
}

func (r *WalletRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.Wallet, error) {
	if tx == nil {
		tx = r.db
	}
	var wallet model.Wallet
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// Save writes the balances of next over the row read as before.
//
// The write is conditioned on before.Version; if anything else touched the
// wallet since it was read, nothing is written and ErrConflict comes back.
// On success next carries the bumped version.
func (r *WalletRepository) Save(ctx context.Context, tx *gorm.DB, before *model.Wallet, next *model.Wallet, now time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", before.ID, before.Version).
		Updates(map[string]interface{}{
			"real_money_balance":    next.RealMoneyBalance,
			"virtual_coins_balance": next.VirtualCoinsBalance,
			"savings_balance":       next.SavingsBalance,
			"investment_balance":    next.InvestmentBalance,
			"version":               gorm.Expr("version + 1"),
			"updated_at":            now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.ErrConflict
	}

	next.Version = before.Version + 1
	next.UpdatedAt = now
	return nil
}
