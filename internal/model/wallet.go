package model

import (
	"time"
)

// Wallet holds the four balance zones of one child user.
//
// Real-money zones are in cents, VirtualCoinsBalance in whole coins. No zone
// may go negative; the check constraints back up the service-level checks.
// Version is the optimistic lock: every balance write bumps it and is
// conditioned on the value that was read.
type Wallet struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	RealMoneyBalance    int64     `gorm:"not null;default:0;check:real_money_balance >= 0" json:"real_money_balance"`
	VirtualCoinsBalance int64     `gorm:"not null;default:0;check:virtual_coins_balance >= 0" json:"virtual_coins_balance"`
	SavingsBalance      int64     `gorm:"not null;default:0;check:savings_balance >= 0" json:"savings_balance"`
	InvestmentBalance   int64     `gorm:"not null;default:0;check:investment_balance >= 0" json:"investment_balance"`
	Version             int       `gorm:"not null;default:0" json:"version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}

// TotalReal is every real-money zone added together.
func (w *Wallet) TotalReal() int64 {
	return w.RealMoneyBalance + w.SavingsBalance + w.InvestmentBalance
}

// Balance is the read-only snapshot handed to callers.
type Balance struct {
	UserID       int64     `json:"user_id"`
	RealMoney    int64     `json:"real_money"`
	VirtualCoins int64     `json:"virtual_coins"`
	Savings      int64     `json:"savings"`
	Investment   int64     `json:"investment"`
	TotalReal    int64     `json:"total_real"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (w *Wallet) Snapshot() Balance {
	return Balance{
		UserID:       w.UserID,
		RealMoney:    w.RealMoneyBalance,
		VirtualCoins: w.VirtualCoinsBalance,
		Savings:      w.SavingsBalance,
		Investment:   w.InvestmentBalance,
		TotalReal:    w.TotalReal(),
		UpdatedAt:    w.UpdatedAt,
	}
}

// WalletDelta is a signed change per zone applied in one write.
type WalletDelta struct {
	RealMoney    int64
	VirtualCoins int64
	Savings      int64
	Investment   int64
}

// Apply returns the balances after d, and false if any zone would go negative.
func (w Wallet) Apply(d WalletDelta) (Wallet, bool) {
	w.RealMoneyBalance += d.RealMoney
	w.VirtualCoinsBalance += d.VirtualCoins
	w.SavingsBalance += d.Savings
	w.InvestmentBalance += d.Investment
	ok := w.RealMoneyBalance >= 0 && w.VirtualCoinsBalance >= 0 &&
		w.SavingsBalance >= 0 && w.InvestmentBalance >= 0
	return w, ok
}
