package model

import (
	"time"
)

// ============================================================================
// Transaction types
// ============================================================================

type TransactionType string

const (
	TransactionTypeDeposit              TransactionType = "deposit"
	TransactionTypeWithdrawal           TransactionType = "withdrawal"
	TransactionTypeTransferToSavings    TransactionType = "transfer_to_savings"
	TransactionTypeTransferToInvestment TransactionType = "transfer_to_investment"
	TransactionTypeMissionReward        TransactionType = "mission_reward"
	TransactionTypePurchase             TransactionType = "purchase"
	TransactionTypeAllowance            TransactionType = "allowance"
	TransactionTypeMarketplaceSale      TransactionType = "marketplace_sale"
	TransactionTypeMarketplacePurchase  TransactionType = "marketplace_purchase"
)

type Currency string

const (
	CurrencyReal    Currency = "real"
	CurrencyVirtual Currency = "virtual"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusApproved  TransactionStatus = "approved"
	TransactionStatusRejected  TransactionStatus = "rejected"
	TransactionStatusCompleted TransactionStatus = "completed"
)

// Metadata is an opaque attachment. It is stored and returned as-is and
// never inspected by the ledger.
type Metadata map[string]any

// ============================================================================
// Transaction
// ============================================================================

// Transaction is one balance-affecting event.
//
// Rows are append-only. The single permitted update moves Status from
// pending to approved or rejected. Amount is always a positive magnitude;
// the direction follows from Type. BalanceBefore/After track the zone the
// Currency points at (real money or coins).
type Transaction struct {
	ID                     int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo          string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID                 int64             `gorm:"index:idx_tx_user_created,priority:1;not null" json:"user_id"`
	Type                   TransactionType   `gorm:"type:varchar(32);index;not null" json:"type"`
	Amount                 int64             `gorm:"not null;check:amount > 0" json:"amount"`
	Currency               Currency          `gorm:"type:varchar(16);not null" json:"currency"`
	Description            string            `gorm:"type:varchar(256)" json:"description"`
	Status                 TransactionStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	ParentApprovalRequired bool              `gorm:"not null;default:false" json:"parent_approval_required"`
	ApprovedBy             *int64            `json:"approved_by,omitempty"`
	ApprovedAt             *time.Time        `json:"approved_at,omitempty"`
	BalanceBefore          int64             `gorm:"not null" json:"balance_before"`
	BalanceAfter           int64             `gorm:"not null" json:"balance_after"`
	Metadata               Metadata          `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt              time.Time         `gorm:"index:idx_tx_user_created,priority:2" json:"created_at"`
}

func (Transaction) TableName() string {
	return "ledger_transaction"
}
