package model

import (
	"time"
)

const (
	ActionAccountCreated   = "account_created"
	ActionDeposit          = "deposit"
	ActionAllowance        = "allowance"
	ActionTransferSavings  = "transfer_to_savings"
	ActionTransferInvest   = "transfer_to_investment"
	ActionCoinsAwarded     = "coins_awarded"
	ActionCoinsSpent       = "coins_spent"
	ActionPurchaseRequest  = "purchase_requested"
	ActionApprovalResolved = "approval_resolved"
	ActionMissionStarted   = "mission_started"
	ActionMissionProgress  = "mission_progress"
	ActionMissionCompleted = "mission_completed"
	ActionRewardClaimed    = "reward_claimed"
	ActionMissionExpired   = "mission_expired"
	ActionMissionFailed    = "mission_failed"
	ActionAllowanceCreated = "allowance_created"
)

// ActivityLog is the append-only audit trail. ActorID is whoever caused the
// change and may differ from UserID (a parent depositing for a child).
type ActivityLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"index:idx_activity_user_created,priority:1;not null" json:"user_id"`
	ActorID     int64     `gorm:"not null" json:"actor_id"`
	ActionType  string    `gorm:"type:varchar(32);not null" json:"action_type"`
	Description string    `gorm:"type:varchar(256);not null" json:"description"`
	Metadata    Metadata  `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt   time.Time `gorm:"index:idx_activity_user_created,priority:2" json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_log"
}
