package model

import (
	"encoding/json"
	"time"
)

type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusSent    OutboxStatus = "SENT"
	OutboxStatusFailed  OutboxStatus = "FAILED"
)

// Event names carried in OutboxMessage.EventType.
const (
	EventWalletCredited   = "wallet.credited"
	EventWalletDebited    = "wallet.debited"
	EventWalletTransfer   = "wallet.transferred"
	EventApprovalRequest  = "approval.requested"
	EventApprovalResolved = "approval.resolved"
	EventMissionStarted   = "mission.started"
	EventMissionProgress  = "mission.progressed"
	EventMissionCompleted = "mission.completed"
	EventMissionClaimed   = "mission.reward_claimed"
	EventMissionExpired   = "mission.expired"
	EventMissionFailed    = "mission.failed"
)

// OutboxMessage is written in the same database transaction as the change
// it describes and published later by the outbox sender.
type OutboxMessage struct {
	ID         int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string       `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string       `gorm:"type:varchar(64);not null" json:"topic"`
	EventType  string       `gorm:"type:varchar(64);not null" json:"event_type"`
	UserID     int64        `gorm:"index;not null" json:"user_id"`
	Payload    string       `gorm:"type:text;not null" json:"payload"`
	Status     OutboxStatus `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int          `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time    `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// Event is the envelope serialized into OutboxMessage.Payload.
type Event struct {
	Type       string         `json:"type"`
	UserID     int64          `json:"user_id"`
	ActorID    int64          `json:"actor_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

func (e Event) Encode() string {
	b, _ := json.Marshal(e)
	return string(b)
}
