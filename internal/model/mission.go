package model

import (
	"time"
)

type MissionType string

const (
	MissionTypeSaveMoney         MissionType = "save_money"
	MissionTypeLearnVideo        MissionType = "learn_video"
	MissionTypeMakeDecision      MissionType = "make_decision"
	MissionTypePredictInvestment MissionType = "predict_investment"
	MissionTypeCompleteTask      MissionType = "complete_task"
	MissionTypeStreak            MissionType = "streak"
	MissionTypeQuiz              MissionType = "quiz"
)

var validMissionTypes = map[MissionType]bool{
	MissionTypeSaveMoney:         true,
	MissionTypeLearnVideo:        true,
	MissionTypeMakeDecision:      true,
	MissionTypePredictInvestment: true,
	MissionTypeCompleteTask:      true,
	MissionTypeStreak:            true,
	MissionTypeQuiz:              true,
}

func (t MissionType) Valid() bool {
	return validMissionTypes[t]
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Mission is an admin-authored template. RewardCoins is never updated once
// written so instances always pay what they were offered.
type Mission struct {
	ID           int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Title        string      `gorm:"type:varchar(128);not null" json:"title"`
	Description  string      `gorm:"type:varchar(512)" json:"description"`
	Type         MissionType `gorm:"type:varchar(32);index;not null" json:"type"`
	Difficulty   Difficulty  `gorm:"type:varchar(16);not null" json:"difficulty"`
	RewardCoins  int64       `gorm:"not null;check:reward_coins > 0" json:"reward_coins"`
	TargetValue  *int64      `json:"target_value,omitempty"`
	DurationDays *int        `json:"duration_days,omitempty"`
	AgeMin       int         `gorm:"not null" json:"age_min"`
	AgeMax       int         `gorm:"not null" json:"age_max"`
	IsActive     bool        `gorm:"index;not null" json:"is_active"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (Mission) TableName() string {
	return "mission"
}

func (m *Mission) AcceptsAge(age int) bool {
	return age >= m.AgeMin && age <= m.AgeMax
}

// ============================================================================
// Mission instance state machine
// ============================================================================

type MissionStatus string

const (
	MissionStatusActive    MissionStatus = "active"
	MissionStatusCompleted MissionStatus = "completed"
	MissionStatusFailed    MissionStatus = "failed"
	MissionStatusExpired   MissionStatus = "expired"
)

// Only active instances move. Everything else is terminal.
var ValidMissionTransitions = map[MissionStatus][]MissionStatus{
	MissionStatusActive: {MissionStatusCompleted, MissionStatusFailed, MissionStatusExpired},
}

func CanTransitionTo(current, target MissionStatus) bool {
	allowed, exists := ValidMissionTransitions[current]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

const MaxProgress = 100

// UserMission is one user's run at a mission template.
type UserMission struct {
	ID            int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64         `gorm:"index:idx_user_mission,priority:1;not null" json:"user_id"`
	MissionID     int64         `gorm:"index:idx_user_mission,priority:2;not null" json:"mission_id"`
	Status        MissionStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	Progress      int           `gorm:"not null;default:0;check:progress >= 0 AND progress <= 100" json:"progress"`
	CurrentValue  *int64        `json:"current_value,omitempty"`
	StartedAt     time.Time     `gorm:"not null" json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	ExpiresAt     *time.Time    `gorm:"index" json:"expires_at,omitempty"`
	RewardClaimed bool          `gorm:"not null;default:false" json:"reward_claimed"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (UserMission) TableName() string {
	return "user_mission"
}

func (um *UserMission) ExpiredAt(now time.Time) bool {
	return um.ExpiresAt != nil && !now.Before(*um.ExpiresAt)
}

// MissionWithDetails pairs an instance with its template for dashboard reads.
type MissionWithDetails struct {
	UserMission *UserMission `json:"user_mission"`
	Mission     *Mission     `json:"mission"`
}
