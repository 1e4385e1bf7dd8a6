package model

import (
	"time"
)

type AllowanceFrequency string

const (
	FrequencyDaily    AllowanceFrequency = "daily"
	FrequencyWeekly   AllowanceFrequency = "weekly"
	FrequencyBiweekly AllowanceFrequency = "biweekly"
	FrequencyMonthly  AllowanceFrequency = "monthly"
)

func (f AllowanceFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// PaymentDate returns the date of payment n of a schedule whose payment 0
// falls on first. Monthly payments keep first's day of month, moved back to
// the last day of shorter months.
func (f AllowanceFrequency) PaymentDate(first time.Time, n int) time.Time {
	switch f {
	case FrequencyDaily:
		return first.AddDate(0, 0, n)
	case FrequencyWeekly:
		return first.AddDate(0, 0, 7*n)
	case FrequencyBiweekly:
		return first.AddDate(0, 0, 14*n)
	default:
		return addMonthsClamped(first, n)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	// day 1 never overflows, so the target month is exact
	target := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := target.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Allowance is a recurring deposit from a parent into a child's wallet.
type Allowance struct {
	ID               int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	ParentID         int64              `gorm:"index;not null" json:"parent_id"`
	ChildID          int64              `gorm:"index;not null" json:"child_id"`
	Amount           int64              `gorm:"not null;check:amount > 0" json:"amount"`
	Frequency        AllowanceFrequency `gorm:"type:varchar(16);not null" json:"frequency"`
	FirstPaymentDate time.Time          `gorm:"not null" json:"first_payment_date"`
	NextPaymentDate  time.Time          `gorm:"index;not null" json:"next_payment_date"`
	IsActive         bool               `gorm:"index;not null" json:"is_active"`
	PaymentsMade     int                `gorm:"not null;default:0" json:"payments_made"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Allowance) TableName() string {
	return "allowance"
}

// FollowingPayment is the payment date after the one currently due.
func (a *Allowance) FollowingPayment() time.Time {
	return a.Frequency.PaymentDate(a.FirstPaymentDate, a.PaymentsMade+1)
}
