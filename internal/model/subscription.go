package model

import (
	"time"
)

const (
	PlanWeekly  = "signaux-weekly"
	PlanMonthly = "signaux-monthly"

	SubscriptionActive   = "active"
	SubscriptionExpired  = "expired"
	SubscriptionCanceled = "canceled"
)

// PlanDurations 每个套餐对应的订阅周期
var PlanDurations = map[string]time.Duration{
	PlanWeekly:  7 * 24 * time.Hour,
	PlanMonthly: 30 * 24 * time.Hour,
}

type Subscription struct {
	ID                 int64      `gorm:"primaryKey" json:"id"`
	UserID             int64      `gorm:"not null;index" json:"user_id"`
	User               *User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	PlanCode           string     `gorm:"size:50;not null" json:"plan_code"`
	Status             string     `gorm:"size:20;default:active;index:idx_sub_status_end" json:"status"`
	CurrentPeriodStart time.Time  `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `gorm:"not null;index:idx_sub_status_end" json:"current_period_end"`
	AutoRenew          bool       `gorm:"default:true" json:"auto_renew"`
	TelegramUserID     *string    `gorm:"size:64" json:"telegram_user_id,omitempty"`
	TelegramJoinedAt   *time.Time `json:"telegram_joined_at,omitempty"`
	ReminderSentAt     *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
