package model

import (
	"time"
)

const (
	ProviderBank   = "bank"
	ProviderMobile = "mobile"
	ProviderCard   = "card"
	ProviderCrypto = "crypto"
	ProviderPaypal = "paypal"

	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

var PaymentProviders = map[string]bool{
	ProviderBank:   true,
	ProviderMobile: true,
	ProviderCard:   true,
	ProviderCrypto: true,
	ProviderPaypal: true,
}

type PaymentMethod struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	UserID           int64     `gorm:"not null;index" json:"user_id"`
	User             *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Provider         string    `gorm:"size:20;not null" json:"provider"`
	Label            string    `gorm:"size:100" json:"label"`
	DetailsEncrypted string    `gorm:"type:text;not null" json:"-"`
	IsActive         bool      `gorm:"default:true" json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
}

func (PaymentMethod) TableName() string {
	return "payment_methods"
}

type Payment struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	UserID         int64     `gorm:"not null;index" json:"user_id"`
	User           *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ServiceCode    string    `gorm:"size:50;not null" json:"service_code"`
	Amount         float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency       string    `gorm:"size:10;default:USD" json:"currency"`
	Status         string    `gorm:"size:20;default:pending;index" json:"status"`
	Provider       string    `gorm:"size:20;not null" json:"provider"`
	ProviderTxnID  *string   `gorm:"size:255" json:"provider_txn_id,omitempty"`
	Metadata       string    `gorm:"type:text" json:"metadata,omitempty"`
	IdempotencyKey *string   `gorm:"size:128;uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

type AdminConfig struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	Key            string    `gorm:"size:100;uniqueIndex;not null" json:"key"`
	ValueEncrypted string    `gorm:"type:text;not null" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (AdminConfig) TableName() string {
	return "admin_configs"
}

// AuditLog 敏感操作审计记录
type AuditLog struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    *int64    `gorm:"index" json:"user_id,omitempty"`
	Action    string    `gorm:"size:100;not null;index" json:"action"`
	Detail    string    `gorm:"type:text" json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// AllModels 需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&OAuthAccount{},
		&UserSession{},
		&TwoFactorCode{},
		&TwoFactorBackupCode{},
		&PaymentMethod{},
		&Payment{},
		&Subscription{},
		&AdminConfig{},
		&AuditLog{},
	}
}
