package dto

import "time"

type CreatePaymentMethodRequest struct {
	Provider string                 `json:"provider" binding:"required"`
	Label    string                 `json:"label" binding:"max=100"`
	Details  map[string]interface{} `json:"details" binding:"required"`
}

// PaymentMethodInfo 不包含任何支付细节
type PaymentMethodInfo struct {
	ID        int64     `json:"id"`
	Provider  string    `json:"provider"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

type InitPaymentRequest struct {
	ServiceCode    string                 `json:"service_code" binding:"required"`
	Amount         float64                `json:"amount" binding:"required"`
	Currency       string                 `json:"currency"`
	Provider       string                 `json:"provider" binding:"required"`
	IdempotencyKey string                 `json:"idempotency_key" binding:"max=128"`
	Metadata       map[string]interface{} `json:"metadata"`
}

type PaymentInfo struct {
	ID             int64     `json:"id"`
	ServiceCode    string    `json:"service_code"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	Provider       string    `json:"provider"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type CreateSubscriptionRequest struct {
	PlanCode       string `json:"plan_code" binding:"required"`
	TelegramUserID string `json:"telegram_user_id"`
	AutoRenew      *bool  `json:"auto_renew"`
}

type SubscriptionInfo struct {
	ID                 int64     `json:"id"`
	PlanCode           string    `json:"plan_code"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	AutoRenew          bool      `json:"auto_renew"`
}

type AdminConfigRequest struct {
	Key   string `json:"key" binding:"required,max=100"`
	Value string `json:"value" binding:"required"`
}

type AdminConfigInfo struct {
	ID  int64  `json:"id"`
	Key string `json:"key"`
}

// AdminConfigValue 仅管理接口返回明文
type AdminConfigValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
