package model

import (
	"time"
)

type User struct {
	ID               int64      `gorm:"primaryKey" json:"id"`
	Email            string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Username         string     `gorm:"size:100;uniqueIndex;not null" json:"username"`
	PasswordHash     *string    `gorm:"size:255" json:"-"`
	FirstName        string     `gorm:"size:100" json:"first_name"`
	LastName         string     `gorm:"size:100" json:"last_name"`
	Phone            *string    `gorm:"size:30" json:"phone,omitempty"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	IsVerified       bool       `gorm:"default:false" json:"is_verified"`
	IsPremium        bool       `gorm:"default:false" json:"is_premium"`
	TwoFactorEnabled bool       `gorm:"default:false" json:"two_factor_enabled"`
	TwoFactorSecret  *string    `gorm:"size:64" json:"-"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// OAuthAccount 第三方账号绑定，(provider, provider_user_id) 唯一
type OAuthAccount struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	UserID         int64      `gorm:"not null;index" json:"user_id"`
	User           *User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Provider       string     `gorm:"size:20;not null;uniqueIndex:idx_oauth_provider_user" json:"provider"`
	ProviderUserID string     `gorm:"size:255;not null;uniqueIndex:idx_oauth_provider_user" json:"provider_user_id"`
	ProviderEmail  string     `gorm:"size:255" json:"provider_email"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (OAuthAccount) TableName() string {
	return "oauth_accounts"
}

type UserSession struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	UserID       int64     `gorm:"not null;index" json:"user_id"`
	User         *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	SessionToken string    `gorm:"size:255;uniqueIndex;not null" json:"-"`
	DeviceInfo   string    `gorm:"size:500" json:"device_info"`
	IPAddress    string    `gorm:"size:64" json:"ip_address"`
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`
	ExpiresAt    time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func (UserSession) TableName() string {
	return "user_sessions"
}

// Usable 会话是否仍可用
func (s *UserSession) Usable(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

const (
	CodeTypeSMS   = "sms"
	CodeTypeEmail = "email"
)

type TwoFactorCode struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	UserID      int64     `gorm:"not null;index:idx_2fa_code_lookup" json:"user_id"`
	User        *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Code        string    `gorm:"size:10;not null;index:idx_2fa_code_lookup" json:"-"`
	CodeType    string    `gorm:"size:10;not null;index:idx_2fa_code_lookup" json:"code_type"`
	Destination string    `gorm:"size:255" json:"destination"`
	IsUsed      bool      `gorm:"default:false" json:"is_used"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (TwoFactorCode) TableName() string {
	return "two_factor_codes"
}

type TwoFactorBackupCode struct {
	ID        int64      `gorm:"primaryKey" json:"id"`
	UserID    int64      `gorm:"not null;index" json:"user_id"`
	User      *User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CodeHash  string     `gorm:"size:255;not null" json:"-"`
	IsUsed    bool       `gorm:"default:false" json:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (TwoFactorBackupCode) TableName() string {
	return "two_factor_backup_codes"
}
