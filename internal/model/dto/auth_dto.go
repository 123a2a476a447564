package dto

import "time"

// RegisterRequest 注册请求，密码与用户名策略在 service 层校验
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Username  string `json:"username" binding:"required,max=50"`
	Password  string `json:"password" binding:"required,max=128"`
	FirstName string `json:"first_name" binding:"max=100"`
	LastName  string `json:"last_name" binding:"max=100"`
	Phone     string `json:"phone" binding:"max=30"`
}

// LoginRequest 登录请求，开启 2FA 的账号需同时提交 TOTP 或备用码
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	SessionToken string    `json:"session_token,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	User         *UserInfo `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// OAuthLoginRequest code 来自第三方回调，state 由 OAuthURL 生成
type OAuthLoginRequest struct {
	Provider string `json:"provider" binding:"required"`
	Code     string `json:"code" binding:"required"`
	State    string `json:"state"`
}

type OAuthURLResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// TwoFactorSetupResponse 备用码只在开启时返回一次
type TwoFactorSetupResponse struct {
	Secret      string   `json:"secret"`
	URI         string   `json:"uri"`
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

type TwoFactorCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// SendCodeRequest destination 为空时使用账号上的邮箱或手机号
type SendCodeRequest struct {
	CodeType    string `json:"code_type" binding:"required,oneof=sms email"`
	Destination string `json:"destination"`
}

type VerifyCodeRequest struct {
	CodeType string `json:"code_type" binding:"required,oneof=sms email"`
	Code     string `json:"code" binding:"required"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	Username         string     `json:"username"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Phone            string     `json:"phone,omitempty"`
	IsActive         bool       `json:"is_active"`
	IsVerified       bool       `json:"is_verified"`
	IsPremium        bool       `json:"is_premium"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// DashboardResponse 账单统计
type DashboardResponse struct {
	User                *UserInfo `json:"user"`
	TotalSubscriptions  int64     `json:"total_subscriptions"`
	ActiveSubscriptions int64     `json:"active_subscriptions"`
	TotalSpent          float64   `json:"total_spent"`
	MemberSince         time.Time `json:"member_since"`
}

// LogoutRequest session_token 为空时登出全部会话
type LogoutRequest struct {
	SessionToken string `json:"session_token"`
}
