package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
)

// DefaultPassword 满足密码策略的测试密码
const DefaultPassword = "Password123"

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// HashPassword 低成本 bcrypt，测试用
func HashPassword(t *testing.T, password string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	return string(hash)
}

// TestUser 创建测试用户（已验证、已激活，密码为 DefaultPassword）
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := nextSeq()
	passwordHash := HashPassword(t, DefaultPassword)
	user := &model.User{
		Email:        fmt.Sprintf("test_%d@example.com", n),
		Username:     fmt.Sprintf("testuser%d", n),
		PasswordHash: &passwordHash,
		IsActive:     true,
		IsVerified:   true,
	}

	for _, opt := range opts {
		opt(user)
	}

	isActive, isVerified := user.IsActive, user.IsVerified
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	// gorm 对 bool 零值使用列默认值，这里显式落库
	if !isActive || !isVerified {
		err := db.Model(user).Updates(map[string]interface{}{
			"is_active":   isActive,
			"is_verified": isVerified,
		}).Error
		if err != nil {
			t.Fatalf("Failed to update test user flags: %v", err)
		}
		user.IsActive, user.IsVerified = isActive, isVerified
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithPassword 设置密码
func WithPassword(t *testing.T, password string) func(*model.User) {
	return func(u *model.User) {
		hash := HashPassword(t, password)
		u.PasswordHash = &hash
	}
}

// WithoutPassword 仅第三方登录的用户
func WithoutPassword() func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = nil
	}
}

// WithInactive 禁用账号
func WithInactive() func(*model.User) {
	return func(u *model.User) {
		u.IsActive = false
	}
}

// WithUnverified 邮箱未验证
func WithUnverified() func(*model.User) {
	return func(u *model.User) {
		u.IsVerified = false
	}
}

// WithTwoFactor 开启 TOTP
func WithTwoFactor(secret string) func(*model.User) {
	return func(u *model.User) {
		u.TwoFactorSecret = &secret
		u.TwoFactorEnabled = true
	}
}

// TestSubscription 创建测试订阅
func TestSubscription(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	now := time.Now()
	sub := &model.Subscription{
		UserID:             userID,
		PlanCode:           model.PlanMonthly,
		Status:             model.SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.Add(model.PlanDurations[model.PlanMonthly]),
		AutoRenew:          true,
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithPeriodEnd 设置周期结束时间
func WithPeriodEnd(end time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.CurrentPeriodEnd = end
		if !s.CurrentPeriodStart.Before(end) {
			s.CurrentPeriodStart = end.Add(-model.PlanDurations[model.PlanMonthly])
		}
	}
}

// WithSubscriptionStatus 设置订阅状态
func WithSubscriptionStatus(status string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Status = status
	}
}

// WithTelegramUser 绑定 Telegram 用户
func WithTelegramUser(telegramUserID string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.TelegramUserID = &telegramUserID
		joined := time.Now()
		s.TelegramJoinedAt = &joined
	}
}

// TestPayment 创建测试支付记录
func TestPayment(t *testing.T, db *gorm.DB, userID int64, status string, amount float64) *model.Payment {
	t.Helper()

	payment := &model.Payment{
		UserID:      userID,
		ServiceCode: model.PlanMonthly,
		Amount:      amount,
		Currency:    "USD",
		Status:      status,
		Provider:    model.ProviderCard,
	}

	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}

	return payment
}

// TestSession 创建测试会话
func TestSession(t *testing.T, db *gorm.DB, userID int64, token string, expiresAt time.Time) *model.UserSession {
	t.Helper()

	session := &model.UserSession{
		UserID:       userID,
		SessionToken: token,
		IsActive:     true,
		ExpiresAt:    expiresAt,
	}

	if err := db.Create(session).Error; err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}

	return session
}
