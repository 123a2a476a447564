package service

import (
	"context"

	"github.com/qs3c/calmness_server/internal/model"
)

// Notifier 出站通知，实现方只负责投递到队列，不在请求路径上发送
type Notifier interface {
	SendVerificationEmail(ctx context.Context, user *model.User, token string) error
	SendPasswordReset(ctx context.Context, user *model.User, token string) error
	SendWelcome(ctx context.Context, user *model.User) error
	SendTwoFactorCode(ctx context.Context, userID int64, channel, destination, code string) error
	SendExpiryReminder(ctx context.Context, user *model.User, sub *model.Subscription) error
	RevokeChannelAccess(ctx context.Context, sub *model.Subscription) error
}
