// Package notify hands outgoing notifications to the Redis job queue so the
// request path never waits on SMTP, SMS or Telegram.
package notify

import (
	"context"

	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/pkg/queue"
)

type QueueNotifier struct {
	q *queue.Queue
}

func NewQueueNotifier(q *queue.Queue) *QueueNotifier {
	return &QueueNotifier{q: q}
}

func (n *QueueNotifier) SendVerificationEmail(ctx context.Context, user *model.User, token string) error {
	return n.q.Push(ctx, &queue.JobMessage{
		Type:     queue.JobEmailVerification,
		UserID:   user.ID,
		To:       user.Email,
		Username: user.Username,
		Token:    token,
	})
}

func (n *QueueNotifier) SendPasswordReset(ctx context.Context, user *model.User, token string) error {
	return n.q.Push(ctx, &queue.JobMessage{
		Type:     queue.JobPasswordReset,
		UserID:   user.ID,
		To:       user.Email,
		Username: user.Username,
		Token:    token,
	})
}

func (n *QueueNotifier) SendWelcome(ctx context.Context, user *model.User) error {
	return n.q.Push(ctx, &queue.JobMessage{
		Type:     queue.JobWelcome,
		UserID:   user.ID,
		To:       user.Email,
		Username: user.Username,
	})
}

// SendTwoFactorCode channel 为 model.CodeTypeSMS 或 model.CodeTypeEmail
func (n *QueueNotifier) SendTwoFactorCode(ctx context.Context, userID int64, channel, destination, code string) error {
	return n.q.Push(ctx, &queue.JobMessage{
		Type:    queue.JobTwoFactorCode,
		UserID:  userID,
		Channel: channel,
		To:      destination,
		Code:    code,
	})
}

func (n *QueueNotifier) SendExpiryReminder(ctx context.Context, user *model.User, sub *model.Subscription) error {
	end := sub.CurrentPeriodEnd
	return n.q.Push(ctx, &queue.JobMessage{
		Type:           queue.JobExpiryReminder,
		UserID:         user.ID,
		To:             user.Email,
		Username:       user.Username,
		PlanCode:       sub.PlanCode,
		PeriodEnd:      &end,
		SubscriptionID: sub.ID,
	})
}

func (n *QueueNotifier) RevokeChannelAccess(ctx context.Context, sub *model.Subscription) error {
	if sub.TelegramUserID == nil {
		return nil
	}
	return n.q.Push(ctx, &queue.JobMessage{
		Type:           queue.JobChannelRevoke,
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		TelegramUserID: *sub.TelegramUserID,
	})
}
