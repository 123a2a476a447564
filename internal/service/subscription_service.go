package service

import (
	"context"
	"errors"
	"time"

	"github.com/qs3c/calmness_server/internal/pkg/logger"
	"github.com/qs3c/calmness_server/internal/repository"
)

const defaultReminderWindow = 48 * time.Hour

type SubscriptionService struct {
	subs           *repository.SubscriptionRepository
	notifier       Notifier
	log            logger.Logger
	reminderWindow time.Duration
	now            func() time.Time
}

func NewSubscriptionService(
	subs *repository.SubscriptionRepository,
	notifier Notifier,
	log logger.Logger,
	reminderWindow time.Duration,
) *SubscriptionService {
	if reminderWindow <= 0 {
		reminderWindow = defaultReminderWindow
	}
	return &SubscriptionService{
		subs:           subs,
		notifier:       notifier,
		log:            log,
		reminderWindow: reminderWindow,
		now:            time.Now,
	}
}

// RemindExpiring 对即将到期的订阅每个周期只提醒一次
func (s *SubscriptionService) RemindExpiring(ctx context.Context) (int, error) {
	now := s.now()
	subs, err := s.subs.ListExpiringSoon(ctx, now, now.Add(s.reminderWindow))
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		if sub.User == nil {
			continue
		}
		if err := s.notifier.SendExpiryReminder(ctx, sub.User, sub); err != nil {
			s.log.Error(ctx, "enqueue expiry reminder failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		if err := s.subs.MarkReminderSent(ctx, sub.ID, now); err != nil {
			s.log.Error(ctx, "mark reminder sent failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

// ExpireDue 到期订阅置为 expired，并撤销其频道成员资格
func (s *SubscriptionService) ExpireDue(ctx context.Context) (int, error) {
	expired, err := s.subs.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	for i := range expired {
		sub := &expired[i]
		if sub.TelegramUserID == nil {
			continue
		}
		if err := s.notifier.RevokeChannelAccess(ctx, sub); err != nil {
			s.log.Error(ctx, "enqueue channel revoke failed", "subscription_id", sub.ID, "error", err)
		}
	}
	return len(expired), nil
}

// Tick 两个阶段互不影响，任一失败只记录日志
func (s *SubscriptionService) Tick(ctx context.Context) error {
	var errs []error

	reminded, err := s.RemindExpiring(ctx)
	if err != nil {
		s.log.Error(ctx, "reminder pass failed", "error", err)
		errs = append(errs, err)
	}

	expired, err := s.ExpireDue(ctx)
	if err != nil {
		s.log.Error(ctx, "expiry pass failed", "error", err)
		errs = append(errs, err)
	}

	if reminded > 0 || expired > 0 {
		s.log.Info(ctx, "subscription sweep", "reminded", reminded, "expired", expired)
	}
	return errors.Join(errs...)
}
