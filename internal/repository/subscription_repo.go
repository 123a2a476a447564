package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID int64) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&subs).Error
	return subs, err
}

// CountByUser 返回全部订阅数和当前有效订阅数
func (r *SubscriptionRepository) CountByUser(ctx context.Context, userID int64) (total, active int64, err error) {
	if err = r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err = r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("user_id = ? AND status = ?", userID, model.SubscriptionActive).
		Count(&active).Error
	return total, active, err
}

// ListExpiringSoon 有效且 now < end <= until，本周期内尚未提醒过
func (r *SubscriptionRepository) ListExpiringSoon(ctx context.Context, now, until time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("status = ? AND current_period_end > ? AND current_period_end <= ?", model.SubscriptionActive, now, until).
		Where("reminder_sent_at IS NULL OR reminder_sent_at < current_period_start").
		Order("current_period_end ASC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ?", id).
		Update("reminder_sent_at", at).Error
}

// ExpireDue 将 end <= now 的有效订阅批量置为 expired，返回本次被转换的订阅
func (r *SubscriptionRepository) ExpireDue(ctx context.Context, now time.Time) ([]model.Subscription, error) {
	var expired []model.Subscription
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []model.Subscription
		if err := tx.Where("status = ? AND current_period_end <= ?", model.SubscriptionActive, now).
			Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(due))
		for _, s := range due {
			ids = append(ids, s.ID)
		}
		if err := tx.Model(&model.Subscription{}).
			Where("id IN ? AND status = ?", ids, model.SubscriptionActive).
			Update("status", model.SubscriptionExpired).Error; err != nil {
			return err
		}

		for i := range due {
			due[i].Status = model.SubscriptionExpired
		}
		expired = due
		return nil
	})
	return expired, err
}

func (r *SubscriptionRepository) CountDue(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("status = ? AND current_period_end <= ?", model.SubscriptionActive, now).
		Count(&count).Error
	return count, err
}
