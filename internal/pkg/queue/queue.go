package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type JobType string

const (
	JobEmailVerification JobType = "email_verification"
	JobPasswordReset     JobType = "password_reset"
	JobWelcome           JobType = "welcome"
	JobTwoFactorCode     JobType = "two_factor_code"
	JobExpiryReminder    JobType = "expiry_reminder"
	JobChannelRevoke     JobType = "channel_revoke"
)

// MaxAttempts 单个通知最多投递次数
const MaxAttempts = 3

type Queue struct {
	client    *redis.Client
	queueName string
}

// JobMessage 通知任务，按 Type 使用不同字段
type JobMessage struct {
	ID             string     `json:"id"`
	Type           JobType    `json:"type"`
	UserID         int64      `json:"user_id,omitempty"`
	Channel        string     `json:"channel,omitempty"` // two_factor_code: email / sms
	To             string     `json:"to,omitempty"`
	Username       string     `json:"username,omitempty"`
	Token          string     `json:"token,omitempty"`
	Code           string     `json:"code,omitempty"`
	PlanCode       string     `json:"plan_code,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	SubscriptionID int64      `json:"subscription_id,omitempty"`
	TelegramUserID string     `json:"telegram_user_id,omitempty"`
	Attempts       int        `json:"attempts"`
	CreatedAt      time.Time  `json:"created_at"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 将任务加入队列
func (q *Queue) Push(ctx context.Context, msg *JobMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取任务（阻塞）
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*JobMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无任务
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg JobMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Retry 重新入队，超过 MaxAttempts 返回 false
func (q *Queue) Retry(ctx context.Context, msg *JobMessage) (bool, error) {
	msg.Attempts++
	if msg.Attempts >= MaxAttempts {
		return false, nil
	}
	return true, q.Push(ctx, msg)
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
