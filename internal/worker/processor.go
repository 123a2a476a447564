package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/pkg/logger"
	"github.com/qs3c/calmness_server/internal/pkg/queue"
)

const tracerName = "github.com/qs3c/calmness_server/internal/worker"

var (
	ErrUnknownJob     = errors.New("unknown job type")
	ErrUnknownChannel = errors.New("unknown code channel")
	ErrMissingField   = errors.New("job is missing required field")
)

// EmailSender 由 pkg/email 实现
type EmailSender interface {
	SendVerification(to, username, token string) error
	SendPasswordReset(to, username, token string) error
	SendWelcome(to, username string) error
	SendCode(to, code string) error
	SendExpiryReminder(to, username, planCode string, periodEnd time.Time) error
}

// SMSSender 由 pkg/sms 实现
type SMSSender interface {
	SendCode(ctx context.Context, to, code string) error
}

// ChannelRemover 由 pkg/telegram 实现
type ChannelRemover interface {
	RemoveMember(ctx context.Context, telegramUserID string) error
}

// Processor 按任务类型投递通知
type Processor struct {
	email    EmailSender
	sms      SMSSender
	channels ChannelRemover
	log      logger.Logger
}

func NewProcessor(email EmailSender, sms SMSSender, channels ChannelRemover, log logger.Logger) *Processor {
	return &Processor{
		email:    email,
		sms:      sms,
		channels: channels,
		log:      log,
	}
}

// Process 处理单个任务，返回错误时由调用方决定是否重试
func (p *Processor) Process(ctx context.Context, msg *queue.JobMessage) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "worker."+string(msg.Type))
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", msg.ID),
		attribute.Int64("job.user_id", msg.UserID),
		attribute.Int("job.attempts", msg.Attempts),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	switch msg.Type {
	case queue.JobEmailVerification:
		return p.email.SendVerification(msg.To, msg.Username, msg.Token)
	case queue.JobPasswordReset:
		return p.email.SendPasswordReset(msg.To, msg.Username, msg.Token)
	case queue.JobWelcome:
		return p.email.SendWelcome(msg.To, msg.Username)
	case queue.JobTwoFactorCode:
		return p.sendCode(ctx, msg)
	case queue.JobExpiryReminder:
		if msg.PeriodEnd == nil {
			return fmt.Errorf("%w: period_end", ErrMissingField)
		}
		return p.email.SendExpiryReminder(msg.To, msg.Username, msg.PlanCode, *msg.PeriodEnd)
	case queue.JobChannelRevoke:
		if msg.TelegramUserID == "" {
			return fmt.Errorf("%w: telegram_user_id", ErrMissingField)
		}
		return p.channels.RemoveMember(ctx, msg.TelegramUserID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.Type)
	}
}

func (p *Processor) sendCode(ctx context.Context, msg *queue.JobMessage) error {
	switch msg.Channel {
	case model.CodeTypeEmail:
		return p.email.SendCode(msg.To, msg.Code)
	case model.CodeTypeSMS:
		return p.sms.SendCode(ctx, msg.To, msg.Code)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChannel, msg.Channel)
	}
}

// Retryable 格式错误的任务重试也不会成功
func Retryable(err error) bool {
	return !errors.Is(err, ErrUnknownJob) && !errors.Is(err, ErrUnknownChannel) && !errors.Is(err, ErrMissingField)
}
