package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/database"
	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/model/dto"
	"github.com/qs3c/calmness_server/internal/pkg/apperr"
	"github.com/qs3c/calmness_server/internal/repository"
)

const (
	AuditPaymentInit = "payment_init"
	defaultCurrency  = "USD"
)

var (
	ErrInvalidAmount       = apperr.BadRequest("Amount must be greater than 0")
	ErrInvalidProvider     = apperr.BadRequest("Unsupported payment provider")
	ErrUnknownPlan         = apperr.BadRequest("Unknown plan")
	ErrMethodNotFound      = apperr.NotFound("Payment method not found")
	ErrIdempotencyConflict = apperr.Conflict("Idempotency conflict")
	ErrAdminConfigExists   = apperr.Conflict("Config key already exists")
	ErrAdminConfigNotFound = apperr.NotFound("Config key not found")
)

// Sealer 加密落库的敏感字段
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

type BillingService struct {
	db       *gorm.DB
	payments *repository.PaymentRepository
	methods  *repository.PaymentMethodRepository
	subs     *repository.SubscriptionRepository
	configs  *repository.AdminConfigRepository
	audit    *repository.AuditRepository
	sealer   Sealer
	now      func() time.Time
}

func NewBillingService(
	db *gorm.DB,
	payments *repository.PaymentRepository,
	methods *repository.PaymentMethodRepository,
	subs *repository.SubscriptionRepository,
	configs *repository.AdminConfigRepository,
	audit *repository.AuditRepository,
	sealer Sealer,
) *BillingService {
	return &BillingService{
		db:       db,
		payments: payments,
		methods:  methods,
		subs:     subs,
		configs:  configs,
		audit:    audit,
		sealer:   sealer,
		now:      time.Now,
	}
}

// CreatePaymentMethod 支付细节序列化后加密保存
func (s *BillingService) CreatePaymentMethod(ctx context.Context, userID int64, req *dto.CreatePaymentMethodRequest) (*dto.PaymentMethodInfo, error) {
	if !model.PaymentProviders[req.Provider] {
		return nil, ErrInvalidProvider
	}

	raw, err := json.Marshal(req.Details)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadRequest("Invalid payment details"), err)
	}
	sealed, err := s.sealer.Seal(string(raw))
	if err != nil {
		return nil, fmt.Errorf("seal payment details: %w", err)
	}

	method := &model.PaymentMethod{
		UserID:           userID,
		Provider:         req.Provider,
		Label:            req.Label,
		DetailsEncrypted: sealed,
		IsActive:         true,
	}
	if err := s.methods.Create(ctx, method); err != nil {
		return nil, err
	}
	return toPaymentMethodInfo(method), nil
}

// ListPaymentMethods 只返回有效的支付方式，不解密
func (s *BillingService) ListPaymentMethods(ctx context.Context, userID int64) ([]*dto.PaymentMethodInfo, error) {
	methods, err := s.methods.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	list := make([]*dto.PaymentMethodInfo, 0, len(methods))
	for i := range methods {
		list = append(list, toPaymentMethodInfo(&methods[i]))
	}
	return list, nil
}

// DeletePaymentMethod 软删除，非本人的支付方式视为不存在
func (s *BillingService) DeletePaymentMethod(ctx context.Context, userID, methodID int64) error {
	ok, err := s.methods.Deactivate(ctx, methodID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMethodNotFound
	}
	return nil
}

// PaymentMethodDetails 解密支付细节，供支付确认流程使用
func (s *BillingService) PaymentMethodDetails(ctx context.Context, userID, methodID int64) (map[string]interface{}, error) {
	method, err := s.methods.GetOwned(ctx, methodID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMethodNotFound
		}
		return nil, err
	}

	plain, err := s.sealer.Open(method.DetailsEncrypted)
	if err != nil {
		return nil, fmt.Errorf("open payment details: %w", err)
	}
	var details map[string]interface{}
	if err := json.Unmarshal([]byte(plain), &details); err != nil {
		return nil, err
	}
	return details, nil
}

// InitPayment 幂等创建 pending 支付。相同 idempotency_key 的并发请求
// 由唯一索引决出一行，失败方查回并返回这一行
func (s *BillingService) InitPayment(ctx context.Context, userID int64, req *dto.InitPaymentRequest) (*dto.PaymentInfo, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !model.PaymentProviders[req.Provider] {
		return nil, ErrInvalidProvider
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	payment := &model.Payment{
		UserID:      userID,
		ServiceCode: req.ServiceCode,
		Amount:      req.Amount,
		Currency:    currency,
		Status:      model.PaymentPending,
		Provider:    req.Provider,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		payment.IdempotencyKey = &key
	}
	if len(req.Metadata) > 0 {
		meta, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, apperr.Wrap(apperr.BadRequest("Invalid metadata"), err)
		}
		payment.Metadata = string(meta)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.payments.WithTx(tx).Create(ctx, payment); err != nil {
			return err
		}
		return s.audit.WithTx(tx).Write(ctx, &userID, AuditPaymentInit, fmt.Sprintf("payment_id=%d", payment.ID))
	})
	if err == nil {
		return toPaymentInfo(payment), nil
	}

	if payment.IdempotencyKey == nil || !database.IsDuplicateKey(err) {
		return nil, err
	}

	existing, lookupErr := s.payments.GetByIdempotencyKey(ctx, *payment.IdempotencyKey)
	if lookupErr != nil {
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return nil, ErrIdempotencyConflict
		}
		return nil, lookupErr
	}
	if existing.UserID != userID {
		return nil, ErrIdempotencyConflict
	}
	return toPaymentInfo(existing), nil
}

// CreateSubscription 按套餐周期创建 active 订阅
func (s *BillingService) CreateSubscription(ctx context.Context, userID int64, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionInfo, error) {
	duration, ok := model.PlanDurations[req.PlanCode]
	if !ok {
		return nil, ErrUnknownPlan
	}

	now := s.now()
	sub := &model.Subscription{
		UserID:             userID,
		PlanCode:           req.PlanCode,
		Status:             model.SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.Add(duration),
		AutoRenew:          true,
	}
	if req.TelegramUserID != "" {
		tg := req.TelegramUserID
		sub.TelegramUserID = &tg
		sub.TelegramJoinedAt = &now
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}

	// auto_renew 列默认 true，显式关闭时单独落库
	if req.AutoRenew != nil && !*req.AutoRenew {
		if err := s.db.WithContext(ctx).Model(sub).Update("auto_renew", false).Error; err != nil {
			return nil, err
		}
		sub.AutoRenew = false
	}

	return &dto.SubscriptionInfo{
		ID:                 sub.ID,
		PlanCode:           sub.PlanCode,
		Status:             sub.Status,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		AutoRenew:          sub.AutoRenew,
	}, nil
}

// CreateAdminConfig 值加密保存，key 重复返回 Conflict
func (s *BillingService) CreateAdminConfig(ctx context.Context, req *dto.AdminConfigRequest) (*dto.AdminConfigInfo, error) {
	sealed, err := s.sealer.Seal(req.Value)
	if err != nil {
		return nil, fmt.Errorf("seal admin config: %w", err)
	}

	cfg := &model.AdminConfig{Key: req.Key, ValueEncrypted: sealed}
	if err := s.configs.Create(ctx, cfg); err != nil {
		if database.IsDuplicateKey(err) {
			return nil, ErrAdminConfigExists
		}
		return nil, err
	}
	return &dto.AdminConfigInfo{ID: cfg.ID, Key: cfg.Key}, nil
}

// AdminConfigValue 读取并解密配置
func (s *BillingService) AdminConfigValue(ctx context.Context, key string) (string, error) {
	cfg, err := s.configs.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrAdminConfigNotFound
		}
		return "", err
	}
	return s.sealer.Open(cfg.ValueEncrypted)
}

func toPaymentMethodInfo(m *model.PaymentMethod) *dto.PaymentMethodInfo {
	return &dto.PaymentMethodInfo{
		ID:        m.ID,
		Provider:  m.Provider,
		Label:     m.Label,
		CreatedAt: m.CreatedAt,
	}
}

func toPaymentInfo(p *model.Payment) *dto.PaymentInfo {
	info := &dto.PaymentInfo{
		ID:          p.ID,
		ServiceCode: p.ServiceCode,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      p.Status,
		Provider:    p.Provider,
		CreatedAt:   p.CreatedAt,
	}
	if p.IdempotencyKey != nil {
		info.IdempotencyKey = *p.IdempotencyKey
	}
	return info
}
