package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/model/dto"
	"github.com/qs3c/calmness_server/internal/pkg/apperr"
	"github.com/qs3c/calmness_server/internal/repository"
)

type UserService struct {
	users    *repository.UserRepository
	subs     *repository.SubscriptionRepository
	payments *repository.PaymentRepository
}

func NewUserService(
	users *repository.UserRepository,
	subs *repository.SubscriptionRepository,
	payments *repository.PaymentRepository,
) *UserService {
	return &UserService{
		users:    users,
		subs:     subs,
		payments: payments,
	}
}

var ErrUserGone = apperr.Unauthorized("User no longer exists")

// EnsureActive 已删除或停用的账号即使持有未过期的 token 也要拒绝
func (s *UserService) EnsureActive(ctx context.Context, userID int64) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserGone
		}
		return err
	}
	if !user.IsActive {
		return ErrAccountDisabled
	}
	return nil
}

// CurrentUser 获取当前用户
func (s *UserService) CurrentUser(ctx context.Context, userID int64) (*dto.UserInfo, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ToUserInfo(user), nil
}

// Dashboard 订阅数与累计消费
func (s *UserService) Dashboard(ctx context.Context, userID int64) (*dto.DashboardResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	total, active, err := s.subs.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	spent, err := s.payments.TotalSucceeded(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &dto.DashboardResponse{
		User:                ToUserInfo(user),
		TotalSubscriptions:  total,
		ActiveSubscriptions: active,
		TotalSpent:          spent,
		MemberSince:         user.CreatedAt,
	}, nil
}

func (s *UserService) getUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func ToUserInfo(user *model.User) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:               user.ID,
		Email:            user.Email,
		Username:         user.Username,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		IsActive:         user.IsActive,
		IsVerified:       user.IsVerified,
		IsPremium:        user.IsPremium,
		TwoFactorEnabled: user.TwoFactorEnabled,
		LastLogin:        user.LastLogin,
		CreatedAt:        user.CreatedAt,
	}
	if user.Phone != nil {
		info.Phone = *user.Phone
	}
	return info
}
