package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
)

type PaymentMethodRepository struct {
	db *gorm.DB
}

func NewPaymentMethodRepository(db *gorm.DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

func (r *PaymentMethodRepository) Create(ctx context.Context, method *model.PaymentMethod) error {
	return r.db.WithContext(ctx).Create(method).Error
}

// ListActive 只返回未软删除的支付方式
func (r *PaymentMethodRepository) ListActive(ctx context.Context, userID int64) ([]model.PaymentMethod, error) {
	var methods []model.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC, id DESC").
		Find(&methods).Error
	return methods, err
}

func (r *PaymentMethodRepository) GetOwned(ctx context.Context, id, userID int64) (*model.PaymentMethod, error) {
	var method model.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND is_active = ?", id, userID, true).
		First(&method).Error
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// Deactivate 软删除，返回是否命中
func (r *PaymentMethodRepository) Deactivate(ctx context.Context, id, userID int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.PaymentMethod{}).
		Where("id = ? AND user_id = ? AND is_active = ?", id, userID, true).
		Update("is_active", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
