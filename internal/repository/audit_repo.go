package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) Write(ctx context.Context, userID *int64, action, detail string) error {
	return r.db.WithContext(ctx).Create(&model.AuditLog{
		UserID: userID,
		Action: action,
		Detail: detail,
	}).Error
}

func (r *AuditRepository) ListByAction(ctx context.Context, action string) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := r.db.WithContext(ctx).Where("action = ?", action).Order("id ASC").Find(&logs).Error
	return logs, err
}
