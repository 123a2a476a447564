package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
)

type AdminConfigRepository struct {
	db *gorm.DB
}

func NewAdminConfigRepository(db *gorm.DB) *AdminConfigRepository {
	return &AdminConfigRepository{db: db}
}

func (r *AdminConfigRepository) Create(ctx context.Context, cfg *model.AdminConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *AdminConfigRepository) GetByKey(ctx context.Context, key string) (*model.AdminConfig, error) {
	var cfg model.AdminConfig
	err := r.db.WithContext(ctx).Where(&model.AdminConfig{Key: key}).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
