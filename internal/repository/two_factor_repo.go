package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
)

type TwoFactorRepository struct {
	db *gorm.DB
}

func NewTwoFactorRepository(db *gorm.DB) *TwoFactorRepository {
	return &TwoFactorRepository{db: db}
}

func (r *TwoFactorRepository) WithTx(tx *gorm.DB) *TwoFactorRepository {
	return &TwoFactorRepository{db: tx}
}

func (r *TwoFactorRepository) CreateCode(ctx context.Context, code *model.TwoFactorCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

// InvalidateUnused 将同类型未使用的旧验证码全部标记为已用
func (r *TwoFactorRepository) InvalidateUnused(ctx context.Context, userID int64, codeType string) error {
	return r.db.WithContext(ctx).Model(&model.TwoFactorCode{}).
		Where("user_id = ? AND code_type = ? AND is_used = ?", userID, codeType, false).
		Update("is_used", true).Error
}

// ConsumeCode 条件更新，只有一个调用方能把验证码从未用翻成已用
func (r *TwoFactorRepository) ConsumeCode(ctx context.Context, userID int64, codeType, code string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TwoFactorCode{}).
		Where("user_id = ? AND code_type = ? AND code = ? AND is_used = ? AND expires_at > ?",
			userID, codeType, code, false, now).
		Update("is_used", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *TwoFactorRepository) CountValid(ctx context.Context, userID int64, codeType string, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.TwoFactorCode{}).
		Where("user_id = ? AND code_type = ? AND is_used = ? AND expires_at > ?", userID, codeType, false, now).
		Count(&count).Error
	return count, err
}

func (r *TwoFactorRepository) PurgeCodes(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", before).
		Delete(&model.TwoFactorCode{})
	return result.RowsAffected, result.Error
}

func (r *TwoFactorRepository) CountPurgeableCodes(ctx context.Context, before time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.TwoFactorCode{}).
		Where("expires_at <= ?", before).
		Count(&count).Error
	return count, err
}

// ReplaceBackupCodes 删除旧的备用码后写入新的哈希
func (r *TwoFactorRepository) ReplaceBackupCodes(ctx context.Context, userID int64, hashes []string) error {
	if err := r.DeleteBackupCodes(ctx, userID); err != nil {
		return err
	}
	if len(hashes) == 0 {
		return nil
	}

	codes := make([]model.TwoFactorBackupCode, 0, len(hashes))
	for _, h := range hashes {
		codes = append(codes, model.TwoFactorBackupCode{UserID: userID, CodeHash: h})
	}
	return r.db.WithContext(ctx).Create(&codes).Error
}

func (r *TwoFactorRepository) ListUnusedBackupCodes(ctx context.Context, userID int64) ([]model.TwoFactorBackupCode, error) {
	var codes []model.TwoFactorBackupCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_used = ?", userID, false).
		Order("id ASC").
		Find(&codes).Error
	return codes, err
}

func (r *TwoFactorRepository) MarkBackupCodeUsed(ctx context.Context, id int64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TwoFactorBackupCode{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]interface{}{"is_used": true, "used_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *TwoFactorRepository) DeleteBackupCodes(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.TwoFactorBackupCode{}).Error
}
