package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) WithTx(tx *gorm.DB) *SessionRepository {
	return &SessionRepository{db: tx}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.UserSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*model.UserSession, error) {
	var session model.UserSession
	err := r.db.WithContext(ctx).Where("session_token = ?", token).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// RevokeAll 一条 UPDATE 失效用户的全部会话
func (r *SessionRepository) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.UserSession{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

func (r *SessionRepository) Revoke(ctx context.Context, userID int64, token string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.UserSession{}).
		Where("user_id = ? AND session_token = ? AND is_active = ?", userID, token, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

func (r *SessionRepository) CountActive(ctx context.Context, userID int64, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UserSession{}).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now).
		Count(&count).Error
	return count, err
}

// PurgeExpired 删除已过期或已失效且早于 before 的会话
func (r *SessionRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ? OR (is_active = ? AND created_at <= ?)", before, false, before).
		Delete(&model.UserSession{})
	return result.RowsAffected, result.Error
}

// CountPurgeable PurgeExpired 会删除的行数
func (r *SessionRepository) CountPurgeable(ctx context.Context, before time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UserSession{}).
		Where("expires_at <= ? OR (is_active = ? AND created_at <= ?)", before, false, before).
		Count(&count).Error
	return count, err
}
