package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
)

type OAuthAccountRepository struct {
	db *gorm.DB
}

func NewOAuthAccountRepository(db *gorm.DB) *OAuthAccountRepository {
	return &OAuthAccountRepository{db: db}
}

func (r *OAuthAccountRepository) WithTx(tx *gorm.DB) *OAuthAccountRepository {
	return &OAuthAccountRepository{db: tx}
}

func (r *OAuthAccountRepository) Create(ctx context.Context, account *model.OAuthAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetByProviderUser 按 (provider, provider_user_id) 查找绑定
func (r *OAuthAccountRepository) GetByProviderUser(ctx context.Context, provider, providerUserID string) (*model.OAuthAccount, error) {
	var account model.OAuthAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *OAuthAccountRepository) ListByUser(ctx context.Context, userID int64) ([]model.OAuthAccount, error) {
	var accounts []model.OAuthAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&accounts).Error
	return accounts, err
}

// UpdateTokens 每次 OAuth 登录都刷新第三方凭证
func (r *OAuthAccountRepository) UpdateTokens(ctx context.Context, account *model.OAuthAccount) error {
	return r.db.WithContext(ctx).Model(&model.OAuthAccount{}).Where("id = ?", account.ID).Updates(map[string]interface{}{
		"provider_email": account.ProviderEmail,
		"access_token":   account.AccessToken,
		"refresh_token":  account.RefreshToken,
		"expires_at":     account.ExpiresAt,
	}).Error
}
