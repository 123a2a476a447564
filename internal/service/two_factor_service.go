package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/model/dto"
	"github.com/qs3c/calmness_server/internal/pkg/apperr"
	"github.com/qs3c/calmness_server/internal/pkg/mfa"
	"github.com/qs3c/calmness_server/internal/repository"
)

const codeTTL = 10 * time.Minute

var (
	ErrTwoFactorEnabled    = apperr.Conflict("Two-factor authentication is already enabled")
	ErrTwoFactorNotEnabled = apperr.BadRequest("Two-factor authentication is not enabled")
	ErrTwoFactorNotSetup   = apperr.BadRequest("Two-factor authentication is not set up")
	ErrInvalidTOTP         = apperr.BadRequest("Invalid 2FA code")
	ErrTwoFactorRequired   = apperr.Unauthorized("Two-factor code required")
	ErrInvalidLoginCode    = apperr.Unauthorized("Invalid 2FA code")
	ErrInvalidCodeType     = apperr.BadRequest("Invalid code type")
	ErrMissingDestination  = apperr.BadRequest("No destination available for this code type")
	ErrInvalidCode         = apperr.BadRequest("Invalid or expired code")
	ErrNotifyFailed        = apperr.Internal("Failed to send code")
)

var totpPattern = regexp.MustCompile(`^[0-9]{6}$`)

type TwoFactorService struct {
	db         *gorm.DB
	users      *repository.UserRepository
	codes      *repository.TwoFactorRepository
	auth       *mfa.Authenticator
	notifier   Notifier
	bcryptCost int
	now        func() time.Time
}

func NewTwoFactorService(
	db *gorm.DB,
	users *repository.UserRepository,
	codes *repository.TwoFactorRepository,
	auth *mfa.Authenticator,
	notifier Notifier,
) *TwoFactorService {
	return &TwoFactorService{
		db:         db,
		users:      users,
		codes:      codes,
		auth:       auth,
		notifier:   notifier,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// Setup 生成 TOTP secret 与 10 个备用码，备用码只保存哈希
func (s *TwoFactorService) Setup(ctx context.Context, userID int64) (*dto.TwoFactorSetupResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}

	enrollment, err := s.auth.Enroll(user.Email)
	if err != nil {
		return nil, err
	}
	backupCodes, err := mfa.GenerateBackupCodes(mfa.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(backupCodes))
	for _, code := range backupCodes {
		h, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash backup code: %w", err)
		}
		hashes = append(hashes, string(h))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).UpdateFields(ctx, userID, map[string]interface{}{
			"two_factor_secret": enrollment.Secret,
		}); err != nil {
			return err
		}
		return s.codes.WithTx(tx).ReplaceBackupCodes(ctx, userID, hashes)
	})
	if err != nil {
		return nil, err
	}

	return &dto.TwoFactorSetupResponse{
		Secret:      enrollment.Secret,
		URI:         enrollment.URI,
		QRCode:      enrollment.QRCode,
		BackupCodes: backupCodes,
	}, nil
}

// VerifySetup 校验首个 TOTP 码后正式开启 2FA
func (s *TwoFactorService) VerifySetup(ctx context.Context, userID int64, code string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		return ErrTwoFactorNotSetup
	}
	if !s.auth.Validate(*user.TwoFactorSecret, strings.TrimSpace(code)) {
		return ErrInvalidTOTP
	}

	return s.users.UpdateFields(ctx, userID, map[string]interface{}{"two_factor_enabled": true})
}

// Disable 需要当前有效的 TOTP 码，同时清除 secret 和备用码
func (s *TwoFactorService) Disable(ctx context.Context, userID int64, code string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return ErrTwoFactorNotEnabled
	}
	if !s.auth.Validate(*user.TwoFactorSecret, strings.TrimSpace(code)) {
		return ErrInvalidTOTP
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).UpdateFields(ctx, userID, map[string]interface{}{
			"two_factor_enabled": false,
			"two_factor_secret":  nil,
		}); err != nil {
			return err
		}
		return s.codes.WithTx(tx).DeleteBackupCodes(ctx, userID)
	})
}

// CheckLogin 登录时的第二因素：6 位数字按 TOTP 校验，否则按备用码校验并消费
func (s *TwoFactorService) CheckLogin(ctx context.Context, user *model.User, code string) error {
	if !user.TwoFactorEnabled {
		return nil
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrTwoFactorRequired
	}
	if user.TwoFactorSecret == nil {
		return ErrInvalidLoginCode
	}

	if totpPattern.MatchString(code) {
		if s.auth.Validate(*user.TwoFactorSecret, code) {
			return nil
		}
		return ErrInvalidLoginCode
	}

	ok, err := s.consumeBackupCode(ctx, user.ID, strings.ToUpper(code))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidLoginCode
	}
	return nil
}

func (s *TwoFactorService) consumeBackupCode(ctx context.Context, userID int64, code string) (bool, error) {
	codes, err := s.codes.ListUnusedBackupCodes(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range codes {
		if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(code)) != nil {
			continue
		}
		return s.codes.MarkBackupCodeUsed(ctx, c.ID, s.now())
	}
	return false, nil
}

// SendCode 锁住用户行后作废旧码并写入新码，保证同一类型只有一个有效码
func (s *TwoFactorService) SendCode(ctx context.Context, userID int64, codeType, destination string) error {
	if codeType != model.CodeTypeSMS && codeType != model.CodeTypeEmail {
		return ErrInvalidCodeType
	}

	code, err := mfa.GenerateNumericCode()
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.users.WithTx(tx).LockByID(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if destination == "" {
			destination = defaultDestination(user, codeType)
		}
		if destination == "" {
			return ErrMissingDestination
		}

		codes := s.codes.WithTx(tx)
		if err := codes.InvalidateUnused(ctx, userID, codeType); err != nil {
			return err
		}
		return codes.CreateCode(ctx, &model.TwoFactorCode{
			UserID:      userID,
			Code:        code,
			CodeType:    codeType,
			Destination: destination,
			ExpiresAt:   s.now().Add(codeTTL),
		})
	})
	if err != nil {
		return err
	}

	if err := s.notifier.SendTwoFactorCode(ctx, userID, codeType, destination, code); err != nil {
		return apperr.Wrap(ErrNotifyFailed, err)
	}
	return nil
}

// VerifyCode 单条条件 UPDATE，并发校验同一个码只有一个成功
func (s *TwoFactorService) VerifyCode(ctx context.Context, userID int64, codeType, code string) error {
	if codeType != model.CodeTypeSMS && codeType != model.CodeTypeEmail {
		return ErrInvalidCodeType
	}

	ok, err := s.codes.ConsumeCode(ctx, userID, codeType, strings.TrimSpace(code), s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

func (s *TwoFactorService) getUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func defaultDestination(user *model.User, codeType string) string {
	if codeType == model.CodeTypeEmail {
		return user.Email
	}
	if user.Phone != nil {
		return *user.Phone
	}
	return ""
}
