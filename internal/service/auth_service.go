package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/database"
	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/model/dto"
	"github.com/qs3c/calmness_server/internal/pkg/apperr"
	"github.com/qs3c/calmness_server/internal/pkg/jwt"
	"github.com/qs3c/calmness_server/internal/pkg/logger"
	"github.com/qs3c/calmness_server/internal/pkg/oauth"
	"github.com/qs3c/calmness_server/internal/repository"
)

const (
	// ResetRequestedMessage 无论邮箱是否存在都返回同一句话
	ResetRequestedMessage = "If the email exists, a reset link has been sent"

	defaultOAuthTokenTTL = time.Hour
	tokenTypeBearer      = "bearer"

	minPasswordLength = 8
	maxPasswordBytes  = 72
)

var (
	ErrEmailExists        = apperr.Conflict("Email already registered")
	ErrUsernameExists     = apperr.Conflict("Username already taken")
	ErrInvalidCredentials = apperr.Unauthorized("Invalid email or password")
	ErrAccountDisabled    = apperr.Unauthorized("Account is disabled")
	ErrEmailNotVerified   = apperr.Unauthorized("Please verify your email before logging in")
	ErrInvalidVerifyToken = apperr.BadRequest("Invalid or expired verification token")
	ErrInvalidResetToken  = apperr.BadRequest("Invalid or expired reset token")
	ErrWrongPassword      = apperr.BadRequest("Current password is incorrect")
	ErrUserNotFound       = apperr.NotFound("User not found")
	ErrOAuthEmailMissing  = apperr.BadRequest("OAuth provider did not return an email address")

	ErrPasswordTooShort = apperr.BadRequest("Password must be at least 8 characters long")
	ErrPasswordNoUpper  = apperr.BadRequest("Password must contain at least one uppercase letter")
	ErrPasswordNoLower  = apperr.BadRequest("Password must contain at least one lowercase letter")
	ErrPasswordNoDigit  = apperr.BadRequest("Password must contain at least one digit")
	ErrPasswordTooLong  = apperr.BadRequest("Password must be at most 72 bytes long")
	ErrUsernameTooShort = apperr.BadRequest("Username must be at least 3 characters long")
	ErrUsernameNotAlnum = apperr.BadRequest("Username must contain only alphanumeric characters")
)

type AuthService struct {
	db        *gorm.DB
	users     *repository.UserRepository
	accounts  *repository.OAuthAccountRepository
	sessions  *SessionService
	twoFactor *TwoFactorService
	tokens    *jwt.Manager
	providers *oauth.Registry
	states    *oauth.StateStore
	notifier  Notifier
	log       logger.Logger

	bcryptCost int
	now        func() time.Time
}

func NewAuthService(
	db *gorm.DB,
	users *repository.UserRepository,
	accounts *repository.OAuthAccountRepository,
	sessions *SessionService,
	twoFactor *TwoFactorService,
	tokens *jwt.Manager,
	providers *oauth.Registry,
	states *oauth.StateStore,
	notifier Notifier,
	log logger.Logger,
) *AuthService {
	return &AuthService{
		db:         db,
		users:      users,
		accounts:   accounts,
		sessions:   sessions,
		twoFactor:  twoFactor,
		tokens:     tokens,
		providers:  providers,
		states:     states,
		notifier:   notifier,
		log:        log,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// Register 用户注册，验证邮件异步投递，失败只记日志
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*model.User, error) {
	if err := ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(req.Email)

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	exists, err = s.users.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameExists
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        email,
		Username:     req.Username,
		PasswordHash: &hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		IsActive:     true,
	}
	if req.Phone != "" {
		phone := req.Phone
		user.Phone = &phone
	}

	if err := s.users.Create(ctx, user); err != nil {
		// 并发注册时由唯一索引兜底，重新判断是哪一个字段冲突
		if database.IsDuplicateKey(err) {
			if taken, _ := s.users.ExistsByEmail(ctx, email); taken {
				return nil, ErrEmailExists
			}
			return nil, ErrUsernameExists
		}
		return nil, err
	}

	token, err := s.tokens.IssueEmailVerification(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.SendVerificationEmail(ctx, user, token); err != nil {
		s.log.Error(ctx, "enqueue verification email failed", "user_id", user.ID, "error", err)
	}

	return user, nil
}

// VerifyEmail 校验 email_verification token 并标记邮箱已验证
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.Verify(token, jwt.TypeEmailVerification)
	if err != nil {
		return nil, apperr.Wrap(ErrInvalidVerifyToken, err)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.IsVerified {
		return user, nil
	}

	if err := s.users.UpdateFields(ctx, user.ID, map[string]interface{}{"is_verified": true}); err != nil {
		return nil, err
	}
	user.IsVerified = true

	if err := s.notifier.SendWelcome(ctx, user); err != nil {
		s.log.Error(ctx, "enqueue welcome email failed", "user_id", user.ID, "error", err)
	}
	return user, nil
}

// Login 邮箱密码登录
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest, deviceInfo, ip string) (*dto.LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if !user.IsVerified {
		return nil, ErrEmailNotVerified
	}
	if err := s.twoFactor.CheckLogin(ctx, user, req.TOTPCode); err != nil {
		return nil, err
	}

	return s.startSession(ctx, user, deviceInfo, ip)
}

// Refresh 用 refresh token 换新的 access token，对应会话必须仍然有效
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*dto.LoginResponse, error) {
	claims, err := s.tokens.Verify(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.Session == "" {
		return nil, ErrInvalidSession
	}

	user, err := s.sessions.Verify(ctx, claims.Session)
	if err != nil {
		return nil, err
	}
	if user.ID != claims.UserID {
		return nil, ErrInvalidSession
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	access, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		AccessToken: access,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int(s.tokens.AccessTTL().Seconds()),
		User:        ToUserInfo(user),
	}, nil
}

// OAuthURL 生成并保存 state，返回第三方授权地址
func (s *AuthService) OAuthURL(ctx context.Context, providerName, redirectURI string) (*dto.OAuthURLResponse, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	state, err := s.states.GenerateState(ctx, provider.Name(), redirectURI)
	if err != nil {
		return nil, err
	}
	return &dto.OAuthURLResponse{URL: provider.AuthURL(state), State: state}, nil
}

// OAuthLogin 依次按第三方账号、邮箱匹配用户，都没有时新建已验证用户
func (s *AuthService) OAuthLogin(ctx context.Context, req *dto.OAuthLoginRequest, deviceInfo, ip string) (*dto.LoginResponse, error) {
	provider, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	if s.states != nil {
		if _, err := s.states.ValidateState(ctx, req.State, provider.Name()); err != nil {
			return nil, err
		}
	}

	token, err := provider.Exchange(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	profile, err := provider.FetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.resolveOAuthUser(ctx, provider.Name(), profile, token)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	return s.startSession(ctx, user, deviceInfo, ip)
}

func (s *AuthService) resolveOAuthUser(ctx context.Context, provider string, profile *oauth.Profile, token *oauth.Token) (*model.User, error) {
	expiresAt := token.ExpiresAt()
	if expiresAt == nil {
		e := s.now().Add(defaultOAuthTokenTTL)
		expiresAt = &e
	}

	account, err := s.accounts.GetByProviderUser(ctx, provider, profile.ProviderUserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 已绑定：刷新第三方凭证
	if account != nil {
		account.ProviderEmail = profile.Email
		account.AccessToken = token.AccessToken
		account.RefreshToken = token.RefreshToken
		account.ExpiresAt = expiresAt
		if err := s.accounts.UpdateTokens(ctx, account); err != nil {
			return nil, err
		}
		user, err := s.users.GetByID(ctx, account.UserID)
		if err != nil {
			return nil, err
		}
		return user, nil
	}

	if profile.Email == "" {
		return nil, ErrOAuthEmailMissing
	}

	var user *model.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)

		existing, err := users.GetByEmail(ctx, profile.Email)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		user = existing

		if user == nil {
			username, err := s.uniqueUsername(ctx, users, deriveUsername(profile))
			if err != nil {
				return err
			}
			first, last := splitName(profile.Name)
			user = &model.User{
				Email:      profile.Email,
				Username:   username,
				FirstName:  first,
				LastName:   last,
				IsActive:   true,
				IsVerified: true,
			}
			if err := users.Create(ctx, user); err != nil {
				return err
			}
		}

		return s.accounts.WithTx(tx).Create(ctx, &model.OAuthAccount{
			UserID:         user.ID,
			Provider:       provider,
			ProviderUserID: profile.ProviderUserID,
			ProviderEmail:  profile.Email,
			AccessToken:    token.AccessToken,
			RefreshToken:   token.RefreshToken,
			ExpiresAt:      expiresAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// uniqueUsername base 被占用时依次尝试 base1、base2 ...
func (s *AuthService) uniqueUsername(ctx context.Context, users *repository.UserRepository, base string) (string, error) {
	candidate := base
	for i := 1; ; i++ {
		exists, err := users.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
}

// RequestPasswordReset 返回值与邮箱是否存在无关
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Error(ctx, "password reset lookup failed", "error", err)
		}
		return ResetRequestedMessage, nil
	}

	token, err := s.tokens.IssuePasswordReset(user.ID)
	if err != nil {
		s.log.Error(ctx, "issue reset token failed", "user_id", user.ID, "error", err)
		return ResetRequestedMessage, nil
	}
	if err := s.notifier.SendPasswordReset(ctx, user, token); err != nil {
		s.log.Error(ctx, "enqueue password reset failed", "user_id", user.ID, "error", err)
	}
	return ResetRequestedMessage, nil
}

// ConfirmPasswordReset 重置密码并失效全部会话
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	claims, err := s.tokens.Verify(token, jwt.TypePasswordReset)
	if err != nil {
		return apperr.Wrap(ErrInvalidResetToken, err)
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	return s.sessions.RevokeAll(ctx, user.ID)
}

// ChangePassword 修改密码
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if user.PasswordHash == nil ||
		bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

// Logout 失效该用户的全部会话
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	return s.sessions.RevokeAll(ctx, userID)
}

// LogoutSession 只失效指定会话
func (s *AuthService) LogoutSession(ctx context.Context, userID int64, sessionToken string) error {
	return s.sessions.Revoke(ctx, userID, sessionToken)
}

// startSession 登录成功后的公共流程：last_login、会话、access/refresh token
func (s *AuthService) startSession(ctx context.Context, user *model.User, deviceInfo, ip string) (*dto.LoginResponse, error) {
	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now

	sessionToken, err := s.sessions.Create(ctx, user.ID, deviceInfo, ip)
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, sessionToken)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		SessionToken: sessionToken,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
		User:         ToUserInfo(user),
	}, nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ValidatePassword 至少 8 个字符，包含大写、小写和数字；bcrypt 只接受 72 字节以内
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	switch {
	case !upper:
		return ErrPasswordNoUpper
	case !lower:
		return ErrPasswordNoLower
	case !digit:
		return ErrPasswordNoDigit
	}
	return nil
}

// ValidateUsername 至少 3 位，仅字母数字
func ValidateUsername(username string) error {
	if utf8.RuneCountInString(username) < 3 {
		return ErrUsernameTooShort
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return ErrUsernameNotAlnum
		}
	}
	return nil
}

// deriveUsername 优先 login，其次去空格小写的姓名，再次邮箱前缀
func deriveUsername(p *oauth.Profile) string {
	candidates := []string{
		p.Login,
		strings.ToLower(strings.ReplaceAll(p.Name, " ", "")),
		strings.ToLower(strings.SplitN(p.Email, "@", 2)[0]),
	}
	for _, c := range candidates {
		if base := alnumOnly(c); base != "" {
			return base
		}
	}
	return "user"
}

func alnumOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
