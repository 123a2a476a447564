package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/qs3c/calmness_server/config"
	"github.com/qs3c/calmness_server/internal/pkg/apperr"
)

type TokenType string

const (
	TypeAccess            TokenType = "access"
	TypeRefresh           TokenType = "refresh"
	TypeEmailVerification TokenType = "email_verification"
	TypePasswordReset     TokenType = "password_reset"
)

var (
	ErrInvalidToken   = apperr.Unauthorized("invalid token")
	ErrExpiredToken   = apperr.Unauthorized("token has expired")
	ErrWrongTokenType = apperr.Unauthorized("invalid token type")
)

// Claims sub 为用户 ID 的十进制字符串
type Claims struct {
	Type    TokenType `json:"type"`
	Session string    `json:"session,omitempty"`
	UserID  int64     `json:"-"`
	jwt.RegisteredClaims
}

// Manager 签发和校验 HS256 token
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	verifyTTL  time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

func NewManager(cfg *config.JWTConfig) *Manager {
	return &Manager{
		secret:     []byte(cfg.Secret),
		accessTTL:  orDefault(time.Duration(cfg.AccessTTLMinutes)*time.Minute, 30*time.Minute),
		refreshTTL: orDefault(time.Duration(cfg.RefreshTTLDays)*24*time.Hour, 30*24*time.Hour),
		verifyTTL:  orDefault(time.Duration(cfg.VerifyTTLHours)*time.Hour, 24*time.Hour),
		resetTTL:   orDefault(time.Duration(cfg.ResetTTLMinutes)*time.Minute, 30*time.Minute),
		now:        time.Now,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// AccessTTL access token 有效期
func (m *Manager) AccessTTL() time.Duration {
	return m.accessTTL
}

func (m *Manager) ttlFor(typ TokenType) time.Duration {
	switch typ {
	case TypeAccess:
		return m.accessTTL
	case TypeRefresh:
		return m.refreshTTL
	case TypeEmailVerification:
		return m.verifyTTL
	case TypePasswordReset:
		return m.resetTTL
	}
	return m.accessTTL
}

// Issue 签发指定类型的 token，session 仅 refresh token 使用
func (m *Manager) Issue(userID int64, typ TokenType, session string) (string, error) {
	now := m.now()
	claims := Claims{
		Type:    typ,
		Session: session,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttlFor(typ))),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) IssueAccess(userID int64) (string, error) {
	return m.Issue(userID, TypeAccess, "")
}

func (m *Manager) IssueRefresh(userID int64, session string) (string, error) {
	return m.Issue(userID, TypeRefresh, session)
}

func (m *Manager) IssueEmailVerification(userID int64) (string, error) {
	return m.Issue(userID, TypeEmailVerification, "")
}

func (m *Manager) IssuePasswordReset(userID int64) (string, error) {
	return m.Issue(userID, TypePasswordReset, "")
}

// Verify 校验签名、过期时间和 token 类型
func (m *Manager) Verify(tokenString string, expected TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, apperr.Wrap(ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != expected {
		return nil, ErrWrongTokenType
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, apperr.Wrap(ErrInvalidToken, err)
	}
	claims.UserID = userID

	return claims, nil
}
