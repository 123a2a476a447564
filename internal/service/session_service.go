package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/pkg/apperr"
	"github.com/qs3c/calmness_server/internal/repository"
)

const (
	sessionTokenBytes   = 32
	defaultSessionTTL   = 30 * 24 * time.Hour
	maxDeviceInfoLength = 500
)

var (
	ErrInvalidSession  = apperr.Unauthorized("Invalid or expired session")
	ErrSessionNotFound = apperr.NotFound("Session not found")
)

type SessionService struct {
	sessions *repository.SessionRepository
	users    *repository.UserRepository
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionService(sessions *repository.SessionRepository, users *repository.UserRepository, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionService{
		sessions: sessions,
		users:    users,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create 新建会话并返回不透明的 token，每次登录新增一行
func (s *SessionService) Create(ctx context.Context, userID int64, deviceInfo, ip string) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	deviceInfo = truncateUTF8(deviceInfo, maxDeviceInfoLength)

	session := &model.UserSession{
		UserID:       userID,
		SessionToken: token,
		DeviceInfo:   deviceInfo,
		IPAddress:    ip,
		IsActive:     true,
		ExpiresAt:    s.now().Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// Verify 会话不存在、已失效或已过期时返回 ErrInvalidSession
func (s *SessionService) Verify(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if !session.Usable(s.now()) {
		return nil, ErrInvalidSession
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return user, nil
}

// RevokeAll 立即失效用户的全部会话
func (s *SessionService) RevokeAll(ctx context.Context, userID int64) error {
	_, err := s.sessions.RevokeAll(ctx, userID)
	return err
}

func (s *SessionService) Revoke(ctx context.Context, userID int64, token string) error {
	n, err := s.sessions.Revoke(ctx, userID, token)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SessionService) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return s.sessions.PurgeExpired(ctx, before)
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// truncateUTF8 截到 limit 字节以内，不切断多字节字符，非法字节直接丢弃
func truncateUTF8(s string, limit int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
