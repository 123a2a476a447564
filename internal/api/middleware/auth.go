package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/calmness_server/internal/pkg/apperr"
	"github.com/qs3c/calmness_server/internal/pkg/jwt"
	"github.com/qs3c/calmness_server/internal/pkg/response"
)

const (
	UserIDKey = "userID"
)

var (
	ErrMissingToken   = apperr.Unauthorized("Authorization header required")
	ErrMalformedToken = apperr.Unauthorized("Authorization header must be a Bearer token")
)

// UserChecker 确认 token 对应的用户仍存在且未被停用
type UserChecker interface {
	EnsureActive(ctx context.Context, userID int64) error
}

// Auth 校验 Bearer access token，refresh 等其他类型的 token 一律拒绝
func Auth(tokens *jwt.Manager, users UserChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Abort(c, ErrMissingToken)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || tokenString == "" {
			response.Abort(c, ErrMalformedToken)
			return
		}

		claims, err := tokens.Verify(tokenString, jwt.TypeAccess)
		if err != nil {
			response.Abort(c, err)
			return
		}

		if err := users.EnsureActive(c.Request.Context(), claims.UserID); err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}
