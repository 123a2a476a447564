package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/calmness_server/internal/pkg/apperr"
	"github.com/qs3c/calmness_server/internal/pkg/response"
)

const AdminKeyHeader = "X-Admin-Key"

var ErrInvalidAdminKey = apperr.Unauthorized("Invalid admin key")

// AdminKey 未配置 key 时管理接口全部拒绝
func AdminKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(AdminKeyHeader)
		if expected == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			response.Abort(c, ErrInvalidAdminKey)
			return
		}
		c.Next()
	}
}
