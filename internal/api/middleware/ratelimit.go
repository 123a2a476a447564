package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/calmness_server/internal/pkg/apperr"
	"github.com/qs3c/calmness_server/internal/pkg/logger"
	"github.com/qs3c/calmness_server/internal/pkg/response"
)

var (
	ErrRateLimited     = apperr.TooManyRequests("Too many requests, please try again later")
	ErrRateLimitFailed = apperr.Internal("rate limit check failed")
)

// RateLimiter 计数器存储，Redis 实现见 pkg/ratelimit
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Limit 单个动作的限流规则
type Limit struct {
	Action string
	Max    int
	Window time.Duration
}

// 计费相关接口的限流规则，窗口均为 60 秒
var (
	LimitPaymentMethodCreate = Limit{Action: "pm_create", Max: 5, Window: time.Minute}
	LimitPaymentMethodList   = Limit{Action: "pm_list", Max: 20, Window: time.Minute}
	LimitPaymentMethodDelete = Limit{Action: "pm_delete", Max: 10, Window: time.Minute}
	LimitPaymentInit         = Limit{Action: "pay_init", Max: 10, Window: time.Minute}
	LimitSubscriptionCreate  = Limit{Action: "sub_create", Max: 10, Window: time.Minute}
	LimitAdminConfig         = Limit{Action: "admin_config", Max: 10, Window: time.Minute}
)

// RateLimit 按 调用方+动作 计数，已登录按用户，否则按客户端 IP
func RateLimit(limiter RateLimiter, limit Limit, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:ip:%s", limit.Action, c.ClientIP())
		if userID, ok := GetUserID(c); ok {
			key = fmt.Sprintf("%s:user:%d", limit.Action, userID)
		}

		allowed, err := limiter.Allow(c.Request.Context(), key, limit.Max, limit.Window)
		if err != nil {
			log.Error(c.Request.Context(), "rate limit check failed", "action", limit.Action, "error", err)
			response.Abort(c, apperr.Wrap(ErrRateLimitFailed, err))
			return
		}
		if !allowed {
			response.Abort(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}
