package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/calmness_server/config"
	"github.com/qs3c/calmness_server/internal/api/handler"
	"github.com/qs3c/calmness_server/internal/api/middleware"
	"github.com/qs3c/calmness_server/internal/pkg/jwt"
	"github.com/qs3c/calmness_server/internal/pkg/logger"
)

type Router struct {
	authHandler      *handler.AuthHandler
	twoFactorHandler *handler.TwoFactorHandler
	userHandler      *handler.UserHandler
	billingHandler   *handler.BillingHandler
	tokens           *jwt.Manager
	users            middleware.UserChecker
	limiter          middleware.RateLimiter
	log              logger.Logger
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	twoFactorHandler *handler.TwoFactorHandler,
	userHandler *handler.UserHandler,
	billingHandler *handler.BillingHandler,
	tokens *jwt.Manager,
	users middleware.UserChecker,
	limiter middleware.RateLimiter,
	log logger.Logger,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		twoFactorHandler: twoFactorHandler,
		userHandler:      userHandler,
		billingHandler:   billingHandler,
		tokens:           tokens,
		users:            users,
		limiter:          limiter,
		log:              log,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing())
	engine.Use(middleware.RequestLogger(r.log))
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	requireAuth := middleware.Auth(r.tokens, r.users)
	limit := func(l middleware.Limit) gin.HandlerFunc {
		return middleware.RateLimit(r.limiter, l, r.log)
	}

	api := engine.Group("/api/v1")
	{
		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/verify-email", r.authHandler.VerifyEmail)
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/refresh", r.authHandler.Refresh)
			auth.GET("/oauth/:provider/url", r.authHandler.OAuthURL)
			auth.POST("/oauth/login", r.authHandler.OAuthLogin)
			auth.POST("/password-reset", r.authHandler.RequestPasswordReset)
			auth.POST("/password-reset/confirm", r.authHandler.ConfirmPasswordReset)
		}

		// 需要认证的接口
		account := api.Group("/auth")
		account.Use(requireAuth)
		{
			account.POST("/change-password", r.authHandler.ChangePassword)
			account.POST("/logout", r.authHandler.Logout)
			account.GET("/me", r.userHandler.Me)
			account.GET("/dashboard", r.userHandler.Dashboard)

			twoFactor := account.Group("/2fa")
			{
				twoFactor.POST("/setup", r.twoFactorHandler.Setup)
				twoFactor.POST("/verify", r.twoFactorHandler.Verify)
				twoFactor.POST("/disable", r.twoFactorHandler.Disable)
				twoFactor.POST("/code/send", r.twoFactorHandler.SendCode)
				twoFactor.POST("/code/verify", r.twoFactorHandler.VerifyCode)
			}
		}

		billing := api.Group("/billing")
		{
			billing.POST("/methods", requireAuth, limit(middleware.LimitPaymentMethodCreate), r.billingHandler.CreatePaymentMethod)
			billing.GET("/methods", requireAuth, limit(middleware.LimitPaymentMethodList), r.billingHandler.ListPaymentMethods)
			billing.DELETE("/methods/:id", requireAuth, limit(middleware.LimitPaymentMethodDelete), r.billingHandler.DeletePaymentMethod)
			billing.POST("/payments/init", requireAuth, limit(middleware.LimitPaymentInit), r.billingHandler.InitPayment)
			billing.POST("/subscriptions", requireAuth, limit(middleware.LimitSubscriptionCreate), r.billingHandler.CreateSubscription)

			// 管理接口用 API key，不走用户登录
			admin := billing.Group("/admin", limit(middleware.LimitAdminConfig), middleware.AdminKey(r.cfg.Security.AdminAPIKey))
			{
				admin.POST("/config", r.billingHandler.CreateAdminConfig)
				admin.GET("/config/:key", r.billingHandler.GetAdminConfig)
			}
		}
	}

	return engine
}
