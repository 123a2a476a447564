package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/config"
	"github.com/qs3c/calmness_server/internal/api/middleware"
	"github.com/qs3c/calmness_server/internal/model"
	"github.com/qs3c/calmness_server/internal/pkg/jwt"
	"github.com/qs3c/calmness_server/internal/pkg/logger"
	"github.com/qs3c/calmness_server/internal/pkg/mfa"
	"github.com/qs3c/calmness_server/internal/pkg/notify"
	"github.com/qs3c/calmness_server/internal/pkg/oauth"
	"github.com/qs3c/calmness_server/internal/pkg/queue"
	"github.com/qs3c/calmness_server/internal/pkg/ratelimit"
	"github.com/qs3c/calmness_server/internal/pkg/response"
	"github.com/qs3c/calmness_server/internal/pkg/sealer"
	"github.com/qs3c/calmness_server/internal/repository"
	"github.com/qs3c/calmness_server/internal/service"
	"github.com/qs3c/calmness_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminKey = "admin-key"

type testServer struct {
	db     *gorm.DB
	engine *gin.Engine
	tokens *jwt.Manager
	mfa    *mfa.Authenticator
	jobs   *queue.Queue
}

// newTestServer 以真实的 service、sqlite 和 miniredis 组装路由
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	rdb, _, cleanup := testutil.SetupTestRedis(t)
	t.Cleanup(cleanup)

	log := logger.Discard()
	tokens := jwt.NewManager(&config.JWTConfig{Secret: "handler-test-secret"})
	jobs := queue.NewQueue(rdb, "queue:test")
	notifier := notify.NewQueueNotifier(jobs)
	authenticator := mfa.New("Test")

	users := repository.NewUserRepository(db)
	subs := repository.NewSubscriptionRepository(db)
	payments := repository.NewPaymentRepository(db)

	sessions := service.NewSessionService(repository.NewSessionRepository(db), users, 0)
	twoFactor := service.NewTwoFactorService(db, users, repository.NewTwoFactorRepository(db), authenticator, notifier)
	authService := service.NewAuthService(db, users, repository.NewOAuthAccountRepository(db), sessions, twoFactor,
		tokens, oauth.NewRegistry(oauth.NewGithubOAuth("id", "secret", "http://localhost/cb")),
		oauth.NewStateStore(rdb), notifier, log)

	seal, err := sealer.Ephemeral()
	require.NoError(t, err)
	billing := service.NewBillingService(db, payments, repository.NewPaymentMethodRepository(db), subs,
		repository.NewAdminConfigRepository(db), repository.NewAuditRepository(db), seal)

	authH := NewAuthHandler(authService)
	twoFactorH := NewTwoFactorHandler(twoFactor)
	userService := service.NewUserService(users, subs, payments)
	userH := NewUserHandler(userService)
	billingH := NewBillingHandler(billing)
	limiter := ratelimit.NewLimiter(rdb)

	engine := gin.New()
	requireAuth := middleware.Auth(tokens, userService)

	auth := engine.Group("/auth")
	auth.POST("/register", authH.Register)
	auth.POST("/verify-email", authH.VerifyEmail)
	auth.POST("/login", authH.Login)
	auth.POST("/refresh", authH.Refresh)
	auth.GET("/oauth/:provider/url", authH.OAuthURL)
	auth.POST("/oauth/login", authH.OAuthLogin)
	auth.POST("/password-reset", authH.RequestPasswordReset)
	auth.POST("/password-reset/confirm", authH.ConfirmPasswordReset)
	auth.POST("/change-password", requireAuth, authH.ChangePassword)
	auth.POST("/logout", requireAuth, authH.Logout)
	auth.GET("/me", requireAuth, userH.Me)
	auth.GET("/dashboard", requireAuth, userH.Dashboard)
	auth.POST("/2fa/setup", requireAuth, twoFactorH.Setup)
	auth.POST("/2fa/verify", requireAuth, twoFactorH.Verify)
	auth.POST("/2fa/disable", requireAuth, twoFactorH.Disable)
	auth.POST("/2fa/code/send", requireAuth, twoFactorH.SendCode)
	auth.POST("/2fa/code/verify", requireAuth, twoFactorH.VerifyCode)

	billingGroup := engine.Group("/billing")
	billingGroup.POST("/methods", requireAuth, middleware.RateLimit(limiter, middleware.LimitPaymentMethodCreate, log), billingH.CreatePaymentMethod)
	billingGroup.GET("/methods", requireAuth, billingH.ListPaymentMethods)
	billingGroup.DELETE("/methods/:id", requireAuth, billingH.DeletePaymentMethod)
	billingGroup.POST("/payments/init", requireAuth, billingH.InitPayment)
	billingGroup.POST("/subscriptions", requireAuth, billingH.CreateSubscription)
	billingGroup.POST("/admin/config", middleware.AdminKey(testAdminKey), billingH.CreateAdminConfig)
	billingGroup.GET("/admin/config/:key", middleware.AdminKey(testAdminKey), billingH.GetAdminConfig)

	return &testServer{db: db, engine: engine, tokens: tokens, mfa: authenticator, jobs: jobs}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// login 为 fixture 用户签发 access token
func (s *testServer) login(t *testing.T, user *model.User) string {
	t.Helper()
	token, err := s.tokens.IssueAccess(user.ID)
	require.NoError(t, err)
	return token
}

func (s *testServer) popJob(t *testing.T) *queue.JobMessage {
	t.Helper()
	msg, err := s.jobs.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// decodeData 把响应 data 解到 out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}
