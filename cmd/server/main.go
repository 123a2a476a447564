package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/calmness_server/config"
	"github.com/qs3c/calmness_server/internal/api"
	"github.com/qs3c/calmness_server/internal/api/handler"
	"github.com/qs3c/calmness_server/internal/database"
	"github.com/qs3c/calmness_server/internal/pkg/cron"
	"github.com/qs3c/calmness_server/internal/pkg/jwt"
	"github.com/qs3c/calmness_server/internal/pkg/logger"
	"github.com/qs3c/calmness_server/internal/pkg/mfa"
	"github.com/qs3c/calmness_server/internal/pkg/notify"
	"github.com/qs3c/calmness_server/internal/pkg/oauth"
	"github.com/qs3c/calmness_server/internal/pkg/queue"
	"github.com/qs3c/calmness_server/internal/pkg/ratelimit"
	"github.com/qs3c/calmness_server/internal/pkg/sealer"
	"github.com/qs3c/calmness_server/internal/pkg/telemetry"
	"github.com/qs3c/calmness_server/internal/repository"
	"github.com/qs3c/calmness_server/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Mode)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, &cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn(sctx, "telemetry shutdown failed", "error", err)
		}
	}()

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Info(ctx, "database connected", "driver", cfg.Database.Driver)

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	log.Info(ctx, "redis connected")

	seal, err := newSealer(cfg, log)
	if err != nil {
		return err
	}

	notifier := notify.NewQueueNotifier(queue.NewQueue(rdb, cfg.Queue.NotificationQueue))
	tokens := jwt.NewManager(&cfg.JWT)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	// 初始化 Service
	sessionService := service.NewSessionService(repository.NewSessionRepository(db), userRepo,
		time.Duration(cfg.JWT.SessionTTLDays)*24*time.Hour)
	twoFactorService := service.NewTwoFactorService(db, userRepo, repository.NewTwoFactorRepository(db),
		mfa.New(cfg.Security.TOTPIssuer), notifier)
	authService := service.NewAuthService(db, userRepo, repository.NewOAuthAccountRepository(db),
		sessionService, twoFactorService, tokens, newProviders(&cfg.OAuth), oauth.NewStateStore(rdb), notifier, log)
	billingService := service.NewBillingService(db, paymentRepo, repository.NewPaymentMethodRepository(db), subRepo,
		repository.NewAdminConfigRepository(db), repository.NewAuditRepository(db), seal)
	userService := service.NewUserService(userRepo, subRepo, paymentRepo)
	subscriptionService := service.NewSubscriptionService(subRepo, notifier, log, cfg.Scheduler.ReminderWindow())

	// 初始化 Router
	router := api.NewRouter(
		handler.NewAuthHandler(authService),
		handler.NewTwoFactorHandler(twoFactorService),
		handler.NewUserHandler(userService),
		handler.NewBillingHandler(billingService),
		tokens,
		userService,
		ratelimit.NewLimiter(rdb),
		log,
		cfg,
	)

	scheduler := cron.NewScheduler(cfg.Scheduler.Interval(), log)
	scheduler.Register("remind_expiring", func(ctx context.Context) error {
		_, err := subscriptionService.RemindExpiring(ctx)
		return err
	})
	scheduler.Register("expire_due", func(ctx context.Context) error {
		_, err := subscriptionService.ExpireDue(ctx)
		return err
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// newProviders 只注册配置了 client_id 的第三方
func newProviders(cfg *config.OAuthConfig) *oauth.Registry {
	var providers []oauth.Provider
	if cfg.Google.ClientID != "" {
		providers = append(providers, oauth.NewGoogleOAuth(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI))
	}
	if cfg.Github.ClientID != "" {
		providers = append(providers, oauth.NewGithubOAuth(cfg.Github.ClientID, cfg.Github.ClientSecret, cfg.Github.RedirectURI))
	}
	if cfg.Apple.ClientID != "" {
		providers = append(providers, oauth.NewAppleOAuth(cfg.Apple.ClientID, cfg.Apple.ClientSecret, cfg.Apple.RedirectURI))
	}
	return oauth.NewRegistry(providers...)
}

// newSealer release 模式必须配置 encryption_key，否则重启后密文无法解开
func newSealer(cfg *config.Config, log logger.Logger) (*sealer.AESGCMSealer, error) {
	if cfg.Security.EncryptionKey != "" {
		s, err := sealer.FromBase64(cfg.Security.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("load encryption key: %w", err)
		}
		return s, nil
	}
	if cfg.Server.Mode == "release" {
		return nil, errors.New("security.encryption_key is required in release mode")
	}
	log.Warn(context.Background(), "security.encryption_key not set, using ephemeral key")
	return sealer.Ephemeral()
}
