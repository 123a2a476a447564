package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/calmness_server/config"
	"github.com/qs3c/calmness_server/internal/database"
	"github.com/qs3c/calmness_server/internal/pkg/email"
	"github.com/qs3c/calmness_server/internal/pkg/logger"
	"github.com/qs3c/calmness_server/internal/pkg/queue"
	"github.com/qs3c/calmness_server/internal/pkg/sms"
	"github.com/qs3c/calmness_server/internal/pkg/telegram"
	"github.com/qs3c/calmness_server/internal/pkg/telemetry"
	"github.com/qs3c/calmness_server/internal/worker"
)

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

	log := logger.New(cfg.Server.Mode).With("component", "worker")

	// 监听退出信号
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, &cfg.Telemetry)
	if err != nil {
		log.Error(ctx, "setup telemetry failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Error(ctx, "connect redis failed", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	processor := worker.NewProcessor(
		email.NewService(&cfg.Email, cfg.FrontendURL),
		sms.NewClient(&cfg.SMS),
		telegram.NewClient(&cfg.Telegram),
		log,
	)
	pool := worker.NewPool(queue.NewQueue(rdb, cfg.Queue.NotificationQueue), processor, cfg.Queue.MaxWorkers, log)

	// 阻塞直到收到退出信号
	pool.Run(ctx)
	log.Info(context.Background(), "worker shutdown complete")
}
