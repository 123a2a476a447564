package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/calmness_server/config"
	"github.com/qs3c/calmness_server/internal/database"
	"github.com/qs3c/calmness_server/internal/pkg/logger"
	"github.com/qs3c/calmness_server/internal/pkg/notify"
	"github.com/qs3c/calmness_server/internal/pkg/queue"
	"github.com/qs3c/calmness_server/internal/repository"
	"github.com/qs3c/calmness_server/internal/service"
)

var (
	dryRun        = flag.Bool("dry-run", true, "Dry run mode, only count what would be changed")
	sessionGrace  = flag.Int("session-grace", 24, "Hours to keep expired or revoked sessions")
	codeGrace     = flag.Int("code-grace", 24, "Hours to keep expired or used 2FA codes")
	runScheduler  = flag.Bool("subscriptions", true, "Run the reminder and expiry pass")
	cleanSessions = flag.Bool("clean-sessions", true, "Purge expired sessions")
	cleanCodes    = flag.Bool("clean-codes", true, "Purge expired 2FA codes")
)

type summary struct {
	dueSubscriptions int64
	sessions         int64
	codes            int64
}

func main() {
	flag.Parse()

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Mode).With("component", "cleanup")
	ctx := context.Background()
	log.Info(ctx, "starting cleanup task", "dry_run", *dryRun)

	// 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Error(ctx, "connect database failed", "error", err)
		os.Exit(1)
	}

	var sum summary
	if *dryRun {
		sum, err = count(ctx, db)
	} else {
		sum, err = execute(ctx, cfg, db, log)
	}
	if err != nil {
		log.Error(ctx, "cleanup failed", "error", err)
		os.Exit(1)
	}

	printSummary(sum)
}

// count 只统计，不修改任何数据
func count(ctx context.Context, db *gorm.DB) (summary, error) {
	var (
		sum summary
		err error
	)
	now := time.Now()

	if *runScheduler {
		sum.dueSubscriptions, err = repository.NewSubscriptionRepository(db).CountDue(ctx, now)
		if err != nil {
			return sum, fmt.Errorf("count due subscriptions: %w", err)
		}
	}
	if *cleanSessions {
		sum.sessions, err = repository.NewSessionRepository(db).CountPurgeable(ctx, hoursAgo(now, *sessionGrace))
		if err != nil {
			return sum, fmt.Errorf("count sessions: %w", err)
		}
	}
	if *cleanCodes {
		sum.codes, err = repository.NewTwoFactorRepository(db).CountPurgeableCodes(ctx, hoursAgo(now, *codeGrace))
		if err != nil {
			return sum, fmt.Errorf("count 2fa codes: %w", err)
		}
	}
	return sum, nil
}

func execute(ctx context.Context, cfg *config.Config, db *gorm.DB, log logger.Logger) (summary, error) {
	var (
		sum summary
		err error
	)
	now := time.Now()

	if *runScheduler {
		// 通知经由队列交给 worker 投递
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			return sum, fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()

		subRepo := repository.NewSubscriptionRepository(db)
		if sum.dueSubscriptions, err = subRepo.CountDue(ctx, now); err != nil {
			return sum, err
		}
		notifier := notify.NewQueueNotifier(queue.NewQueue(rdb, cfg.Queue.NotificationQueue))
		subs := service.NewSubscriptionService(subRepo, notifier, log, cfg.Scheduler.ReminderWindow())
		if err := subs.Tick(ctx); err != nil {
			return sum, fmt.Errorf("subscription pass: %w", err)
		}
	}
	if *cleanSessions {
		sum.sessions, err = repository.NewSessionRepository(db).PurgeExpired(ctx, hoursAgo(now, *sessionGrace))
		if err != nil {
			return sum, fmt.Errorf("purge sessions: %w", err)
		}
	}
	if *cleanCodes {
		sum.codes, err = repository.NewTwoFactorRepository(db).PurgeCodes(ctx, hoursAgo(now, *codeGrace))
		if err != nil {
			return sum, fmt.Errorf("purge 2fa codes: %w", err)
		}
	}
	return sum, nil
}

func hoursAgo(now time.Time, hours int) time.Time {
	return now.Add(-time.Duration(hours) * time.Hour)
}

func printSummary(sum summary) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Cleanup Summary")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Due subscriptions: %d\n", sum.dueSubscriptions)
	fmt.Printf("Expired sessions:  %d\n", sum.sessions)
	fmt.Printf("Stale 2FA codes:   %d\n", sum.codes)
	if *dryRun {
		fmt.Println("\nDRY RUN MODE - nothing was changed")
		fmt.Println("Run with -dry-run=false to apply")
	} else {
		fmt.Println("\nCleanup completed")
	}
	fmt.Println(strings.Repeat("=", 60))
}
