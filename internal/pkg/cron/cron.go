package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/qs3c/calmness_server/internal/pkg/logger"
)

const tracerName = "github.com/qs3c/calmness_server/internal/pkg/cron"

// TaskFunc 每个 tick 执行一次
type TaskFunc func(ctx context.Context) error

type task struct {
	name string
	fn   TaskFunc
}

// Scheduler 固定间隔执行任务，单次失败或 panic 不会终止循环
type Scheduler struct {
	interval time.Duration
	log      logger.Logger
	tasks    []task

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(interval time.Duration, log logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		interval: interval,
		log:      log,
	}
}

// Register 需在 Start 之前调用
func (s *Scheduler) Register(name string, fn TaskFunc) {
	s.tasks = append(s.tasks, task{name: name, fn: fn})
}

// Start 启动后台循环，重复调用无效
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
	s.log.Info(ctx, "scheduler started", "interval", s.interval.String(), "tasks", len(s.tasks))
}

// Stop 取消循环并等待当前 tick 结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info(context.Background(), "scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunNow(ctx)
		}
	}
}

// RunNow 立即执行一次全部任务，返回第一个失败
func (s *Scheduler) RunNow(ctx context.Context) error {
	var first error
	for _, t := range s.tasks {
		if err := s.runTask(ctx, t); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Scheduler) runTask(ctx context.Context, t task) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cron."+t.name)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Error(ctx, "scheduled task failed", "task", t.name, "error", err)
			return
		}
		span.SetAttributes(attribute.Int64("duration_ms", time.Since(start).Milliseconds()))
	}()

	return t.fn(ctx)
}
