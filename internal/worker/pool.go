package worker

import (
	"context"
	"sync"
	"time"

	"github.com/qs3c/calmness_server/internal/pkg/logger"
	"github.com/qs3c/calmness_server/internal/pkg/queue"
)

const popTimeout = 5 * time.Second

// JobQueue 由 pkg/queue 实现
type JobQueue interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.JobMessage, error)
	Retry(ctx context.Context, msg *queue.JobMessage) (bool, error)
}

// Pool 多个 goroutine 共同消费同一个队列
type Pool struct {
	queue     JobQueue
	processor *Processor
	workers   int
	log       logger.Logger
}

func NewPool(q JobQueue, processor *Processor, workers int, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:     q,
		processor: processor,
		workers:   workers,
		log:       log,
	}
}

// Run 阻塞直到 ctx 取消且所有 worker 退出
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.loop(ctx, workerID)
		}(i)
	}
	p.log.Info(ctx, "worker pool started", "workers", p.workers)

	wg.Wait()
	p.log.Info(context.Background(), "worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := p.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error(ctx, "pop job failed", "worker", workerID, "error", err)
			continue
		}
		if msg == nil {
			continue
		}

		p.Handle(ctx, msg)
	}
}

// Handle 处理一个任务，可重试的失败重新入队直到 MaxAttempts
func (p *Pool) Handle(ctx context.Context, msg *queue.JobMessage) {
	log := p.log.With("job_id", msg.ID, "type", string(msg.Type), "user_id", msg.UserID)

	err := p.processor.Process(ctx, msg)
	if err == nil {
		log.Debug(ctx, "job done")
		return
	}

	if !Retryable(err) {
		log.Error(ctx, "job dropped", "error", err)
		return
	}

	requeued, retryErr := p.queue.Retry(ctx, msg)
	switch {
	case retryErr != nil:
		log.Error(ctx, "requeue job failed", "error", err, "retry_error", retryErr)
	case requeued:
		log.Warn(ctx, "job failed, requeued", "attempts", msg.Attempts, "error", err)
	default:
		log.Error(ctx, "job failed permanently", "attempts", msg.Attempts, "error", err)
	}
}
