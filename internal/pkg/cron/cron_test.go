package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/calmness_server/internal/pkg/logger"
)

func TestNewScheduler_DefaultInterval(t *testing.T) {
	s := NewScheduler(0, logger.Discard())
	assert.Equal(t, 15*time.Minute, s.interval)
}

func TestScheduler_RunNow_IsolatesFailures(t *testing.T) {
	s := NewScheduler(time.Hour, logger.Discard())

	var ran []string
	s.Register("boom", func(ctx context.Context) error {
		ran = append(ran, "boom")
		panic("unexpected")
	})
	s.Register("fails", func(ctx context.Context) error {
		ran = append(ran, "fails")
		return errors.New("db down")
	})
	s.Register("ok", func(ctx context.Context) error {
		ran = append(ran, "ok")
		return nil
	})

	err := s.RunNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, []string{"boom", "fails", "ok"}, ran)
}

func TestScheduler_KeepsTickingAfterFailure(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, logger.Discard())

	var calls int32
	s.Register("flaky", func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("first tick")
		}
		return errors.New("still failing")
	})

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 3
	}, time.Second, 5*time.Millisecond)
	s.Stop()

	after := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls))
}

func TestScheduler_StartTwiceAndStopTwice(t *testing.T) {
	s := NewScheduler(time.Hour, logger.Discard())

	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}

func TestScheduler_StopsOnParentCancel(t *testing.T) {
	s := NewScheduler(5*time.Millisecond, logger.Discard())

	var calls int32
	s.Register("count", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) > 0 }, time.Second, time.Millisecond)
	cancel()

	// Stop 仍然能正常返回
	s.Stop()
}
