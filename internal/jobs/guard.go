package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	retryStep     = 50 * time.Millisecond
	retryMaxDelay = 2000 * time.Millisecond

	// DefaultMaxRetries is how many failed probes are retried before the
	// broker is declared unreachable.
	DefaultMaxRetries = 3
)

// Pinger is anything that can probe broker reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RetryDelay is the wait after the attempt-th failed probe:
// min(attempt*50ms, 2s).
func RetryDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * retryStep
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

// Guard probes the broker before workers start so an unreachable broker
// degrades the process instead of crashing it.
type Guard struct {
	pinger     Pinger
	maxRetries int
	logger     *zap.Logger

	// Sleep waits between attempts; replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewGuard(pinger Pinger, maxRetries int, logger *zap.Logger) *Guard {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Guard{
		pinger:     pinger,
		maxRetries: maxRetries,
		logger:     logger,
		Sleep:      sleepContext,
	}
}

// Check reports whether the broker answered. Attempt n that fails is retried
// after RetryDelay(n) unless n exceeds the retry cap, in which case Check
// logs a warning and returns false. It never panics.
func (g *Guard) Check(ctx context.Context) bool {
	for attempt := 1; ; attempt++ {
		err := g.ping(ctx)
		if err == nil {
			if attempt > 1 {
				g.logger.Info("broker reachable", zap.Int("attempt", attempt))
			}
			return true
		}

		if attempt > g.maxRetries {
			g.logger.Warn("broker unreachable, giving up",
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return false
		}

		delay := RetryDelay(attempt)
		g.logger.Debug("broker probe failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := g.Sleep(ctx, delay); err != nil {
			g.logger.Warn("broker probe interrupted", zap.Error(err))
			return false
		}
	}
}

func (g *Guard) ping(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ping panicked: %v", r)
		}
	}()
	return g.pinger.Ping(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
