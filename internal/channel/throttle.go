package channel

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/notify"
	"github.com/lalithlochan/crmflow/internal/redis"
)

// ErrThrottled is returned when a recipient exceeded the channel's rate.
var ErrThrottled = errors.New("channel rate limit exceeded")

// Limiter is satisfied by *redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (*redis.RateLimitResult, error)
}

// Throttled caps deliveries per recipient and channel. When the limiter
// itself fails the message goes out anyway.
type Throttled struct {
	notify.ChannelAdapter
	limiter Limiter
	logger  *zap.Logger
}

func NewThrottled(next notify.ChannelAdapter, limiter Limiter, logger *zap.Logger) *Throttled {
	return &Throttled{ChannelAdapter: next, limiter: limiter, logger: logger}
}

func (t *Throttled) Deliver(ctx context.Context, to notify.Recipient, msg notify.Message) error {
	key := fmt.Sprintf("channel:%s:%s:%s", t.Channel(), to.Type, to.ID)

	res, err := t.limiter.Allow(ctx, key)
	if err != nil {
		t.logger.Warn("channel rate limiter unavailable, delivering anyway",
			zap.String("channel", string(t.Channel())),
			zap.Error(err),
		)
		return t.ChannelAdapter.Deliver(ctx, to, msg)
	}
	if !res.Allowed {
		return fmt.Errorf("%w: %s for %s", ErrThrottled, t.Channel(), to.ID)
	}
	return t.ChannelAdapter.Deliver(ctx, to, msg)
}
