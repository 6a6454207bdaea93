package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/notify"
)

// ProtectedAdapter guards a channel adapter with a CircuitBreaker. While the
// breaker is open, Deliver fails fast with ErrCircuitOpen.
type ProtectedAdapter struct {
	notify.ChannelAdapter
	breaker *CircuitBreaker
	logger  *zap.Logger
}

func NewProtectedAdapter(next notify.ChannelAdapter, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedAdapter {
	return &ProtectedAdapter{ChannelAdapter: next, breaker: breaker, logger: logger}
}

// Protect wraps next with a breaker named after its channel.
func Protect(next notify.ChannelAdapter, cfg Config, logger *zap.Logger) *ProtectedAdapter {
	if cfg.Name == "" {
		cfg.Name = string(next.Channel())
	}
	return NewProtectedAdapter(next, New(cfg, logger), logger)
}

func (p *ProtectedAdapter) Deliver(ctx context.Context, to notify.Recipient, msg notify.Message) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected delivery",
			zap.String("breaker", p.breaker.Name()),
			zap.String("recipient_id", to.ID),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s unavailable", ErrCircuitOpen, p.breaker.Name())
	}

	if err := p.ChannelAdapter.Deliver(ctx, to, msg); err != nil {
		p.breaker.RecordFailure()
		return err
	}
	p.breaker.RecordSuccess()
	return nil
}

func (p *ProtectedAdapter) Breaker() *CircuitBreaker {
	return p.breaker
}
