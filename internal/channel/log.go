package channel

import (
	"context"

	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/notify"
)

// LogAdapter logs instead of delivering. It stands in for a channel whose
// provider is not configured in development.
type LogAdapter struct {
	channel notify.Channel
	logger  *zap.Logger
}

func NewLogAdapter(ch notify.Channel, logger *zap.Logger) *LogAdapter {
	return &LogAdapter{channel: ch, logger: logger}
}

func (a *LogAdapter) Channel() notify.Channel      { return a.channel }
func (a *LogAdapter) Requires() notify.ContactKind { return notify.ContactNone }

func (a *LogAdapter) Deliver(_ context.Context, to notify.Recipient, msg notify.Message) error {
	a.logger.Info("logging notification (development mode)",
		zap.String("channel", string(a.channel)),
		zap.String("recipient_id", to.ID),
		zap.String("recipient_type", to.Type),
		zap.String("notification_type", msg.Type),
		zap.String("title", msg.Title),
	)
	return nil
}
