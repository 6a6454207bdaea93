package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/notify"
)

// SendFunc delivers message to a shoutrrr service URL.
type SendFunc func(url, message string) error

// ChatAdapter posts to team chat services (Slack, Discord, Teams, ntfy...)
// through shoutrrr URLs. It does not need a recipient contact: every
// configured room gets the message.
type ChatAdapter struct {
	urls   []string
	send   SendFunc
	logger *zap.Logger
}

func NewChatAdapter(urls []string, logger *zap.Logger) *ChatAdapter {
	return NewChatAdapterWithSender(urls, shoutrrr.Send, logger)
}

func NewChatAdapterWithSender(urls []string, send SendFunc, logger *zap.Logger) *ChatAdapter {
	return &ChatAdapter{urls: urls, send: send, logger: logger}
}

func (a *ChatAdapter) Channel() notify.Channel      { return notify.ChannelChat }
func (a *ChatAdapter) Requires() notify.ContactKind { return notify.ContactNone }

// Deliver posts to every configured URL and fails if any of them fails.
func (a *ChatAdapter) Deliver(ctx context.Context, to notify.Recipient, msg notify.Message) error {
	if len(a.urls) == 0 {
		return errors.New("no chat urls configured")
	}

	text := msg.Title + "\n" + msg.Body
	if msg.Link != "" {
		text += "\n" + msg.Link
	}

	var errs []error
	for i, u := range a.urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.send(u, text); err != nil {
			// URLs carry credentials; log the index only
			a.logger.Warn("chat delivery failed", zap.Int("url_index", i), zap.Error(err))
			errs = append(errs, fmt.Errorf("chat url %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
