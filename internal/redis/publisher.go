package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Publisher fans real-time events out over Redis pub/sub. Payloads are
// JSON-encoded; subscribers listen on the topic name.
type Publisher struct {
	client *Client
	logger *zap.Logger
}

func NewPublisher(client *Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	receivers, err := p.client.rdb.Publish(ctx, topic, data).Result()
	if err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}

	p.logger.Debug("event published", zap.String("topic", topic), zap.Int64("receivers", receivers))
	return nil
}
