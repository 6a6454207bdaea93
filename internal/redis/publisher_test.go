package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublisher_Publish(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	sub := client.rdb.Subscribe(ctx, "notification:user-1")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewPublisher(client, zap.NewNop())
	require.NoError(t, p.Publish(ctx, "notification:user-1", map[string]any{"title": "Welcome"}))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, `{"title":"Welcome"}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPublisher_EncodeError(t *testing.T) {
	client, _ := setupTestRedis(t)
	p := NewPublisher(client, zap.NewNop())

	err := p.Publish(context.Background(), "t", map[string]any{"bad": make(chan int)})
	assert.ErrorContains(t, err, "encode t payload")
}
