package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultDedupeTTL is how long a reserved key blocks duplicates.
const DefaultDedupeTTL = 24 * time.Hour

// Deduper reserves keys with SET NX so the first writer wins and later
// writers with the same key are told to skip.
type Deduper struct {
	client *Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper creates a deduper; ttl <= 0 means DefaultDedupeTTL.
func NewDeduper(client *Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &Deduper{client: client, ttl: ttl, logger: logger}
}

func (d *Deduper) buildKey(scope, key string) string {
	return fmt.Sprintf("crmflow:dedupe:%s:%s", scope, key)
}

// Reserve returns true if key was free in scope and is now taken.
func (d *Deduper) Reserve(ctx context.Context, scope, key string) (bool, error) {
	set, err := d.client.rdb.SetNX(ctx, d.buildKey(scope, key), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !set {
		d.logger.Debug("duplicate key", zap.String("scope", scope), zap.String("key", key))
	}
	return set, nil
}

// Release frees key so it can be reserved again, e.g. after the guarded
// write failed.
func (d *Deduper) Release(ctx context.Context, scope, key string) error {
	if err := d.client.rdb.Del(ctx, d.buildKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
