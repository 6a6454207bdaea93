package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRateLimiter(t *testing.T, limit int, window time.Duration) *RateLimiter {
	t.Helper()
	client, _ := setupTestRedis(t)
	return NewRateLimiter(client, zap.NewNop(), RateLimitConfig{Limit: limit, Window: window})
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	limiter := setupTestRateLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "test-key")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i)
		assert.Equal(t, 4-i, result.Remaining)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	limiter := setupTestRateLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "test-key")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "test-key")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter := setupTestRateLimiter(t, 1, time.Minute)
	ctx := context.Background()

	r1, err := limiter.Allow(ctx, "email:user-1")
	require.NoError(t, err)
	r2, err := limiter.Allow(ctx, "email:user-2")
	require.NoError(t, err)

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	limiter := setupTestRateLimiter(t, 1, time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	r, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, r.Allowed)

	r, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, r.Allowed)

	now = now.Add(61 * time.Second)
	r, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
}
