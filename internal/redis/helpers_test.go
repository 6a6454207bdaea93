package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := New(Config{Addr: mr.Addr()}, zap.NewNop())
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})
	return client, mr
}
