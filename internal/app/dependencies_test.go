package app

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNewGlobalLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewLimiterStore(client)
	require.NoError(t, err)

	lim, err := NewGlobalLimiter(store, "300-M")
	require.NoError(t, err)

	lctx, err := lim.Get(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	require.EqualValues(t, 300, lctx.Limit)
	require.False(t, lctx.Reached)
}

func TestNewGlobalLimiterRejectsBadRate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewLimiterStore(client)
	require.NoError(t, err)

	_, err = NewGlobalLimiter(store, "not-a-rate")
	require.Error(t, err)
}
