package cache_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/tweetheart/internal/cache"
	"github.com/oggyb/tweetheart/internal/config"
)

func newCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	return cache.NewRedisCache(cfg), mr
}

func TestCountRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)
	key := c.KeyForLikeCount(42)

	_, ok, err := c.GetCount(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "empty cache is a miss")

	require.NoError(t, c.SetCount(ctx, key, 7))
	n, ok, err := c.GetCount(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, cache.LikeCountTTL, mr.TTL(key))
}

func TestMalformedCountIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)
	key := c.KeyForUnreadNotifications(1)
	require.NoError(t, mr.Set(key, "not-a-number"))

	_, ok, err := c.GetCount(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)
	key := c.KeyForLikeCount(3)
	require.NoError(t, c.SetCount(ctx, key, 1))

	require.NoError(t, c.Invalidate(ctx, key))
	assert.False(t, mr.Exists(key))
	require.NoError(t, c.Invalidate(ctx))
}
