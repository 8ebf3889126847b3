package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*IndexCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewIndexCache(client, time.Minute), mr
}

func TestIndexCacheRoundTrip(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	_, hit := c.Get(ctx)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, []string{"track_a", "track_b"}))
	ids, hit := c.Get(ctx)
	require.True(t, hit)
	assert.Equal(t, []string{"track_a", "track_b"}, ids)
	assert.Equal(t, time.Minute, mr.TTL(DefaultIndexKey))

	c.Invalidate(ctx)
	_, hit = c.Get(ctx)
	assert.False(t, hit)
}

func TestIndexCacheExpiry(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, nil))

	ids, hit := c.Get(ctx)
	require.True(t, hit)
	assert.Empty(t, ids)

	mr.FastForward(2 * time.Minute)
	_, hit = c.Get(ctx)
	assert.False(t, hit)
}

func TestIndexCacheMalformedEntryIsMiss(t *testing.T) {
	c, mr := newCache(t)
	require.NoError(t, mr.Set(DefaultIndexKey, "not json"))

	_, hit := c.Get(context.Background())
	assert.False(t, hit)
	assert.False(t, mr.Exists(DefaultIndexKey))
}

func TestIndexCacheDownIsMiss(t *testing.T) {
	c, mr := newCache(t)
	mr.Close()

	_, hit := c.Get(context.Background())
	assert.False(t, hit)
	assert.Error(t, c.Set(context.Background(), []string{"track_a"}))
}
