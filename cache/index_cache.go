package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"beatvault/logger"
)

// DefaultIndexKey holds the cached track id list.
const DefaultIndexKey = "beatvault:tracks:list"

// IndexCache caches the decoded track index for the public catalog listing.
// Cache failures are logged and treated as misses; the bucket stays the
// source of truth.
type IndexCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewIndexCache creates an IndexCache.
func NewIndexCache(client *redis.Client, ttl time.Duration) *IndexCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &IndexCache{client: client, key: DefaultIndexKey, ttl: ttl}
}

// Get returns the cached ids and whether there was a hit.
func (c *IndexCache) Get(ctx context.Context) ([]string, bool) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("index cache read failed", logger.ErrorField(err))
		}
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		logger.Warn("index cache entry malformed; dropping", logger.ErrorField(err))
		c.Invalidate(ctx)
		return nil, false
	}
	return ids, true
}

// Set stores ids.
func (c *IndexCache) Set(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal index cache: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("write index cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached list.
func (c *IndexCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		logger.Warn("index cache invalidation failed", logger.ErrorField(err))
	}
}
