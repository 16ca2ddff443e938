package classify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/internal/core"
)

const cacheKeyPrefix = "parley:classify:"

// RedisCache shares classification results across processes. Faults are
// treated as misses; a broken cache never fails a request.
type RedisCache struct {
	Client          redis.UniversalClient
	Timeout         time.Duration
	RevalidateBelow float64
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client redis.UniversalClient, timeout time.Duration, revalidateBelow float64) *RedisCache {
	return &RedisCache{Client: client, Timeout: timeout, RevalidateBelow: revalidateBelow}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, fingerprint string) (*core.ClassificationResult, bool) {
	if c == nil || c.Client == nil {
		return nil, false
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	raw, err := c.Client.Get(ctx, cacheKeyPrefix+fingerprint).Bytes()
	if err != nil {
		return nil, false
	}

	var result core.ClassificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}

	if result.Confidence < c.RevalidateBelow {
		result.NeedsRevalidation = true
	}
	return &result, true
}

// Set implements Cache. Write failures are dropped silently; the entry
// simply expires from consideration.
func (c *RedisCache) Set(ctx context.Context, fingerprint string, result *core.ClassificationResult, ttl time.Duration) {
	if c == nil || c.Client == nil || result == nil || ttl <= 0 {
		return
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	stored := *result
	stored.NeedsRevalidation = false

	raw, err := json.Marshal(stored)
	if err != nil {
		return
	}

	_ = c.Client.Set(ctx, cacheKeyPrefix+fingerprint, raw, ttl).Err()
}
