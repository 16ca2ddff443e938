package classify

import (
	"context"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/core"
)

// Cache stores classification results under message fingerprints.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (*core.ClassificationResult, bool)
	Set(ctx context.Context, fingerprint string, result *core.ClassificationResult, ttl time.Duration)
}

type memoryCacheEntry struct {
	result    core.ClassificationResult
	expiresAt time.Time
}

// MemoryCache is the in-process Cache, with lazy expiry on access.
type MemoryCache struct {
	Clock func() time.Time

	// RevalidateBelow flags hits whose confidence sits under the lowest
	// dispatch threshold; the entry is still honored for the turn.
	RevalidateBelow float64

	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
}

// NewMemoryCache returns an empty cache flagging hits below the given
// confidence for re-validation.
func NewMemoryCache(revalidateBelow float64) *MemoryCache {
	return &MemoryCache{
		RevalidateBelow: revalidateBelow,
		entries:         make(map[string]memoryCacheEntry),
	}
}

// Get implements Cache. The returned result is a copy; cached confidence
// is never mutated in place.
func (c *MemoryCache) Get(ctx context.Context, fingerprint string) (*core.ClassificationResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	now := c.now()
	if !entry.expiresAt.After(now) {
		c.mu.Lock()
		if current, still := c.entries[fingerprint]; still && !current.expiresAt.After(now) {
			delete(c.entries, fingerprint)
		}
		c.mu.Unlock()
		return nil, false
	}

	result := entry.result
	if result.Confidence < c.RevalidateBelow {
		result.NeedsRevalidation = true
	}
	return &result, true
}

// Set implements Cache, replacing any previous entry wholesale.
func (c *MemoryCache) Set(ctx context.Context, fingerprint string, result *core.ClassificationResult, ttl time.Duration) {
	if result == nil || ttl <= 0 {
		return
	}

	stored := *result
	stored.NeedsRevalidation = false

	c.mu.Lock()
	if c.entries == nil {
		c.entries = make(map[string]memoryCacheEntry)
	}
	c.entries[fingerprint] = memoryCacheEntry{
		result:    stored,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
}

func (c *MemoryCache) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}
