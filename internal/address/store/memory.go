package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"rollguard/internal/address/models"
	"rollguard/internal/sentinel"
)

// MemoryCache is a process-local LRU in front of the shared tiers. Its TTL
// is short; entries also honour their own ExpiresAt.
type MemoryCache struct {
	lru *expirable.LRU[string, models.CacheEntry]
	now func() time.Time
}

// NewMemoryCache creates an LRU of at most size entries kept for ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, models.CacheEntry](size, nil, ttl),
		now: time.Now,
	}
}

func (c *MemoryCache) Name() string { return TierMemory }

func (c *MemoryCache) Find(_ context.Context, digest string) (*models.CacheEntry, error) {
	entry, ok := c.lru.Get(digest)
	if !ok {
		return nil, fmt.Errorf("address cache %s: %w", TierMemory, sentinel.ErrNotFound)
	}
	if entry.Expired(c.now()) {
		c.lru.Remove(digest)
		return nil, fmt.Errorf("address cache %s: %w", TierMemory, sentinel.ErrNotFound)
	}
	return &entry, nil
}

func (c *MemoryCache) Save(_ context.Context, entry *models.CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is required")
	}
	c.lru.Add(entry.Digest, *entry)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}
