package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rollguard/internal/address/models"
	"rollguard/internal/sentinel"
)

const redisKeyPrefix = "rollguard:address:"

// RedisCache shares address scores between instances with TTL-based eviction.
type RedisCache struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisCache constructs a Redis-backed address cache.
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client, now: time.Now}
}

func (c *RedisCache) Name() string { return TierRedis }

// Find loads a cached entry by digest.
//
// Errors: returns sentinel.ErrNotFound on a miss; wraps Redis or JSON decode errors.
func (c *RedisCache) Find(ctx context.Context, digest string) (*models.CacheEntry, error) {
	data, err := c.client.Get(ctx, redisKey(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("address cache %s: %w", TierRedis, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find address cache: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode address cache: %w", err)
	}
	if entry.Expired(c.now()) {
		return nil, fmt.Errorf("address cache %s: %w", TierRedis, sentinel.ErrNotFound)
	}
	return &entry, nil
}

// Save writes an entry with a key TTL matching its ExpiresAt.
//
// Side effects: performs a Redis SET; overwrites any existing entry.
func (c *RedisCache) Save(ctx context.Context, entry *models.CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is required")
	}
	ttl := entry.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode address cache: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(entry.Digest), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save address cache: %w", err)
	}
	return nil
}

func redisKey(digest string) string {
	return redisKeyPrefix + digest
}
