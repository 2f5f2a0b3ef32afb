// Package store holds the address score cache tiers. Each tier returns
// sentinel.ErrNotFound on a miss or an expired entry.
package store

import (
	"context"

	"rollguard/internal/address/models"
)

// Tier names used in metrics and logs.
const (
	TierMemory = "memory"
	TierRedis  = "redis"
	TierSQL    = "sql"
)

// Tier is one level of the read-through cache.
type Tier interface {
	Name() string
	Find(ctx context.Context, digest string) (*models.CacheEntry, error)
	Save(ctx context.Context, entry *models.CacheEntry) error
}
