package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rollguard/internal/address/models"
	"rollguard/internal/platform/database"
	"rollguard/internal/sentinel"
)

// SQLCache is the durable tier, stored in address_cache.
type SQLCache struct {
	pool *database.Pool
	now  func() time.Time
}

func NewSQLCache(pool *database.Pool) *SQLCache {
	return &SQLCache{pool: pool, now: time.Now}
}

func (c *SQLCache) Name() string { return TierSQL }

func (c *SQLCache) Find(ctx context.Context, digest string) (*models.CacheEntry, error) {
	var e models.CacheEntry
	err := c.pool.Conn(ctx).QueryRowContext(ctx, c.pool.Q(`
		SELECT address_digest, normalized_address, latitude, longitude, confidence,
		       formatted_address, geocode_postal, provider, quality_score, cached_at, expires_at
		FROM address_cache
		WHERE address_digest = ? AND expires_at > ?`), digest, c.now().UTC(),
	).Scan(&e.Digest, &e.Normalized, &e.Geocode.Latitude, &e.Geocode.Longitude, &e.Geocode.Confidence,
		&e.Geocode.FormattedAddress, &e.Geocode.PostalCode, &e.Geocode.Provider, &e.QualityScore,
		&e.CachedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("address cache %s: %w", TierSQL, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find address cache: %w", err)
	}
	return &e, nil
}

func (c *SQLCache) Save(ctx context.Context, entry *models.CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is required")
	}
	_, err := c.pool.Conn(ctx).ExecContext(ctx, c.pool.Q(`
		INSERT INTO address_cache (
			address_digest, normalized_address, latitude, longitude, confidence,
			formatted_address, geocode_postal, provider, quality_score, cached_at, expires_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address_digest) DO UPDATE SET
			normalized_address = EXCLUDED.normalized_address,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			confidence = EXCLUDED.confidence,
			formatted_address = EXCLUDED.formatted_address,
			geocode_postal = EXCLUDED.geocode_postal,
			provider = EXCLUDED.provider,
			quality_score = EXCLUDED.quality_score,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at`),
		entry.Digest, entry.Normalized, entry.Geocode.Latitude, entry.Geocode.Longitude, entry.Geocode.Confidence,
		entry.Geocode.FormattedAddress, entry.Geocode.PostalCode, entry.Geocode.Provider, entry.QualityScore,
		entry.CachedAt.UTC(), entry.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save address cache: %w", err)
	}
	return nil
}

// DeleteExpired removes entries that expired before now.
func (c *SQLCache) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := c.pool.Conn(ctx).ExecContext(ctx, c.pool.Q(`DELETE FROM address_cache WHERE expires_at <= ?`), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired address cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}
