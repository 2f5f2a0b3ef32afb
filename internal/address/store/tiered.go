package store

import (
	"context"
	"errors"
	"log/slog"

	"rollguard/internal/address/metrics"
	"rollguard/internal/address/models"
	"rollguard/internal/sentinel"
)

// Tiered reads through its tiers in order and backfills the faster tiers on
// a hit further down. Tier failures are logged and treated as misses so an
// unavailable Redis never blocks validation.
type Tiered struct {
	tiers   []Tier
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTiered builds a cache over tiers, fastest first. Nil tiers are skipped.
func NewTiered(logger *slog.Logger, m *metrics.Metrics, tiers ...Tier) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tiered{metrics: m, logger: logger}
	for _, tier := range tiers {
		if tier != nil {
			t.tiers = append(t.tiers, tier)
		}
	}
	return t
}

func (t *Tiered) Find(ctx context.Context, digest string) (*models.CacheEntry, error) {
	for i, tier := range t.tiers {
		entry, err := tier.Find(ctx, digest)
		if err == nil {
			t.recordHit(tier.Name())
			t.backfill(ctx, entry, t.tiers[:i])
			return entry, nil
		}
		t.recordMiss(tier.Name())
		if !errors.Is(err, sentinel.ErrNotFound) {
			t.logger.WarnContext(ctx, "address cache tier failed", "tier", tier.Name(), "error", err)
		}
	}
	return nil, sentinel.ErrNotFound
}

// Save writes to every tier; it fails only when no tier accepted the entry.
func (t *Tiered) Save(ctx context.Context, entry *models.CacheEntry) error {
	var errs []error
	for _, tier := range t.tiers {
		if err := tier.Save(ctx, entry); err != nil {
			t.logger.WarnContext(ctx, "address cache save failed", "tier", tier.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	if len(t.tiers) > 0 && len(errs) == len(t.tiers) {
		return errors.Join(errs...)
	}
	return nil
}

func (t *Tiered) backfill(ctx context.Context, entry *models.CacheEntry, tiers []Tier) {
	for _, tier := range tiers {
		if err := tier.Save(ctx, entry); err != nil {
			t.logger.WarnContext(ctx, "address cache backfill failed", "tier", tier.Name(), "error", err)
		}
	}
}

func (t *Tiered) recordHit(tier string) {
	if t.metrics != nil {
		t.metrics.RecordCacheHit(tier)
	}
}

func (t *Tiered) recordMiss(tier string) {
	if t.metrics != nil {
		t.metrics.RecordCacheMiss(tier)
	}
}
