// Package maintenance prunes expired address scores, delivered outbox
// entries and idle rate-limit windows on a fixed interval.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// AddressCache exposes cleanup for expired address scores.
type AddressCache interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Outbox exposes cleanup for entries that were already published.
type Outbox interface {
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int, error)
}

// IdlePruner drops in-memory state that has aged out.
type IdlePruner interface {
	Prune(now time.Time) int
}

// Result summarizes the deletions performed by a cleanup run.
type Result struct {
	DeletedAddressScores int
	DeletedOutboxEntries int
	PrunedRateLimitKeys  int
}

// Cleaner periodically removes expired rows.
type Cleaner struct {
	addresses AddressCache
	outbox    Outbox
	limiter   IdlePruner
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures Cleaner.
type Option func(*Cleaner)

// WithInterval overrides the cleanup interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(c *Cleaner) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithOutboxRetention sets how long published entries are kept.
func WithOutboxRetention(d time.Duration) Option {
	return func(c *Cleaner) {
		if d > 0 {
			c.retention = d
		}
	}
}

// WithIdlePruner adds an in-memory pruning step to every run.
func WithIdlePruner(p IdlePruner) Option {
	return func(c *Cleaner) {
		c.limiter = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cleaner) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(c *Cleaner) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a Cleaner with required stores and options applied.
func New(addresses AddressCache, ob Outbox, opts ...Option) (*Cleaner, error) {
	if addresses == nil || ob == nil {
		return nil, fmt.Errorf("address cache and outbox are required")
	}
	c := &Cleaner{
		addresses: addresses,
		outbox:    ob,
		interval:  15 * time.Minute,
		retention: 7 * 24 * time.Hour,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Start runs cleanup periodically until ctx is cancelled.
func (c *Cleaner) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := c.RunOnce(ctx)
			if err != nil {
				c.logger.ErrorContext(ctx, "maintenance cleanup failed", "error", err)
				continue
			}
			c.logger.DebugContext(ctx, "maintenance cleanup finished",
				"address_scores", res.DeletedAddressScores,
				"outbox_entries", res.DeletedOutboxEntries,
				"rate_limit_keys", res.PrunedRateLimitKeys,
			)
		case <-ctx.Done():
			return nil
		}
	}
}

// RunOnce performs a single cleanup pass. Failures of one step do not stop
// the other; all errors are returned joined.
func (c *Cleaner) RunOnce(ctx context.Context) (Result, error) {
	now := c.now()
	var res Result
	var errs []error

	scores, err := c.addresses.DeleteExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired address scores: %w", err))
	} else {
		res.DeletedAddressScores = scores
	}

	entries, err := c.outbox.DeleteProcessedBefore(ctx, now.Add(-c.retention))
	if err != nil {
		errs = append(errs, fmt.Errorf("delete published outbox entries: %w", err))
	} else {
		res.DeletedOutboxEntries = entries
	}

	if c.limiter != nil {
		res.PrunedRateLimitKeys = c.limiter.Prune(now)
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}
