package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"rollguard/internal/address/models"
	addressstore "rollguard/internal/address/store"
	"rollguard/internal/outbox"
	"rollguard/pkg/testutil"
)

func TestCleaner_RunOnce_Integration(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	pool := testutil.NewSQLitePool(t)
	cache := addressstore.NewSQLCache(pool)
	ob := outbox.NewStore(pool)

	save := func(digest string, expiresAt time.Time) {
		require.NoError(t, cache.Save(ctx, &models.CacheEntry{
			Digest:       digest,
			Normalized:   "1 MAIN ST|SPRINGFIELD|IL|62701",
			Geocode:      models.Geocode{Latitude: 39.8, Longitude: -89.6, Confidence: 0.9, Provider: "primary"},
			QualityScore: 90,
			CachedAt:     expiresAt.Add(-24 * time.Hour),
			ExpiresAt:    expiresAt,
		}))
	}
	save("expired", now.Add(-time.Hour))
	save("fresh", now.Add(time.Hour))

	old := outbox.NewEntry(outbox.AggregateAuditEntry, uuid.NewString(), "voter_registered", []byte(`{}`), now.Add(-10*24*time.Hour))
	recent := outbox.NewEntry(outbox.AggregateAuditEntry, uuid.NewString(), "voter_registered", []byte(`{}`), now.Add(-time.Hour))
	pending := outbox.NewEntry(outbox.AggregateClusterAlert, uuid.NewString(), "cluster_flag_suspicious", []byte(`{}`), now.Add(-10*24*time.Hour))
	for _, e := range []*outbox.Entry{old, recent, pending} {
		require.NoError(t, ob.Append(ctx, e))
	}
	require.NoError(t, ob.MarkProcessed(ctx, old.ID, now.Add(-9*24*time.Hour)))
	require.NoError(t, ob.MarkProcessed(ctx, recent.ID, now.Add(-time.Hour)))

	c, err := New(cache, ob, WithOutboxRetention(7*24*time.Hour), WithNow(func() time.Time { return now }))
	require.NoError(t, err)

	res, err := c.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.DeletedAddressScores)
	require.Equal(t, 1, res.DeletedOutboxEntries)

	var remaining string
	require.NoError(t, pool.DB().QueryRowContext(ctx, `SELECT address_digest FROM address_cache`).Scan(&remaining))
	require.Equal(t, "fresh", remaining)

	count, err := ob.CountPending(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

type failingCache struct{}

func (failingCache) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, errors.New("disk full")
}

type countingOutbox struct{ calls int }

func (o *countingOutbox) DeleteProcessedBefore(context.Context, time.Time) (int, error) {
	o.calls++
	return 3, nil
}

func TestCleaner_RunOnce_ContinuesPastFailures(t *testing.T) {
	ob := &countingOutbox{}
	c, err := New(failingCache{}, ob)
	require.NoError(t, err)

	res, err := c.RunOnce(context.Background())
	require.ErrorContains(t, err, "delete expired address scores")
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, ob.calls)
	require.Equal(t, 3, res.DeletedOutboxEntries)
}

func TestNew_RequiresStores(t *testing.T) {
	_, err := New(nil, &countingOutbox{})
	require.Error(t, err)
}

type stubPruner struct{ at time.Time }

func (p *stubPruner) Prune(now time.Time) int {
	p.at = now
	return 2
}

func TestCleaner_RunOnce_PrunesIdleKeys(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &stubPruner{}
	c, err := New(&zeroCache{}, &countingOutbox{}, WithIdlePruner(p), WithNow(func() time.Time { return now }))
	require.NoError(t, err)

	res, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.PrunedRateLimitKeys)
	require.Equal(t, now, p.at)
}

type zeroCache struct{}

func (*zeroCache) DeleteExpired(context.Context, time.Time) (int, error) { return 0, nil }
