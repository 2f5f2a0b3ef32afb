package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"rollguard/internal/name/models"
	"rollguard/internal/sentinel"
)

// Source is the uncached corpus.
type Source interface {
	Frequency(ctx context.Context, role models.Role, name string) (int, error)
	Candidates(ctx context.Context, role models.Role, prefix string, limit int) ([]string, error)
}

// CachedLookup fronts a Source with expiring LRUs. Misses are cached too, as
// frequency zero, so unknown names do not hit the database on every request.
type CachedLookup struct {
	source     Source
	freq       *expirable.LRU[string, int]
	candidates *expirable.LRU[string, []string]
}

// NewCachedLookup caches up to size entries of each kind for ttl.
func NewCachedLookup(source Source, size int, ttl time.Duration) *CachedLookup {
	if size <= 0 {
		size = 10000
	}
	return &CachedLookup{
		source:     source,
		freq:       expirable.NewLRU[string, int](size, nil, ttl),
		candidates: expirable.NewLRU[string, []string](size, nil, ttl),
	}
}

func (c *CachedLookup) Frequency(ctx context.Context, role models.Role, name string) (int, error) {
	key := string(role) + "|" + name
	if freq, ok := c.freq.Get(key); ok {
		if freq == 0 {
			return 0, sentinel.ErrNotFound
		}
		return freq, nil
	}
	freq, err := c.source.Frequency(ctx, role, name)
	if errors.Is(err, sentinel.ErrNotFound) {
		c.freq.Add(key, 0)
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	c.freq.Add(key, freq)
	return freq, nil
}

func (c *CachedLookup) Candidates(ctx context.Context, role models.Role, prefix string, limit int) ([]string, error) {
	key := string(role) + "|" + prefix + "|" + strconv.Itoa(limit)
	if names, ok := c.candidates.Get(key); ok {
		return names, nil
	}
	names, err := c.source.Candidates(ctx, role, prefix, limit)
	if err != nil {
		return nil, err
	}
	c.candidates.Add(key, names)
	return names, nil
}

// Purge drops every cached entry, used after the corpus is re-imported.
func (c *CachedLookup) Purge() {
	c.freq.Purge()
	c.candidates.Purge()
}
