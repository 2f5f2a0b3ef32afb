// Package service validates and scores postal addresses.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rollguard/internal/address/geocoder"
	"rollguard/internal/address/metrics"
	"rollguard/internal/address/models"
	"rollguard/internal/address/normalize"
	"rollguard/internal/platform/tracer"
	"rollguard/internal/sentinel"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/middleware/requesttime"
)

// Geocoder resolves a normalized address. It always answers, falling back
// to a placeholder when no provider can.
type Geocoder interface {
	Resolve(ctx context.Context, digest string, q geocoder.Query) *models.Geocode
}

// Cache is the address score cache keyed by digest.
type Cache interface {
	Find(ctx context.Context, digest string) (*models.CacheEntry, error)
	Save(ctx context.Context, entry *models.CacheEntry) error
}

// Service normalizes, geocodes and scores addresses.
type Service struct {
	geocoder Geocoder
	cache    Cache
	cacheTTL time.Duration
	tracer   tracer.Tracer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func(ctx context.Context) time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithCacheTTL sets how long a score stays cached. Default is 30 days.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithNow overrides the clock, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = func(context.Context) time.Time { return now() }
		}
	}
}

// New creates an address service. cache may be nil to disable caching.
func New(geo Geocoder, cache Cache, opts ...Option) *Service {
	s := &Service{
		geocoder: geo,
		cache:    cache,
		cacheTTL: 30 * 24 * time.Hour,
		tracer:   tracer.NewNoop(),
		logger:   slog.Default(),
		now:      requesttime.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateAddress normalizes the components, reuses a cached geocode when
// one is fresh, and scores the result. A low score is reported in the
// result, never as an error.
func (s *Service) ValidateAddress(ctx context.Context, raw models.Components) (*models.Result, error) {
	normalized, canonical, digest := normalize.Address(raw)
	if canonical == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "address has no components")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanAddressValidate,
		tracer.String(tracer.AttrAddressDigest, tracer.ShortDigest(digest)),
	)
	defer span.End(nil)

	geocode, cached := s.lookup(ctx, digest)
	if geocode == nil {
		geocode = s.geocoder.Resolve(ctx, digest, geocoder.Query{Canonical: canonical, Components: normalized})
	}
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, cached))

	score, flags := Score(normalized, canonical, geocode)
	result := &models.Result{
		Normalized:       normalized,
		Canonical:        canonical,
		Digest:           digest,
		Geocode:          geocode,
		QualityScore:     score,
		ValidationResult: models.ResultForScore(score),
		Flags:            flags,
		Cached:           cached,
	}

	if !cached {
		s.store(ctx, result)
	}
	if s.metrics != nil {
		s.metrics.IncValidation(string(result.ValidationResult))
	}
	return result, nil
}

func (s *Service) lookup(ctx context.Context, digest string) (*models.Geocode, bool) {
	if s.cache == nil {
		return nil, false
	}
	entry, err := s.cache.Find(ctx, digest)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "address cache lookup failed", "error", err)
		}
		return nil, false
	}
	geocode := entry.Geocode
	return &geocode, true
}

// store caches a provider answer. Placeholders are not cached so the address
// is geocoded again once a provider recovers.
func (s *Service) store(ctx context.Context, result *models.Result) {
	if s.cache == nil || result.Geocode.IsPlaceholder() {
		return
	}
	now := s.now(ctx).UTC().Truncate(time.Microsecond)
	err := s.cache.Save(ctx, &models.CacheEntry{
		Digest:       result.Digest,
		Normalized:   result.Canonical,
		Geocode:      *result.Geocode,
		QualityScore: result.QualityScore,
		CachedAt:     now,
		ExpiresAt:    now.Add(s.cacheTTL),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "address cache save failed", "error", err)
	}
}
