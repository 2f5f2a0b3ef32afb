package geocoder

import (
	"context"
	"log/slog"
	"time"

	"rollguard/internal/address/metrics"
	"rollguard/internal/address/models"
	"rollguard/internal/platform/tracer"
	"rollguard/pkg/platform/circuit"
)

type link struct {
	provider Provider
	breaker  *circuit.Breaker
}

// Chain tries providers in order. Each provider sits behind its own circuit
// breaker; a failure falls through to the next provider immediately.
type Chain struct {
	links   []link
	timeout time.Duration
	tracer  tracer.Tracer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*chainConfig)

type chainConfig struct {
	timeout        time.Duration
	breakerOptions []circuit.Option
	tracer         tracer.Tracer
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// WithTimeout bounds each provider call. Default is 5s.
func WithTimeout(d time.Duration) ChainOption {
	return func(c *chainConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreakerOptions configures the per-provider circuit breakers.
func WithBreakerOptions(opts ...circuit.Option) ChainOption {
	return func(c *chainConfig) {
		c.breakerOptions = append(c.breakerOptions, opts...)
	}
}

func WithTracer(t tracer.Tracer) ChainOption {
	return func(c *chainConfig) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithMetrics(m *metrics.Metrics) ChainOption {
	return func(c *chainConfig) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *chainConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChain builds a chain over providers in priority order. Nil providers
// are skipped so optional secondaries can be passed unconditionally.
func NewChain(providers []Provider, opts ...ChainOption) *Chain {
	cfg := chainConfig{
		timeout: 5 * time.Second,
		tracer:  tracer.NewNoop(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Chain{
		timeout: cfg.timeout,
		tracer:  cfg.tracer,
		metrics: cfg.metrics,
		logger:  cfg.logger,
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		c.links = append(c.links, link{
			provider: p,
			breaker:  circuit.New(p.Name(), cfg.breakerOptions...),
		})
	}
	return c
}

// Resolve returns the first provider answer, or a placeholder derived from
// digest when every provider failed or was skipped. It never returns an error.
func (c *Chain) Resolve(ctx context.Context, digest string, q Query) *models.Geocode {
	ctx, span := c.tracer.Start(ctx, tracer.SpanGeocodeChain,
		tracer.String(tracer.AttrAddressDigest, tracer.ShortDigest(digest)),
	)
	defer span.End(nil)

	for i, l := range c.links {
		if i > 0 {
			span.AddEvent(tracer.EventFallback, tracer.String(tracer.AttrProvider, l.provider.Name()))
		}
		if !l.breaker.Allow() {
			span.AddEvent(tracer.EventProviderSkipped,
				tracer.String(tracer.AttrProvider, l.provider.Name()),
				tracer.Bool(tracer.AttrCircuitOpen, true),
			)
			c.observe(l.provider.Name(), "skipped", 0)
			continue
		}

		geocode, err := c.call(ctx, l.provider, q)
		if err != nil {
			_, change := l.breaker.RecordFailure()
			if change.Opened {
				c.logger.WarnContext(ctx, "geocoder circuit opened", "provider", l.provider.Name())
				c.setCircuit(l.provider.Name(), true)
			}
			c.logger.WarnContext(ctx, "geocoder provider failed",
				"provider", l.provider.Name(),
				"category", string(Category(err)),
				"error", err,
			)
			continue
		}

		if _, change := l.breaker.RecordSuccess(); change.Closed {
			c.logger.InfoContext(ctx, "geocoder circuit closed", "provider", l.provider.Name())
			c.setCircuit(l.provider.Name(), false)
		}
		span.SetAttributes(
			tracer.String(tracer.AttrProvider, geocode.Provider),
			tracer.Float64(tracer.AttrConfidence, geocode.Confidence),
		)
		return geocode
	}

	span.SetAttributes(tracer.Bool(tracer.AttrPlaceholder, true))
	if c.metrics != nil {
		c.metrics.IncPlaceholder()
	}
	return Placeholder(digest, q.Canonical)
}

func (c *Chain) call(ctx context.Context, p Provider, q Query) (geocode *models.Geocode, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, tracer.SpanGeocodeCall, tracer.String(tracer.AttrProvider, p.Name()))
	start := time.Now()
	defer func() {
		if err != nil {
			span.SetAttributes(tracer.String(tracer.AttrErrorCategory, string(Category(err))))
			c.observe(p.Name(), "error", time.Since(start).Seconds())
		} else {
			c.observe(p.Name(), "ok", time.Since(start).Seconds())
		}
		span.End(err)
	}()

	geocode, err = p.Geocode(ctx, q)
	if err != nil {
		return nil, err
	}
	if geocode == nil {
		return nil, NewProviderError(ErrorBadData, p.Name(), "empty response", nil)
	}
	if geocode.Provider == "" {
		geocode.Provider = p.Name()
	}
	return geocode, nil
}

// Providers lists the configured provider names in order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.links))
	for _, l := range c.links {
		names = append(names, l.provider.Name())
	}
	return names
}

func (c *Chain) observe(provider, outcome string, seconds float64) {
	if c.metrics != nil {
		c.metrics.ObserveProviderCall(provider, outcome, seconds)
	}
}

func (c *Chain) setCircuit(provider string, open bool) {
	if c.metrics != nil {
		c.metrics.SetCircuitOpen(provider, open)
	}
}
