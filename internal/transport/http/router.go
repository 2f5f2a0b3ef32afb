// Package httptransport assembles the public HTTP surface: the middleware
// stack, health and metrics endpoints, and every module's routes.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollguard/internal/platform/health"
	"rollguard/internal/platform/metrics"
	"rollguard/internal/platform/middleware"
	"rollguard/internal/ratelimit"
)

const defaultRequestTimeout = 30 * time.Second

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig collects what NewRouter mounts.
type RouterConfig struct {
	Logger *slog.Logger
	// Tokens enables bearer-token actors; nil trusts the X-Actor-* headers.
	Tokens *middleware.TokenService
	// Health is mounted outside the actor check when set.
	Health *health.Handler
	// Metrics enables per-route latency and /metrics when set.
	Metrics *metrics.Metrics
	// Limiter caps requests per actor when set.
	Limiter        *ratelimit.Limiter
	RequestTimeout time.Duration
	Handlers       []Registrar
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
		r.Handle("/metrics", promhttp.Handler())
	}

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireActor(cfg.Tokens, logger))
		if cfg.Limiter != nil {
			r.Use(ratelimit.PerActor(cfg.Limiter, logger))
		}
		for _, h := range cfg.Handlers {
			h.Register(r)
		}
	})

	return r
}
