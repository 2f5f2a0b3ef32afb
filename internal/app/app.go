// Package app builds the service graph shared by the HTTP server, the
// operator CLI and the feature suite.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	addressgeocoder "rollguard/internal/address/geocoder"
	addresshandler "rollguard/internal/address/handler"
	addressmetrics "rollguard/internal/address/metrics"
	addressservice "rollguard/internal/address/service"
	addressstore "rollguard/internal/address/store"
	audithandler "rollguard/internal/auditchain/handler"
	auditmetrics "rollguard/internal/auditchain/metrics"
	auditservice "rollguard/internal/auditchain/service"
	auditstore "rollguard/internal/auditchain/store"
	clusterhandler "rollguard/internal/cluster/handler"
	clustermetrics "rollguard/internal/cluster/metrics"
	clustermodels "rollguard/internal/cluster/models"
	clusterservice "rollguard/internal/cluster/service"
	clusterstore "rollguard/internal/cluster/store"
	namehandler "rollguard/internal/name/handler"
	namemetrics "rollguard/internal/name/metrics"
	nameservice "rollguard/internal/name/service"
	namestore "rollguard/internal/name/store"
	"rollguard/internal/outbox"
	"rollguard/internal/platform/config"
	"rollguard/internal/platform/database"
	"rollguard/internal/platform/redis"
	"rollguard/internal/platform/tracer"
	reviewhandler "rollguard/internal/review/handler"
	reviewmetrics "rollguard/internal/review/metrics"
	reviewservice "rollguard/internal/review/service"
	reviewstore "rollguard/internal/review/store"
	revisionhandler "rollguard/internal/revision/handler"
	revisionmetrics "rollguard/internal/revision/metrics"
	revisionservice "rollguard/internal/revision/service"
	revisionstore "rollguard/internal/revision/store"
	httptransport "rollguard/internal/transport/http"
	voterhandler "rollguard/internal/voter/handler"
	votermetrics "rollguard/internal/voter/metrics"
	voterservice "rollguard/internal/voter/service"
	voterstore "rollguard/internal/voter/store"
	"rollguard/pkg/platform/circuit"
)

const memoryCacheSize = 10000

// App holds the wired services for one process.
type App struct {
	Config config.Config
	Logger *slog.Logger
	Pool   *database.Pool
	Redis  *redis.Client // nil when Redis is not configured

	Outbox       *outbox.Store
	AddressCache *addressstore.SQLCache
	Audit        *auditservice.Recorder
	Verifier     *auditservice.Verifier
	Addresses    *addressservice.Service
	Names        *nameservice.Service
	NameImporter *nameservice.Importer
	Clusters     *clusterservice.Service
	Reviews      *reviewservice.Service
	Revisions    *revisionservice.Service
	Voters       *voterservice.Service

	ownsPool bool
}

type options struct {
	pool     *database.Pool
	geocoder addressservice.Geocoder
	tracer   tracer.Tracer
}

// Option configures New.
type Option func(*options)

// WithPool reuses an open pool instead of dialing cfg.Database. The caller
// keeps ownership and closes it.
func WithPool(pool *database.Pool) Option {
	return func(o *options) {
		o.pool = pool
	}
}

// WithGeocoder replaces the configured provider chain.
func WithGeocoder(g addressservice.Geocoder) Option {
	return func(o *options) {
		o.geocoder = g
	}
}

// WithTracer sets the tracer used around geocoder calls.
func WithTracer(t tracer.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// New connects the configured backends and wires every service.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{tracer: tracer.NewNoop()}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger, Pool: o.pool}
	if a.Pool == nil {
		pool, err := database.New(database.Config{
			Driver:          cfg.Database.Driver,
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.Pool = pool
		a.ownsPool = true
	}

	rc, err := redis.New(cfg.Redis)
	if err != nil {
		// The Redis tier is an optimization; the SQL tier still serves.
		logger.WarnContext(ctx, "redis unavailable, continuing without redis cache tier", "error", err)
	}
	a.Redis = rc

	a.wire(cfg, logger, o)
	return a, nil
}

func (a *App) wire(cfg config.Config, logger *slog.Logger, o options) {
	tx := database.NewTxRunner(a.Pool, cfg.Database.TxTimeout)
	a.Outbox = outbox.NewStore(a.Pool)

	audits := auditstore.New(a.Pool)
	auditOpts := []auditservice.Option{
		auditservice.WithLogger(logger),
		auditservice.WithMetrics(auditmetrics.New()),
		auditservice.WithOutbox(a.Outbox),
	}
	a.Audit = auditservice.NewRecorder(audits, tx, auditOpts...)
	a.Verifier = auditservice.NewVerifier(audits, tx, a.Audit, auditOpts...)

	addrMetrics := addressmetrics.New()
	a.AddressCache = addressstore.NewSQLCache(a.Pool)
	tiers := []addressstore.Tier{addressstore.NewMemoryCache(memoryCacheSize, cfg.Address.CacheTTL)}
	if a.Redis != nil {
		tiers = append(tiers, addressstore.NewRedisCache(a.Redis))
	}
	tiers = append(tiers, a.AddressCache)
	geo := o.geocoder
	if geo == nil {
		geo = newGeocoderChain(cfg.Geocoder, o.tracer, addrMetrics, logger)
	}
	a.Addresses = addressservice.New(geo, addressstore.NewTiered(logger, addrMetrics, tiers...),
		addressservice.WithLogger(logger),
		addressservice.WithMetrics(addrMetrics),
		addressservice.WithTracer(o.tracer),
		addressservice.WithCacheTTL(cfg.Address.CacheTTL),
	)

	names := namestore.New(a.Pool)
	lookup := namestore.NewCachedLookup(names, cfg.Names.LookupCacheSize, cfg.Names.LookupCacheTTL)
	a.Names = nameservice.New(lookup,
		nameservice.WithLogger(logger),
		nameservice.WithMetrics(namemetrics.New()),
		nameservice.WithFuzzyThreshold(cfg.Names.FuzzyThreshold),
	)
	a.NameImporter = nameservice.NewImporter(names, tx, lookup)

	voters := voterstore.New(a.Pool)
	clusters := clusterstore.New(a.Pool)

	a.Reviews = reviewservice.New(reviewstore.New(a.Pool), voters, clusters, a.Audit, tx,
		reviewservice.WithLogger(logger),
		reviewservice.WithMetrics(reviewmetrics.New()),
	)
	a.Clusters = clusterservice.New(clusters, a.Reviews, a.Audit, tx,
		clusterservice.WithLogger(logger),
		clusterservice.WithMetrics(clustermetrics.New()),
		clusterservice.WithThresholds(Thresholds(cfg.Cluster)),
	)
	a.Revisions = revisionservice.New(revisionstore.New(a.Pool), voters, a.Audit, tx,
		revisionservice.WithLogger(logger),
		revisionservice.WithMetrics(revisionmetrics.New()),
		revisionservice.WithScanCap(cfg.Revision.ScanCap),
	)
	a.Voters = voterservice.New(a.Addresses, a.Names, voters, a.Reviews, a.Audit, tx,
		voterservice.WithLogger(logger),
		voterservice.WithMetrics(votermetrics.New()),
	)
}

// Thresholds overlays the configured cluster tiers on the default risk model.
func Thresholds(cfg config.Cluster) clustermodels.Thresholds {
	t := clustermodels.DefaultThresholds()
	t.Low = cfg.LowThreshold
	t.Medium = cfg.MediumThreshold
	t.High = cfg.HighThreshold
	if cfg.VelocityWindow > 0 {
		t.VelocityWindow = cfg.VelocityWindow
	}
	if cfg.VelocityLimit > 0 {
		t.VelocityLimit = cfg.VelocityLimit
	}
	return t
}

func newGeocoderChain(cfg config.Geocoder, t tracer.Tracer, m *addressmetrics.Metrics, logger *slog.Logger) *addressgeocoder.Chain {
	var providers []addressgeocoder.Provider
	if cfg.PrimaryURL != "" {
		providers = append(providers, addressgeocoder.NewHTTPAdapter(addressgeocoder.HTTPAdapterConfig{
			Name:    "primary",
			BaseURL: cfg.PrimaryURL,
			APIKey:  cfg.PrimaryKey,
			Timeout: cfg.Timeout,
		}))
	}
	if cfg.SecondaryURL != "" {
		providers = append(providers, addressgeocoder.NewHTTPAdapter(addressgeocoder.HTTPAdapterConfig{
			Name:    "secondary",
			BaseURL: cfg.SecondaryURL,
			APIKey:  cfg.SecondaryKey,
			Timeout: cfg.Timeout,
		}))
	}
	return addressgeocoder.NewChain(providers,
		addressgeocoder.WithTimeout(cfg.Timeout),
		addressgeocoder.WithBreakerOptions(circuit.WithFailureThreshold(cfg.FailureThreshold)),
		addressgeocoder.WithTracer(t),
		addressgeocoder.WithMetrics(m),
		addressgeocoder.WithLogger(logger),
	)
}

// Handlers returns the HTTP handlers of every module.
func (a *App) Handlers() []httptransport.Registrar {
	return []httptransport.Registrar{
		addresshandler.New(a.Addresses, a.Logger),
		namehandler.New(a.Names, a.Logger),
		voterhandler.New(a.Voters, a.Logger),
		clusterhandler.New(a.Clusters, a.Logger),
		reviewhandler.New(a.Reviews, a.Logger),
		revisionhandler.New(a.Revisions, a.Logger),
		audithandler.New(a.Verifier, a.Audit, a.Logger),
	}
}

// Close releases the connections New opened.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.ownsPool {
		if err := a.Pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
