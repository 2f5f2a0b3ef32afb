package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"rollguard/internal/app"
	clustermetrics "rollguard/internal/cluster/metrics"
	"rollguard/internal/cluster/sweep"
	"rollguard/internal/maintenance"
	"rollguard/internal/outbox"
	outboxmetrics "rollguard/internal/outbox/metrics"
	"rollguard/internal/outbox/worker"
	"rollguard/internal/platform/config"
	"rollguard/internal/platform/database"
	"rollguard/internal/platform/health"
	"rollguard/internal/platform/kafka"
	"rollguard/internal/platform/kafka/producer"
	"rollguard/internal/platform/logger"
	"rollguard/internal/platform/metrics"
	"rollguard/internal/platform/middleware"
	"rollguard/internal/platform/tracer"
	"rollguard/internal/ratelimit"
	httptransport "rollguard/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and runs the
// background loops next to it. Business logic lives in internal service packages.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing rollguard",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"database_driver", cfg.Database.Driver,
		"sweep_enabled", cfg.Cluster.SweepEnabled,
	)

	a, err := app.New(ctx, cfg, log, app.WithTracer(tracer.NewOTel("rollguard/address")))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release connections", "error", err)
		}
	}()

	if err := database.Migrate(ctx, a.Pool); err != nil {
		return err
	}

	publisher, closePublisher, err := newPublisher(cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	hc := health.New(cfg.Server.Environment)
	hc.RegisterCheck("database", a.Pool.Health)
	if a.Redis != nil {
		hc.RegisterCheck("redis", a.Redis.Health)
		if err := a.Redis.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			return err
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kc, err := kafka.NewHealthChecker(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		defer kc.Close()
		hc.RegisterCheck("kafka", kc.Check)
	}

	var tokens *middleware.TokenService
	if cfg.Server.JWTSigningKey != "" {
		tokens = middleware.NewTokenService(cfg.Server.JWTSigningKey)
	} else {
		log.Warn("JWT_SIGNING_KEY not set, trusting X-Actor-ID headers")
	}

	var limiter *ratelimit.Limiter
	cleanerOpts := []maintenance.Option{
		maintenance.WithInterval(cfg.Maintenance.Interval),
		maintenance.WithOutboxRetention(cfg.Maintenance.OutboxRetention),
		maintenance.WithLogger(log),
	}
	if cfg.RateLimit.Requests > 0 {
		limiter = ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		cleanerOpts = append(cleanerOpts, maintenance.WithIdlePruner(limiter))
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httptransport.NewRouter(httptransport.RouterConfig{
			Logger:   log,
			Tokens:   tokens,
			Health:   hc,
			Metrics:  metrics.New(),
			Limiter:  limiter,
			Handlers: a.Handlers(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	obWorker := worker.New(a.Outbox, publisher,
		worker.WithTopic(outbox.AggregateAuditEntry, cfg.Kafka.AuditTopic),
		worker.WithTopic(outbox.AggregateClusterAlert, cfg.Kafka.AlertTopic),
		worker.WithBatchSize(cfg.Kafka.BatchSize),
		worker.WithPollInterval(cfg.Kafka.PollInterval),
		worker.WithMetrics(outboxmetrics.New()),
		worker.WithLogger(log),
	)

	cleaner, err := maintenance.New(a.AddressCache, a.Outbox, cleanerOpts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Cluster.SweepEnabled {
		scheduler := sweep.NewScheduler(a.Clusters,
			sweep.WithInterval(cfg.Cluster.SweepInterval),
			sweep.WithBufferSize(cfg.Cluster.AlertBufferSize),
			sweep.WithMetrics(clustermetrics.New()),
			sweep.WithLogger(log),
		)
		dispatcher := sweep.NewDispatcher(scheduler.Alerts(), a.Outbox, log)
		g.Go(func() error { return ignoreCanceled(scheduler.Start(gctx)) })
		g.Go(func() error { return dispatcher.Start(gctx) })
	}
	g.Go(func() error { return obWorker.Start(gctx) })
	g.Go(func() error { return cleaner.Start(gctx) })

	return g.Wait()
}

// newPublisher returns the Kafka producer, or a discarding one when no
// brokers are configured so the outbox still drains.
func newPublisher(cfg config.Kafka, log *slog.Logger) (worker.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("kafka brokers not configured, outbox entries will be discarded")
		return producer.NewNoopProducer(), func() {}, nil
	}
	p, err := producer.New(producer.Config{
		Brokers:         cfg.Brokers,
		Acks:            "all",
		Retries:         5,
		DeliveryTimeout: 30 * time.Second,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return p, func() {
		if err := p.Close(); err != nil {
			log.Error("failed to close kafka producer", "error", err)
		}
	}, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
