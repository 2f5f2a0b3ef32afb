// Package sweep runs cluster detection on a schedule and forwards alerts
// for newly suspicious flags to the outbox.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"rollguard/internal/cluster/metrics"
	"rollguard/internal/cluster/models"
	"rollguard/internal/platform/middleware"
	"rollguard/internal/sentinel"
)

// Detector runs one detection pass.
type Detector interface {
	DetectAddressClusters(ctx context.Context, override *models.Thresholds) (*models.Result, error)
}

// Scheduler runs the detector every interval until Stop is called or the
// context passed to Start is cancelled. Alerts for flags that became
// suspicious are offered to a bounded channel; when it is full the alert
// is dropped and counted.
type Scheduler struct {
	detector Detector
	interval time.Duration
	alerts   chan models.Alert
	stop     chan struct{}
	stopOnce sync.Once
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Scheduler)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithBufferSize sets the alert channel capacity.
func WithBufferSize(size int) Option {
	return func(s *Scheduler) {
		if size > 0 {
			s.alerts = make(chan models.Alert, size)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewScheduler(detector Detector, opts ...Option) *Scheduler {
	s := &Scheduler{
		detector: detector,
		interval: 15 * time.Minute,
		alerts:   make(chan models.Alert, 64),
		stop:     make(chan struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Alerts is the receive side of the alert channel.
func (s *Scheduler) Alerts() <-chan models.Alert {
	return s.alerts
}

// Start sweeps every interval until Stop or ctx cancellation. It returns
// nil after Stop and ctx.Err() after cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				if errors.Is(err, sentinel.ErrInFlight) {
					s.logger.WarnContext(ctx, "cluster sweep skipped, previous run still active")
					continue
				}
				s.logger.ErrorContext(ctx, "cluster sweep failed", "error", err)
			}
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop ends Start. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// RunOnce performs one sweep as the system actor and queues its alerts.
func (s *Scheduler) RunOnce(ctx context.Context) (*models.Result, error) {
	ctx = middleware.WithActor(ctx, middleware.SystemActor)
	result, err := s.detector.DetectAddressClusters(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, f := range result.NewlySuspicious {
		s.publish(ctx, models.AlertFor(f))
	}
	return result, nil
}

func (s *Scheduler) publish(ctx context.Context, alert models.Alert) {
	select {
	case s.alerts <- alert:
		if s.metrics != nil {
			s.metrics.IncAlertQueued()
		}
	default:
		if s.metrics != nil {
			s.metrics.IncAlertDropped()
		}
		s.logger.WarnContext(ctx, "cluster alert dropped, buffer full",
			"flag_id", alert.FlagID.String(),
			"risk_level", alert.RiskLevel,
		)
	}
}
