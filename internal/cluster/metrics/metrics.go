// Package metrics provides Prometheus metrics for cluster detection.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Runs          *prometheus.CounterVec // by outcome: ok, error, in_flight
	RunDuration   prometheus.Histogram
	FlagsUpserted *prometheus.CounterVec // by change: created, updated, dissolved
	OpenFlags     *prometheus.GaugeVec   // by risk level, refreshed after each run
	AlertsQueued  prometheus.Counter
	AlertsDropped prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New returns the singleton Metrics instance.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			Runs: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_cluster_detection_runs_total",
				Help: "Cluster detection runs by outcome",
			}, []string{"outcome"}),
			RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "rollguard_cluster_detection_duration_seconds",
				Help:    "Duration of a cluster detection run",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			}),
			FlagsUpserted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_cluster_flags_upserted_total",
				Help: "Cluster flags written by detection",
			}, []string{"change"}),
			OpenFlags: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "rollguard_cluster_flags_last_run",
				Help: "Flags assessed in the last run by risk level",
			}, []string{"risk_level"}),
			AlertsQueued: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rollguard_cluster_alerts_queued_total",
				Help: "Suspicious cluster alerts queued for dispatch",
			}),
			AlertsDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rollguard_cluster_alerts_dropped_total",
				Help: "Alerts dropped because the dispatch buffer was full",
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) IncRun(outcome string) { m.Runs.WithLabelValues(outcome).Inc() }

func (m *Metrics) ObserveRun(seconds float64) { m.RunDuration.Observe(seconds) }

func (m *Metrics) IncUpsert(change string) { m.FlagsUpserted.WithLabelValues(change).Inc() }

// SetLevels replaces the per-level gauge values.
func (m *Metrics) SetLevels(counts map[string]int) {
	for _, level := range []string{"low", "medium", "high", "critical"} {
		m.OpenFlags.WithLabelValues(level).Set(float64(counts[level]))
	}
}

func (m *Metrics) IncAlertQueued() { m.AlertsQueued.Inc() }

func (m *Metrics) IncAlertDropped() { m.AlertsDropped.Inc() }
