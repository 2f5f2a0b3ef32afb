package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit chain.
type Metrics struct {
	EntriesAppended     *prometheus.CounterVec
	AppendDuration      prometheus.Histogram
	VerificationRuns    *prometheus.CounterVec
	InvalidBlocks       prometheus.Gauge
	VerificationLatency prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New returns the singleton Metrics instance. Safe to call multiple times;
// metrics are only registered once.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			EntriesAppended: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_audit_entries_appended_total",
				Help: "Total number of audit entries appended to the hash chain",
			}, []string{"action"}),
			AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "rollguard_audit_append_duration_seconds",
				Help:    "Time taken to append an audit entry under the chain head lock",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			}),
			VerificationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_audit_chain_verifications_total",
				Help: "Total number of hash chain verification passes by resulting health",
			}, []string{"health"}),
			InvalidBlocks: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "rollguard_audit_chain_invalid_blocks",
				Help: "Invalid blocks found by the most recent verification pass",
			}),
			VerificationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "rollguard_audit_chain_verification_duration_seconds",
				Help:    "Time taken by a full hash chain verification pass",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) IncAppended(action string) { m.EntriesAppended.WithLabelValues(action).Inc() }

func (m *Metrics) ObserveAppendDuration(seconds float64) { m.AppendDuration.Observe(seconds) }

func (m *Metrics) ObserveVerification(health string, invalid int, seconds float64) {
	m.VerificationRuns.WithLabelValues(health).Inc()
	m.InvalidBlocks.Set(float64(invalid))
	m.VerificationLatency.Observe(seconds)
}
