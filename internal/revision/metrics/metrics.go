// Package metrics provides Prometheus metrics for revision batches.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DryRuns      prometheus.Counter
	FlagsEmitted *prometheus.CounterVec // by flag type
	Commits      *prometheus.CounterVec // by outcome: committed, invalid_state, integrity, error
	FlagsApplied prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New returns the singleton Metrics instance.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			DryRuns: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rollguard_revision_dry_runs_total",
				Help: "Revision dry runs completed",
			}),
			FlagsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_revision_flags_emitted_total",
				Help: "Revision flags proposed by dry runs",
			}, []string{"flag_type"}),
			Commits: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_revision_commits_total",
				Help: "Batch commit attempts by outcome",
			}, []string{"outcome"}),
			FlagsApplied: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rollguard_revision_flags_applied_total",
				Help: "Revision flags applied by commits",
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) IncDryRun() { m.DryRuns.Inc() }

func (m *Metrics) IncEmitted(flagType string, n int) {
	m.FlagsEmitted.WithLabelValues(flagType).Add(float64(n))
}

func (m *Metrics) IncCommit(outcome string) { m.Commits.WithLabelValues(outcome).Inc() }

func (m *Metrics) AddApplied(n int) { m.FlagsApplied.Add(float64(n)) }
