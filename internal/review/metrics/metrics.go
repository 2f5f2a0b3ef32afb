// Package metrics provides Prometheus metrics for the review workflow.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TasksCreated  *prometheus.CounterVec // by task type
	TasksResolved *prometheus.CounterVec // by task type, action
	TimeToResolve prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New returns the singleton Metrics instance.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			TasksCreated: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_review_tasks_created_total",
				Help: "Review tasks opened by type",
			}, []string{"type"}),
			TasksResolved: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_review_tasks_resolved_total",
				Help: "Review task resolutions by type and action",
			}, []string{"type", "action"}),
			TimeToResolve: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "rollguard_review_time_to_resolve_seconds",
				Help:    "Time from task creation to resolution",
				Buckets: prometheus.ExponentialBuckets(60, 4, 10),
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) IncCreated(taskType string) { m.TasksCreated.WithLabelValues(taskType).Inc() }

func (m *Metrics) IncResolved(taskType, action string) {
	m.TasksResolved.WithLabelValues(taskType, action).Inc()
}

func (m *Metrics) ObserveTimeToResolve(seconds float64) { m.TimeToResolve.Observe(seconds) }
