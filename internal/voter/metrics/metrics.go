// Package metrics provides Prometheus metrics for registration intake.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registrations *prometheus.CounterVec // by resulting status
	TasksOpened   prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New returns the singleton Metrics instance.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			Registrations: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_registrations_total",
				Help: "Submitted registrations by resulting status",
			}, []string{"status"}),
			TasksOpened: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rollguard_registration_review_tasks_total",
				Help: "Review tasks opened during registration intake",
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) IncRegistration(status string) { m.Registrations.WithLabelValues(status).Inc() }

func (m *Metrics) AddTasks(n int) { m.TasksOpened.Add(float64(n)) }
