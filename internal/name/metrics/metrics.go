// Package metrics provides Prometheus metrics for name scoring.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Validations  *prometheus.CounterVec // by role and result
	Rejections   *prometheus.CounterVec // by rejecting flag
	FuzzyMatches prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New returns the singleton Metrics instance.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			Validations: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_name_validations_total",
				Help: "Total name validations by role and result",
			}, []string{"role", "result"}),
			Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_name_rejections_total",
				Help: "Name rejections by the check that rejected them",
			}, []string{"flag"}),
			FuzzyMatches: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rollguard_name_fuzzy_matches_total",
				Help: "Name tokens accepted through a fuzzy dictionary match",
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) IncValidation(role, result string) {
	m.Validations.WithLabelValues(role, result).Inc()
}

func (m *Metrics) IncRejection(flag string) { m.Rejections.WithLabelValues(flag).Inc() }

func (m *Metrics) IncFuzzyMatch() { m.FuzzyMatches.Inc() }
