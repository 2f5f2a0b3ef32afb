// Package metrics provides Prometheus metrics for address validation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds address scoring, cache and geocoder metrics.
type Metrics struct {
	Validations      *prometheus.CounterVec   // by validation result
	CacheHits        *prometheus.CounterVec   // by tier
	CacheMisses      *prometheus.CounterVec   // by tier
	ProviderCalls    *prometheus.CounterVec   // by provider and outcome
	ProviderDuration *prometheus.HistogramVec // by provider
	Placeholders     prometheus.Counter
	CircuitState     *prometheus.GaugeVec // 1 open, 0 closed
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
			Validations: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_address_validations_total",
				Help: "Total address validations by result",
			}, []string{"result"}),
			CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_address_cache_hits_total",
				Help: "Address score cache hits by tier",
			}, []string{"tier"}),
			CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_address_cache_misses_total",
				Help: "Address score cache misses by tier",
			}, []string{"tier"}),
			ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "rollguard_geocoder_calls_total",
				Help: "Geocoder provider calls by provider and outcome",
			}, []string{"provider", "outcome"}),
			ProviderDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "rollguard_geocoder_call_duration_seconds",
				Help:    "Geocoder provider call latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			}, []string{"provider"}),
			Placeholders: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rollguard_geocoder_placeholder_total",
				Help: "Addresses that fell back to a placeholder geocode",
			}),
			CircuitState: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "rollguard_geocoder_circuit_open",
				Help: "Whether a provider's circuit breaker is open (1) or closed (0)",
			}, []string{"provider"}),
		}
	})
	return metricsInstance
}

func (m *Metrics) IncValidation(result string) { m.Validations.WithLabelValues(result).Inc() }

func (m *Metrics) RecordCacheHit(tier string) { m.CacheHits.WithLabelValues(tier).Inc() }

func (m *Metrics) RecordCacheMiss(tier string) { m.CacheMisses.WithLabelValues(tier).Inc() }

func (m *Metrics) ObserveProviderCall(provider, outcome string, seconds float64) {
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) IncPlaceholder() { m.Placeholders.Inc() }

func (m *Metrics) SetCircuitOpen(provider string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitState.WithLabelValues(provider).Set(v)
}
