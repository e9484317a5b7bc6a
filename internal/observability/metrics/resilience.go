package metrics

import "github.com/prometheus/client_golang/prometheus"

// ResilienceMetrics tracks outbound retries and circuit breaker state.
type ResilienceMetrics struct {
	retries     *prometheus.CounterVec
	breakerOpen *prometheus.GaugeVec
}

func newResilienceMetrics(registry *prometheus.Registry) *ResilienceMetrics {
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried outbound calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docvault",
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the operation's circuit breaker is open or half-open.",
		},
		[]string{"service", "operation"},
	)
	registry.MustRegister(retries, breakerOpen)
	return &ResilienceMetrics{retries: retries, breakerOpen: breakerOpen}
}

func (m *ResilienceMetrics) RecordRetry(service, operation string) {
	m.retries.WithLabelValues(service, operation).Inc()
}

func (m *ResilienceMetrics) SetBreakerState(service, operation, state string) {
	value := 0.0
	if state != "closed" {
		value = 1
	}
	m.breakerOpen.WithLabelValues(service, operation).Set(value)
}
