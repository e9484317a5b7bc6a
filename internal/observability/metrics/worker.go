package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	Resilience *ResilienceMetrics

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	extractionSteps *prometheus.CounterVec
	extractedChars  *prometheus.HistogramVec
	stuckSweeps     *prometheus.CounterVec
	stuckFilesTotal *prometheus.CounterVec
	sessionsRemoved *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "worker",
			Name:      "file_process_total",
			Help:      "Total processed files by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docvault",
			Subsystem: "worker",
			Name:      "file_process_duration_seconds",
			Help:      "File processing duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docvault",
			Subsystem: "worker",
			Name:      "file_process_in_flight",
			Help:      "Number of in-flight file processing jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docvault",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job publication and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	extractionSteps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "extraction",
			Name:      "steps_total",
			Help:      "Extraction step runs by method and outcome.",
		},
		[]string{"service", "method", "outcome"},
	)
	extractedChars := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docvault",
			Subsystem: "extraction",
			Name:      "chars",
			Help:      "Characters produced per extraction step.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"service", "method"},
	)
	stuckSweeps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "retry",
			Name:      "sweeps_total",
			Help:      "Stuck-file sweeps by outcome.",
		},
		[]string{"service", "outcome"},
	)
	stuckFilesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "retry",
			Name:      "stuck_files_total",
			Help:      "Stuck files handled by the sweep, by result (requeued or failed).",
		},
		[]string{"service", "result"},
	)
	sessionsRemoved := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "auth",
			Name:      "expired_sessions_removed_total",
			Help:      "Expired sessions removed by the cleanup job.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		processTotal,
		processDuration,
		processInFlight,
		queueLag,
		extractionSteps,
		extractedChars,
		stuckSweeps,
		stuckFilesTotal,
		sessionsRemoved,
	)

	return &WorkerMetrics{
		Resilience: newResilienceMetrics(registry),

		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		extractionSteps: extractionSteps,
		extractedChars:  extractedChars,
		stuckSweeps:     stuckSweeps,
		stuckFilesTotal: stuckFilesTotal,
		sessionsRemoved: sessionsRemoved,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartFile() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishFile(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveExtractionStep(service, method string, chars int, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case chars == 0:
		outcome = "empty"
	}
	m.extractionSteps.WithLabelValues(service, method, outcome).Inc()
	if err == nil {
		m.extractedChars.WithLabelValues(service, method).Observe(float64(chars))
	}
}

func (m *WorkerMetrics) RecordStuckSweep(service string, requeued, failed int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.stuckSweeps.WithLabelValues(service, outcome).Inc()
	if requeued > 0 {
		m.stuckFilesTotal.WithLabelValues(service, "requeued").Add(float64(requeued))
	}
	if failed > 0 {
		m.stuckFilesTotal.WithLabelValues(service, "failed").Add(float64(failed))
	}
}

func (m *WorkerMetrics) RecordSessionCleanup(service string, removed int64) {
	if removed > 0 {
		m.sessionsRemoved.WithLabelValues(service).Add(float64(removed))
	}
}
