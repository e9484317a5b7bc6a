package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	Resilience *ResilienceMetrics

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal       *prometheus.CounterVec
	searchRequests     *prometheus.CounterVec
	searchResults      *prometheus.HistogramVec
	searchNoResults    *prometheus.CounterVec
	chatRequestsTotal  *prometheus.CounterVec
	chatSourcesPerCall *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docvault",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docvault",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Accepted uploads by outcome (created or duplicate) and kind.",
		},
		[]string{"service", "outcome", "kind"},
	)
	searchRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Successful search requests by mode.",
		},
		[]string{"service", "mode"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docvault",
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of hits per successful search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 50},
		},
		[]string{"service", "mode"},
	)
	searchNoResults := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "search",
			Name:      "no_results_total",
			Help:      "Searches that returned no hits.",
		},
		[]string{"service", "mode"},
	)
	chatRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docvault",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Successful chat requests by scope (file or library).",
		},
		[]string{"service", "scope"},
	)
	chatSourcesPerCall := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docvault",
			Subsystem: "chat",
			Name:      "sources",
			Help:      "Distribution of sources passed to the answer model.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service", "scope"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		uploadsTotal,
		searchRequests,
		searchResults,
		searchNoResults,
		chatRequestsTotal,
		chatSourcesPerCall,
	)

	return &HTTPServerMetrics{
		Resilience: newResilienceMetrics(registry),

		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		uploadsTotal:       uploadsTotal,
		searchRequests:     searchRequests,
		searchResults:      searchResults,
		searchNoResults:    searchNoResults,
		chatRequestsTotal:  chatRequestsTotal,
		chatSourcesPerCall: chatSourcesPerCall,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

var fileSubroutes = map[string]bool{
	"retry":   true,
	"content": true,
	"scorm":   true,
}

// normalizePath collapses file ids so that label cardinality stays bounded.
func normalizePath(path string) string {
	const prefix = "/v1/files/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	switch rest {
	case "", "import", "stats", "stuck", "retry-stuck":
		return path
	}
	parts := strings.Split(rest, "/")
	if len(parts) == 2 && fileSubroutes[parts[1]] {
		return prefix + "{id}/" + parts[1]
	}
	if len(parts) == 1 {
		return prefix + "{id}"
	}
	return prefix + "{id}/other"
}

func (m *HTTPServerMetrics) RecordUpload(service, kind string, duplicate bool) {
	outcome := "created"
	if duplicate {
		outcome = "duplicate"
	}
	if kind == "" {
		kind = "unknown"
	}
	m.uploadsTotal.WithLabelValues(service, outcome, kind).Inc()
}

func (m *HTTPServerMetrics) RecordSearch(service, mode string, hits int) {
	if mode == "" {
		mode = "unknown"
	}
	m.searchRequests.WithLabelValues(service, mode).Inc()
	m.searchResults.WithLabelValues(service, mode).Observe(float64(hits))
	if hits == 0 {
		m.searchNoResults.WithLabelValues(service, mode).Inc()
	}
}

func (m *HTTPServerMetrics) RecordChat(service, scope string, sources int) {
	m.chatRequestsTotal.WithLabelValues(service, scope).Inc()
	m.chatSourcesPerCall.WithLabelValues(service, scope).Observe(float64(sources))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
