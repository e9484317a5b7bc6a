package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/ports"
	"github.com/kirillkom/docvault/internal/observability/metrics"
)

const serviceName = "api"

// Services are the inbound ports the HTTP API drives.
type Services struct {
	Ingest  ports.FileIngestor
	Catalog ports.FileCatalog
	Retry   ports.RetryService
	Search  ports.SearchService
	Chat    ports.ChatService
	Reports ports.ReportService
	Auth    ports.AuthService
}

type Router struct {
	cfg     config.Config
	svc     Services
	metrics *metrics.HTTPServerMetrics
	apiDoc  []byte
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

// WithOpenAPIDocument serves doc at /openapi.yaml instead of the embedded document.
func WithOpenAPIDocument(doc []byte) Option {
	return func(rt *Router) {
		rt.apiDoc = doc
	}
}

func NewRouter(cfg config.Config, svc Services, opts ...Option) *Router {
	rt := &Router{
		cfg:    cfg,
		svc:    svc,
		apiDoc: openAPIDocument,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/auth/register", rt.register)
	mux.HandleFunc("POST /v1/auth/login", rt.login)
	mux.HandleFunc("POST /v1/auth/logout", rt.logout)
	mux.Handle("GET /v1/auth/me", rt.authenticated(rt.me))

	mux.Handle("POST /v1/files", rt.authenticated(rt.uploadFile))
	mux.Handle("POST /v1/files/import", rt.authenticated(rt.importFile))
	mux.Handle("GET /v1/files", rt.authenticated(rt.listFiles))
	mux.Handle("GET /v1/files/stats", rt.authenticated(rt.fileStats))
	mux.Handle("GET /v1/files/stuck", rt.authenticated(rt.listStuck))
	mux.Handle("POST /v1/files/retry-stuck", rt.authenticated(rt.retryStuck))
	mux.Handle("GET /v1/files/{id}", rt.authenticated(rt.getFile))
	mux.Handle("DELETE /v1/files/{id}", rt.authenticated(rt.deleteFile))
	mux.Handle("POST /v1/files/{id}/retry", rt.authenticated(rt.retryFile))
	mux.Handle("GET /v1/files/{id}/content", rt.authenticated(rt.fileContent))
	mux.Handle("GET /v1/files/{id}/scorm", rt.authenticated(rt.scormPackage))

	mux.Handle("POST /v1/search", rt.authenticated(rt.search))
	mux.Handle("GET /v1/search/history", rt.authenticated(rt.searchHistory))
	mux.Handle("POST /v1/chat", rt.authenticated(rt.chat))

	mux.Handle("GET /v1/reports/files.xlsx", rt.authenticated(rt.filesReport))

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rt.apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(dst)
}
