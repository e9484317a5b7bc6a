package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/docvault/internal/adapters/http"
	"github.com/kirillkom/docvault/internal/bootstrap"
	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
	"github.com/kirillkom/docvault/internal/observability/logging"
	"github.com/kirillkom/docvault/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := httpadapter.LoadOpenAPI(ctx); err != nil {
		slog.Error("openapi_invalid", "error", err)
		os.Exit(1)
	}

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithResilienceObserver(resilienceObserver(httpMetrics.Resilience)),
	)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, app.HTTPServices(),
		httpadapter.WithMetrics(httpMetrics),
	).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr, "auth_enabled", cfg.AuthEnabled, "storage_backend", cfg.StorageBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
	slog.Info("api_stopped")
}

func resilienceObserver(m *metrics.ResilienceMetrics) resilience.Observer {
	return resilience.Observer{
		OnRetry: func(operation string, _ int, _ error) {
			m.RecordRetry("api", operation)
		},
		OnStateChange: func(operation, _, to string) {
			m.SetBreakerState("api", operation, to)
		},
	}
}
