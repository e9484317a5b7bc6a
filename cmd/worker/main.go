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

	"github.com/robfig/cron/v3"

	"github.com/kirillkom/docvault/internal/bootstrap"
	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
	"github.com/kirillkom/docvault/internal/observability/logging"
	"github.com/kirillkom/docvault/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithExtractionObserver(func(step string, chars int, err error) {
			workerMetrics.ObserveExtractionStep(serviceName, step, chars, err)
		}),
		bootstrap.WithResilienceObserver(resilience.Observer{
			OnRetry: func(operation string, _ int, _ error) {
				workerMetrics.Resilience.RecordRetry(serviceName, operation)
			},
			OnStateChange: func(operation, _, to string) {
				workerMetrics.Resilience.SetBreakerState(serviceName, operation, to)
			},
		}),
	)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	scheduler, err := newScheduler(cfg, app, workerMetrics)
	if err != nil {
		slog.Error("scheduler_init_failed", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	consumer := nats.Options{
		HandlerTimeout: time.Duration(cfg.WorkerHandlerTimeoutMS) * time.Millisecond,
		OnHandled: func(_ domain.ProcessingJob, duration time.Duration, err error) {
			workerMetrics.FinishFile(serviceName, duration, err)
		},
	}
	err = app.Queue.SubscribeWithOptions(ctx, func(handlerCtx context.Context, job domain.ProcessingJob) error {
		if !job.EnqueuedAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(job.EnqueuedAt))
		}
		workerMetrics.StartFile()

		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.ProcessTimeoutDuration())
		defer cancel()
		return app.ProcessUC.ProcessJob(processCtx, job)
	}, consumer)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	<-scheduler.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	slog.Info("worker_stopped")
}

// newScheduler registers the periodic stuck-file sweep and expired session cleanup.
func newScheduler(cfg config.Config, app *bootstrap.App, m *metrics.WorkerMetrics) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if cfg.StuckSweepSchedule != "" {
		if _, err := c.AddFunc(cfg.StuckSweepSchedule, func() {
			sweepStuckFiles(app, m, cfg.StuckTimeout())
		}); err != nil {
			return nil, err
		}
	}
	if cfg.SessionCleanupSchedule != "" {
		if _, err := c.AddFunc(cfg.SessionCleanupSchedule, func() {
			cleanupSessions(app, m)
		}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func sweepStuckFiles(app *bootstrap.App, m *metrics.WorkerMetrics, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report, err := app.RetryUC.RetryStuck(ctx, "")
	m.RecordStuckSweep(serviceName, len(report.Requeued), len(report.Failed), err)
	if err != nil {
		slog.Error("stuck_sweep_failed", "error", err)
		return
	}
	if len(report.Requeued) > 0 || len(report.Failed) > 0 {
		slog.Info("stuck_sweep_completed",
			"stuck_timeout", timeout.String(),
			"requeued", len(report.Requeued),
			"failed", len(report.Failed),
			"errors", report.Errors,
		)
	}
}

func cleanupSessions(app *bootstrap.App, m *metrics.WorkerMetrics) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := app.Sessions.DeleteExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("session_cleanup_failed", "error", err)
		return
	}
	m.RecordSessionCleanup(serviceName, removed)
	if removed > 0 {
		slog.Info("session_cleanup_completed", "removed", removed)
	}
}
