package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kirillkom/docvault/internal/bootstrap"
	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/observability/logging"
)

func main() {
	root := newRootCommand(openBackend)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "docvaultctl", cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &backend{
		catalog: app.CatalogUC,
		retry:   app.RetryUC,
		search:  app.SearchUC,
		reports: app.ReportUC,
		close:   app.Close,
	}, nil
}
