package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/docvault/internal/adapters/mcp"
	"github.com/kirillkom/docvault/internal/bootstrap"
	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	// stdout carries the protocol
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	userID := os.Getenv("DOCVAULT_MCP_USER_ID")
	slog.Info("mcp_serving_stdio", "user_id", userID)
	server := mcpadapter.NewServer(app.MCPServices(), userID)
	if err := server.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp_server_failed", "error", err)
	}
}
