package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"crypto_api/internal/app"
	"crypto_api/internal/infra"
)

func main() {
	configPath := flag.String("config", infra.ResolveConfigPath(), "path to config.yaml")
	workDir := flag.String("workspace", "", "runtime data directory (default: OS data dir)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap := app.NewBootstrap(*workDir)
	if err := bootstrap.Initialize(ctx, *configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		_ = bootstrap.Shutdown()
		os.Exit(1)
	}
	infra.PrintBanner(os.Stdout, bootstrap.Config)

	slog.InfoContext(ctx, "Recording candlesticks. Press Ctrl+C to exit.")
	runErr := bootstrap.Run(ctx)
	if runErr != nil {
		slog.Error("Run failed", slog.Any("error", runErr))
	}

	slog.Info("Shutting down gracefully...")
	if err := bootstrap.Shutdown(); err != nil {
		slog.Error("Shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
