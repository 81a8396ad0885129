// Package main implements the entry point for the embedding queue
// server: a durable task queue that generates vector embeddings through
// external providers with rate-limit aware scheduling.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	slog.Info("configuration loaded",
		"port", app.config.Server.Port,
		"log_level", app.config.Server.LogLevel,
		"default_provider", app.config.Provider.DefaultProvider)

	if err := app.startHTTPServer(ctx); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	return nil
}
