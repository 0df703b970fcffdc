// Package main is the entry point for the photo upload gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do"

	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/config"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/handlers"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/inject"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/logging"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/metrics"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from PORT, config or 8080)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	backend := flag.String("backend", "", "storage backend: gcp, aws, azure, sqlite, local, memory (default: from config or gcp)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	maxBytes := flag.Int64("max-bytes", 0, "maximum upload request size in bytes (default: from config or 33554432)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file and environment values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}
	if *maxBytes != 0 {
		cfg.Upload.MaxBytes = *maxBytes
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	ctx := logging.NewContext(context.Background(), logger)

	if cfg.Observability.Metrics {
		metrics.Register()
	}

	// Staged uploads left behind by a crash are removed on every start.
	if cfg.Upload.Staging == handlers.StagingDisk && cfg.Upload.StagingDir != "" {
		if err := os.MkdirAll(cfg.Upload.StagingDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create staging directory: %v\n", err)
			os.Exit(1)
		}
		if err := handlers.CleanStagingFiles(cfg.Upload.StagingDir); err != nil {
			slog.Warn("Failed to clean staging files", "dir", cfg.Upload.StagingDir, "error", err)
		}
	}

	injector := inject.Setup(ctx, cfg)
	srv, err := do.Invoke[*server.Server](injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize server: %v\n", err)
		os.Exit(1)
	}
	slog.Info("Storage backend initialized", "backend", cfg.Storage.Backend, "bucket", cfg.Storage.Bucket, "prefix", cfg.Storage.Prefix)

	addr := cfg.Addr()

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Photo gateway listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		// Give in-flight uploads time to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		if err := injector.Shutdown(); err != nil {
			slog.Error("Failed to release services", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		_ = injector.Shutdown()
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}
