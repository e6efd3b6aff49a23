package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imgdrop/internal/server/api"
	"imgdrop/internal/server/config"
	"imgdrop/internal/server/service"
	"imgdrop/internal/server/storage"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_backend", cfg.StorageBackend,
		"storage_path", cfg.StoragePath,
		"max_file_size", cfg.MaxFileSize,
		"base_url", cfg.BaseURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, cleanup, err := newStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureDir(ctx); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("storage initialized", "backend", cfg.StorageBackend)

	if cleanup != nil {
		if err := cleanup.Start(ctx); err != nil {
			slog.Error("failed to start cleanup service", "error", err)
			os.Exit(1)
		}
	}

	// Setup HTTP router
	svc := service.NewImageService(store, cfg)
	handler := api.NewHandler(svc, cfg.BaseURL)
	e := api.SetupRouter(ctx, handler, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	cancel()
	if cleanup != nil {
		cleanup.Stop()
	}

	slog.Info("server exited cleanly")
}

// newStore builds the configured backend. Only the filesystem backend
// leaves partial uploads that need sweeping.
func newStore(ctx context.Context, cfg *config.Config) (storage.Store, *storage.CleanupService, error) {
	switch cfg.StorageBackend {
	case config.BackendS3:
		store, err := storage.NewS3Store(ctx, storage.S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		return store, nil, err
	default:
		store := storage.NewFileSystemStore(service.ResolveStorageDirectory(cfg.StoragePath))
		return store, storage.NewCleanupService(store, cfg.CleanupSchedule, cfg.StaleUploadAge), nil
	}
}
