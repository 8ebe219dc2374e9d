// Package main provides the entry point for the voice emotion API server.
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

	"github.com/maauso/voice-emotion-api/internal/bootstrap"
	"github.com/maauso/voice-emotion-api/internal/config"
	"github.com/maauso/voice-emotion-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting voice emotion API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("cnn_model", cfg.CNNModelPath),
		slog.String("mlp_model", cfg.MLPModelPath),
		slog.Bool("models_strict", cfg.ModelsStrict),
		slog.Bool("ffmpeg_fallback", cfg.FFmpegFallback),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("metrics_enabled", cfg.MetricsEnabled),
	)

	ctx := context.Background()
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	handlers := server.NewHandlers(deps.Service, deps.Registry, logger,
		server.WithMaxUploadBytes(cfg.MaxUploadBytes()),
	)
	routerCfg := server.DefaultConfig()
	routerCfg.AllowedOrigins = cfg.AllowedOrigins
	routerCfg.Metrics = deps.Metrics
	routerCfg.MetricsHandler = deps.MetricsHandler
	router := server.NewRouter(handlers, logger, routerCfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  120 * time.Second, // Uploads may be up to MAX_UPLOAD_MB
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("server stopped gracefully")
	return nil
}
