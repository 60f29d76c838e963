package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goregime/adapters/api"
	"goregime/internal"
	"goregime/internal/config"
	"goregime/internal/container"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	// A missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		internal.DefaultLogger.Error("failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize: %v", err)
		os.Exit(1)
	}
	defer c.Shutdown(context.Background())

	handler := api.NewServer(c.Service, logger,
		api.WithMetricsHandler(c.Metrics.Handler()),
		api.WithRequestTimeout(cfg.Server.RequestTimeout),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("regime API listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed: %v", err)
	}
}
