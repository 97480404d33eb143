package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"go-trip-pipeline/internal/api"
	"go-trip-pipeline/internal/api/handler"
	"go-trip-pipeline/internal/app"
	"go-trip-pipeline/internal/config"
	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/pkg/router"
)

// @title Trip Pipeline API
// @version 1.0
// @description Trip-event cleansing and warehouse loading.
// @BasePath /api/v1
func main() {
	configPath := flag.String("config", os.Getenv("PIPELINE_CONFIG"), "path to the YAML config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Service.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.With("service", cfg.Service.Name, "env", cfg.Service.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to start", "error", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close failed", "error", err)
		}
	}()

	h := handler.New(a.Orchestrator, a.Ledger, a.Tracker, a.Cleanser, a.Exporter, log)
	r := router.New(log)
	api.RegisterRoutes(r, h, a.Metrics.Handler())
	srv := r.Server(cfg.Server.Addr)

	if cfg.Scheduler.Enabled {
		go a.Schedule(ctx, cfg.SchedulerInterval())
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
