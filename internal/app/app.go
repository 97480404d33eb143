// Package app builds the pipeline components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"go-trip-pipeline/internal/config"
	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/metrics"
	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/internal/notify"
	"go-trip-pipeline/internal/objstore"
	"go-trip-pipeline/internal/pipeline"
	"go-trip-pipeline/internal/store"
	"go-trip-pipeline/internal/warehouse"
)

// sourceLister is an object lister that can also address objects.
type sourceLister interface {
	pipeline.ObjectLister
	URI(ref model.ObjectRef) string
}

// App holds every wired component of one process.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Metrics *metrics.Metrics

	Warehouse    *warehouse.DuckDB
	Ledger       *pipeline.Ledger
	Tracker      *pipeline.Tracker
	Orchestrator *pipeline.Orchestrator
	Cleanser     *pipeline.Cleanser
	Exporter     *pipeline.Exporter
	Replayer     *pipeline.Replayer

	closers []func() error
}

// New opens the stores, the warehouse and the source, and wires the
// pipeline on top of them. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(cfg.Metrics),
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	var rdb *redis.Client
	redisClient := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		c, err := store.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		rdb = c
		return c, nil
	}

	ledgerStore, stageStore, err := a.openStores(ctx, redisClient)
	if err != nil {
		return err
	}

	var channels notify.Multi
	for _, ch := range cfg.Notify.Channels {
		switch ch {
		case "log":
			channels = append(channels, notify.NewLog(a.Log))
		case "redis":
			c, err := redisClient()
			if err != nil {
				return err
			}
			channels = append(channels, notify.NewRedis(c, cfg.Redis.AlertChannel))
		case "webhook":
			channels = append(channels, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.NotifyTimeout()))
		}
	}

	lister, err := a.openSource(ctx)
	if err != nil {
		return err
	}

	if err := ensureParent(cfg.Warehouse.Path); err != nil {
		return err
	}
	wh, err := warehouse.Open(ctx, cfg.Warehouse.Config, a.Log)
	if err != nil {
		return err
	}
	a.Warehouse = wh
	a.closers = append(a.closers, wh.Close)

	clock := pipeline.SystemClock
	pattern, err := cfg.BatchPattern()
	if err != nil {
		return err
	}

	a.Ledger = pipeline.NewLedger(ledgerStore, clock, a.Log)
	a.Tracker = pipeline.NewTracker(stageStore, channels, clock, cfg.NotifyTimeout(), a.Log, a.Metrics)
	discoverer := pipeline.NewDiscoverer(lister, a.Ledger, cfg.Source.Extensions, clock, a.Log)
	loader := pipeline.NewLoader(wh, clock, cfg.LoaderConfig(), a.Log, a.Metrics)
	a.Orchestrator = pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Streaming:     cfg.Streaming,
		Scope:         pipeline.Scope{Prefix: cfg.Source.Prefix, Extensions: cfg.Source.Extensions},
		Lookback:      cfg.Lookback(),
		BatchDatasets: cfg.Batch.Datasets,
		BatchPattern:  pattern,
		BatchURI:      lister.URI,
	}, discoverer, a.Ledger, loader, a.Tracker, clock, a.Log, a.Metrics)

	a.Cleanser = pipeline.NewCleanser(pipeline.NewValidator(clock), pipeline.JSONLineEncoder, cfg.Sink.Workers, a.Log, a.Metrics)
	a.Exporter = pipeline.NewExporter(cfg.Sink.Dir, clock, a.Log)
	a.Replayer = pipeline.NewReplayer(a.Cleanser, a.Exporter, cfg.Sink.BatchSize, nil, a.Log)
	return nil
}

func (a *App) openStores(ctx context.Context, redisClient func() (*redis.Client, error)) (pipeline.LedgerStore, pipeline.StageStore, error) {
	cfg := a.Config
	openSQLite := func() (*store.SQLiteLedger, *store.SQLiteStages, error) {
		if err := ensureParent(cfg.Store.SQLitePath); err != nil {
			return nil, nil, err
		}
		db, err := store.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		return store.NewSQLiteLedger(db), store.NewSQLiteStages(db), nil
	}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		return store.NewMemoryLedger(), store.NewMemoryStages(), nil
	case config.DriverPostgres:
		pool, err := store.OpenPostgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		return store.NewPostgresLedger(pool), store.NewPostgresStages(pool), nil
	case config.DriverRedis:
		c, err := redisClient()
		if err != nil {
			return nil, nil, err
		}
		_, stages, err := openSQLite()
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisLedger(c, cfg.Redis.LedgerPrefix), stages, nil
	default:
		ledger, stages, err := openSQLite()
		if err != nil {
			return nil, nil, err
		}
		return ledger, stages, nil
	}
}

func (a *App) openSource(ctx context.Context) (sourceLister, error) {
	cfg := a.Config
	if cfg.Source.Driver == config.SourceGCS {
		g, err := objstore.NewGCSLister(ctx, cfg.Source.GCS)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	}
	return objstore.NewLocalLister(cfg.Source.LocalRoot), nil
}

// Close releases resources in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func ensureParent(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	return nil
}
