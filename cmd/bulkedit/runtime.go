package main

import (
	"context"
	"database/sql"
	"fmt"

	bulkedit "github.com/goliatone/go-bulkedit"
	"github.com/goliatone/go-bulkedit/adapters/zaplog"
	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/metrics"
	bulkmigrations "github.com/goliatone/go-bulkedit/migrations"
	"github.com/goliatone/go-bulkedit/providers/shopify"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"go.uber.org/zap"
)

// runtime owns the resources one CLI invocation opens.
type runtime struct {
	cfg      appConfig
	logger   *zap.Logger
	provider *zaplog.Provider
	client   *persistence.Client
	registry *prometheus.Registry
	facade   *bulkedit.Facade
}

func newRuntime(ctx context.Context, cfg appConfig) (*runtime, error) {
	if _, err := cfg.engineConfig(ctx); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	logger, err := zaplog.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return &runtime{
		cfg:      cfg,
		logger:   logger,
		provider: zaplog.NewProvider(logger),
	}, nil
}

// open connects the database and wires the facade.
func (r *runtime) open(ctx context.Context) error {
	client, err := openPersistence(r.cfg.Database)
	if err != nil {
		return err
	}
	r.client = client

	r.registry = prometheus.NewRegistry()
	r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(r.registry, metrics.WithLogger(r.provider.GetLogger("bulkedit.metrics")))

	opts := []bulkedit.FacadeOption{
		bulkedit.WithClientOptions(shopify.WithFactoryLogger(r.provider.GetLogger("bulkedit.shopify"))),
		bulkedit.WithEngineOptions(
			core.WithConfigProvider(r.cfg.engineProvider()),
			core.WithLoggerProvider(r.provider),
			core.WithMetricsRecorder(recorder),
		),
	}
	if r.cfg.Cache.Enabled {
		cacheCfg := repositorycache.DefaultConfig()
		if r.cfg.Cache.TTL > 0 {
			cacheCfg.TTL = r.cfg.Cache.TTL
		}
		cache, err := repositorycache.NewCacheService(cacheCfg)
		if err != nil {
			return fmt.Errorf("credential cache: %w", err)
		}
		opts = append(opts, bulkedit.WithCredentialCache(cache))
	}

	facade, err := bulkedit.New(core.Config{}, client, opts...)
	if err != nil {
		return err
	}
	r.facade = facade
	return nil
}

func (r *runtime) migrate(ctx context.Context) error {
	if r.client == nil {
		client, err := openPersistence(r.cfg.Database)
		if err != nil {
			return err
		}
		r.client = client
	}
	dialect, err := bulkmigrations.DialectForDriver(r.cfg.Database.Driver)
	if err != nil {
		return err
	}
	if _, err := bulkmigrations.Register(ctx, func(_ context.Context, source bulkmigrations.Source) error {
		r.client.RegisterSQLMigrations(source.FS)
		return nil
	}, bulkmigrations.WithDialects(dialect)); err != nil {
		return fmt.Errorf("register migrations: %w", err)
	}
	if err := r.client.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (r *runtime) close() error {
	if r == nil {
		return nil
	}
	if r.logger != nil {
		_ = r.logger.Sync()
	}
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func openPersistence(cfg databaseConfig) (*persistence.Client, error) {
	var dialect schema.Dialect
	switch cfg.Driver {
	case driverPostgres:
		dialect = pgdialect.New()
	case driverSQLite:
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == driverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence: %w", err)
	}
	return client, nil
}
