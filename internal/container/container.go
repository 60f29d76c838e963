package container

import (
	"context"
	"fmt"
	"io"

	"goregime/adapters/postgres"
	"goregime/app"
	"goregime/internal"
	"goregime/internal/cache"
	"goregime/internal/config"
	"goregime/internal/errors"
	"goregime/internal/metrics"
	"goregime/internal/migration"
	"goregime/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB      *sqlx.DB
	Cache   ports.ResultCache
	Metrics *metrics.Registry

	// Repositories
	Runs ports.RunRepository

	Service *app.RegimeService
}

// New builds the container from cfg. The run store is only connected when the database
// section is enabled; use InitWithDatabase to supply a connection directly.
func New(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewRegistry(),
	}

	resultCache, err := cache.New(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialize %s cache", cfg.Cache.Backend)
	}
	c.Cache = resultCache

	if cfg.Database.Enabled {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
		if err != nil {
			c.Shutdown(ctx)
			return nil, errors.DatabaseError(err)
		}
		if err := c.InitWithDatabase(ctx, db); err != nil {
			db.Close()
			c.Shutdown(ctx)
			return nil, err
		}
	}

	if err := c.initService(); err != nil {
		c.Shutdown(ctx)
		return nil, err
	}
	logger.Info("container initialized: cache=%s database=%t", cfg.Cache.Backend, c.DB != nil)
	return c, nil
}

// InitWithDatabase attaches db as the run store, migrating the schema when configured
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.PingContext(ctx); err != nil {
		return errors.DatabaseError(err)
	}

	if c.Config.Database.AutoMigrate {
		runner := migration.NewRunner()
		if err := runner.Run(ctx, db); err != nil {
			return errors.Wrap(err, "failed to migrate run store")
		}
		c.Logger.Info("run store schema at version %s", runner.Version())
	}

	c.DB = db
	c.Runs = postgres.NewRunRepository(db)
	if c.Service != nil {
		return c.initService()
	}
	return nil
}

func (c *Container) initService() error {
	opts := []app.ServiceOption{
		app.WithCache(c.Cache),
		app.WithMetrics(c.Metrics),
	}
	if c.Runs != nil {
		opts = append(opts, app.WithRunRepository(c.Runs))
	}

	svc, err := app.NewRegimeService(c.Config, c.Logger, opts...)
	if err != nil {
		return err
	}
	c.Service = svc
	return nil
}

// Shutdown closes the cache client and database connection
func (c *Container) Shutdown(ctx context.Context) error {
	var firstErr error
	if closer, ok := c.Cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
