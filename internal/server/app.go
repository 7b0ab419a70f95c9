// Package server wires configuration, storage, services and transports
// into a runnable application and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/leasekeeper/internal/logging"
	"github.com/dmitrijs2005/leasekeeper/internal/server/config"
	"github.com/dmitrijs2005/leasekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/leasekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/leasekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/leasekeeper/internal/server/services"
	"github.com/juju/clock"

	gs "github.com/dmitrijs2005/leasekeeper/internal/server/grpc"
)

const healthProbeInterval = 10 * time.Second

// seams for tests
var (
	openDB               = repomanager.Open
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	newArchiver          = func(ctx context.Context, cfg *config.Config) (services.Archiver, error) {
		return services.NewS3Archiver(ctx, cfg)
	}
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	handler *httpapi.Handler
}

// NewApp connects to the database, applies migrations, bootstraps the
// admin account and builds the services. The caller owns the returned App
// and must call Close.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := newApp(ctx, cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger logging.Logger, db *sql.DB) (*App, error) {
	rm := newRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	var archiver services.Archiver
	if cfg.ArchiveEnabled() {
		a, err := newArchiver(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("archive init error: %w", err)
		}
		archiver = a
	}

	clk := clock.WallClock
	mc := metrics.NewCollector()
	reg := metrics.NewRegistry(mc)

	us := services.NewUserService(db, rm, cfg, clk, logger.With("module", "users"))
	ocs := services.NewOccupancyService(db, rm, cfg, clk, mc, logger.With("module", "occupancy"))
	hs := services.NewHeartbeatService(db, rm, cfg, clk, mc, logger.With("module", "heartbeat"))
	ss, err := services.NewSyncService(db, rm, cfg, clk, archiver, mc, logger.With("module", "sync"))
	if err != nil {
		return nil, fmt.Errorf("sync init error: %w", err)
	}

	created, err := us.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("admin bootstrap error: %w", err)
	}
	if created {
		logger.Info(ctx, "bootstrap admin created", "username", cfg.AdminUsername)
	}

	h := httpapi.NewHandler(httpapi.Services{
		Users:     us,
		Occupancy: ocs,
		Heartbeat: hs,
		Sync:      ss,
	}, mc, reg, logger, cfg.APIPrefix)

	return &App{config: cfg, logger: logger, db: db, handler: h}, nil
}

// Run serves the JSON API and, when configured, the gRPC health endpoint.
// It returns after ctx is cancelled or either server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				app.logger.Error(ctx, name+" failed", "error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancelFunc()
			}
		}()
	}

	run("http server", httpapi.NewServer(app.config.HTTPAddr, app.handler.Router(), app.logger).Run)
	if app.config.GRPCHealthAddr != "" {
		run("grpc health server", gs.NewHealthServer(app.config.GRPCHealthAddr, app.db, healthProbeInterval, app.logger).Run)
	}

	wg.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return firstErr
}

func (app *App) Close() error {
	return app.db.Close()
}
