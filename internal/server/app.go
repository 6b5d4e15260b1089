// Package server initializes and runs the Sheet Guardian server: it opens
// the database, runs migrations, wires the application services and keeps
// the expired-token sweeper running until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/guinardelli/sheet-guardian-sub000/internal/logging"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/config"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/repositories/repomanager"
	"github.com/guinardelli/sheet-guardian-sub000/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	ProcessingService   *services.ProcessingService
	ArtifactService     *services.ArtifactService
	BillingService      *services.BillingService
	SubscriptionService *services.SubscriptionService
}

func NewApp(ctx context.Context, c *config.Config, oracle services.PaymentOracle) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	artifacts := services.NewArtifactService(c)

	return &App{
		config:              c,
		logger:              logger,
		db:                  db,
		ProcessingService:   services.NewProcessingService(db, rm, artifacts, c),
		ArtifactService:     artifacts,
		BillingService:      services.NewBillingService(db, rm, oracle),
		SubscriptionService: services.NewSubscriptionService(db, rm),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runTokenSweeper deletes expired processing tokens on a fixed interval
// until the context is cancelled.
func (app *App) runTokenSweeper(ctx context.Context) {
	ticker := time.NewTicker(app.config.TokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.ProcessingService.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Error(ctx, "token purge failed", "error", err.Error())
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "purged expired processing tokens", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runTokenSweeper(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close failed", "error", err.Error())
	}
	app.logger.Info(ctx, "app stopped")
}
