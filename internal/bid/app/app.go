package app

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

	"github.com/blender-id/bid/internal/bid/domain"
	httpapi "github.com/blender-id/bid/internal/bid/http"
	"github.com/blender-id/bid/internal/bid/obs"
	"github.com/blender-id/bid/internal/bid/service"
	"github.com/blender-id/bid/internal/bid/store"
	"github.com/blender-id/bid/internal/bid/store/drivers/sqlite"
	"github.com/blender-id/bid/pkg/cryptox"
	"github.com/blender-id/bid/pkg/idx"
	"github.com/blender-id/bid/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the identity service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db    store.Store
	addon domain.Application

	tokenService        *service.TokenService
	userService         *service.UserService
	badgerService       *service.BadgerService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "bid",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	obs.Init()

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	// The add-on application record is required before any token can be
	// issued. A missing record in prod is a deployment error; dev creates it.
	if err := app.resolveAddonApplication(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("bid service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down bid service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("bid service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// resolveAddonApplication loads the configured add-on application record. In
// dev the record is created on the fly so a fresh checkout works without
// seeding; everywhere else a missing record aborts startup.
func (app *Application) resolveAddonApplication(ctx context.Context) error {
	addon, err := app.db.Applications().GetApplicationByClientID(ctx, app.cfg.AddonClientID)
	if err == nil {
		app.addon = addon
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to resolve add-on application: %w", err)
	}

	if app.cfg.Env != "dev" {
		return fmt.Errorf(
			"add-on application %q not registered; seed the applications table before starting",
			app.cfg.AddonClientID,
		)
	}

	addon = domain.Application{
		ID:       idx.New().String(),
		ClientID: app.cfg.AddonClientID,
		Name:     "Blender Add-on (dev)",
		Scopes:   []string{"badger"},
	}
	if err := app.db.Applications().CreateApplication(ctx, addon); err != nil {
		return fmt.Errorf("failed to create dev add-on application: %w", err)
	}

	app.logger.Info("created dev add-on application", "client_id", addon.ClientID)
	app.addon = addon
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Store:       app.db,
		Application: app.addon,
		TokenTTL:    app.cfg.TokenTTL,
	}

	app.userService = &service.UserService{Store: app.db}
	app.badgerService = &service.BadgerService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.TokenService = app.tokenService
	router.UserService = app.userService
	router.BadgerService = app.badgerService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
