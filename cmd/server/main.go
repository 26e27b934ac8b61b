// Package main implements the entry point for the difficulty calibration
// server: it loads configuration, connects to the database, applies
// migrations, wires the difficulty services, and serves the diagnostics
// endpoints.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prepwise/calibrate/internal/config"
	"github.com/prepwise/calibrate/internal/domain/scoring"
	"github.com/prepwise/calibrate/internal/platform/logger"
	"github.com/prepwise/calibrate/internal/platform/postgres"
	"github.com/prepwise/calibrate/internal/service"
	"github.com/prepwise/calibrate/internal/service/diagnostics"
	"github.com/prepwise/calibrate/internal/service/recovery"
)

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer func() { _ = app.db.Close() }()

	if err := app.run(); err != nil {
		app.logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// initializeApp loads configuration and builds the application dependency
// graph bottom-up: logger, database, stores, engines, services.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel))

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, appLogger); err != nil {
		_ = db.Close()
		return nil, err
	}

	stateStore := postgres.NewSessionStateStore(db, appLogger)
	sessionStore := postgres.NewSessionStore(db, appLogger)

	scoringService := scoring.NewServiceWithParams(scoringParams(cfg.Difficulty))
	recoveryEngine := recovery.NewEngine(stateStore, sessionStore, appLogger)

	difficultyService := service.NewDifficultyService(
		stateStore,
		sessionStore,
		scoringService,
		recoveryEngine,
		cfg.Difficulty,
		appLogger,
	)

	diagnosticsService := diagnostics.NewService(db, stateStore, sessionStore, appLogger)

	return &application{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		difficulty:  difficultyService,
		diagnostics: diagnosticsService,
	}, nil
}

// scoringParams maps configuration overrides onto the engine parameters.
func scoringParams(cfg config.DifficultyConfig) *scoring.Params {
	return scoring.NewParams(scoring.ParamsConfig{
		SessionImmediatePromote: cfg.SessionImmediatePromote,
		SessionImmediateDemote:  cfg.SessionImmediateDemote,
		SessionBlendedPromote:   cfg.SessionBlendedPromote,
		SessionBlendedDemote:    cfg.SessionBlendedDemote,
		SessionGuardedPromote:   cfg.SessionGuardedPromote,
		SessionGuardedDemote:    cfg.SessionGuardedDemote,
		LivePromote:             cfg.LivePromote,
		LiveDemote:              cfg.LiveDemote,
		LiveEasyPromote:         cfg.LiveEasyPromote,
		LiveExpertDemote:        cfg.LiveExpertDemote,
	})
}

// run starts the diagnostics HTTP server and blocks until shutdown.
func (app *application) run() error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("diagnostics server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		app.logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
