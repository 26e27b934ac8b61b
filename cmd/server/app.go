package main

import (
	"database/sql"
	"log/slog"

	"github.com/prepwise/calibrate/internal/config"
	"github.com/prepwise/calibrate/internal/service"
	"github.com/prepwise/calibrate/internal/service/diagnostics"
)

// application holds the wired dependencies of the running server.
type application struct {
	config      *config.Config
	logger      *slog.Logger
	db          *sql.DB
	difficulty  *service.DifficultyService
	diagnostics *diagnostics.Service
}
