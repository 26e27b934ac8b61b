package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/prepwise/calibrate/internal/service/diagnostics"
)

// setupRouter configures the operational HTTP surface: health and
// consistency diagnostics. The platform's user-facing routing and
// authentication live elsewhere; nothing here mutates state.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", app.handleHealth)
	r.Route("/diagnostics", func(r chi.Router) {
		r.Get("/consistency", app.handleConsistency)
		r.Get("/sessions/{id}/summary", app.handleSummary)
	})

	return r
}

func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := app.diagnostics.HealthCheck(r.Context())

	code := http.StatusOK
	if status == diagnostics.StatusUnhealthy || status == diagnostics.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(status)}, app.logger)
}

// handleConsistency runs a consistency audit. Scope narrows with the query:
// ?session=<id> audits one session, ?user=<id> one user's sessions, and no
// parameter scans everything.
func (app *application) handleConsistency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var report *diagnostics.Report
	var err error

	switch {
	case r.URL.Query().Get("session") != "":
		id, parseErr := uuid.Parse(r.URL.Query().Get("session"))
		if parseErr != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		report, err = app.diagnostics.ValidateSession(ctx, id)
	case r.URL.Query().Get("user") != "":
		id, parseErr := uuid.Parse(r.URL.Query().Get("user"))
		if parseErr != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		report, err = app.diagnostics.ValidateUser(ctx, id)
	default:
		report, err = app.diagnostics.ValidateAll(ctx)
	}

	if err != nil {
		app.logger.Error("consistency audit failed", slog.String("error", err.Error()))
		http.Error(w, "audit failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report, app.logger)
}

func (app *application) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	summary, err := app.difficulty.GetSessionDifficultySummary(r.Context(), id)
	if summary == nil {
		app.logger.Warn("summary unavailable",
			slog.String("session_id", id.String()),
			slog.String("error", err.Error()))
		http.Error(w, "session difficulty state unavailable", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, summary, app.logger)
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
