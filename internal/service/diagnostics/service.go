// Package diagnostics audits the consistency of persisted difficulty state,
// aggregates the findings into a health status, and offers guarded repair
// actions that commit or roll back together per session.
package diagnostics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prepwise/calibrate/internal/domain"
	"github.com/prepwise/calibrate/internal/platform/logger"
	"github.com/prepwise/calibrate/internal/store"
)

// txFn runs audit repairs against transactional store instances.
type txFn func(ctx context.Context, states store.SessionStateStore, sessions store.SessionStore) error

// Service runs consistency audits and repairs.
type Service struct {
	db           *sql.DB
	stateStore   store.SessionStateStore
	sessionStore store.SessionStore
	logger       *slog.Logger

	// runTx executes a function transactionally. Separated out so tests can
	// run repairs against in-memory fakes.
	runTx func(ctx context.Context, fn txFn) error

	// lastStatus remembers the worst outcome of the most recent audit sweep
	// and feeds the health check.
	lastStatus Status
}

// NewService creates a diagnostics service. db may be nil when the caller
// never uses repair actions or health pings (e.g. unit tests); if logger is
// nil, a default logger will be used.
func NewService(
	db *sql.DB,
	stateStore store.SessionStateStore,
	sessionStore store.SessionStore,
	log *slog.Logger,
) *Service {
	if stateStore == nil {
		panic("stateStore cannot be nil")
	}
	if sessionStore == nil {
		panic("sessionStore cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		db:           db,
		stateStore:   stateStore,
		sessionStore: sessionStore,
		logger:       log.With(slog.String("component", "diagnostics_service")),
		lastStatus:   StatusHealthy,
	}
	s.runTx = s.defaultRunTx
	return s
}

func (s *Service) defaultRunTx(ctx context.Context, fn txFn) error {
	if s.db == nil {
		return fn(ctx, s.stateStore, s.sessionStore)
	}
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, s.stateStore.WithTx(tx), s.sessionStore.WithTx(tx))
	})
}

// ValidateSession audits a single session.
func (s *Service) ValidateSession(ctx context.Context, sessionID uuid.UUID) (*Report, error) {
	report := &Report{SessionsScanned: 1}

	session, err := s.sessionStore.GetByID(ctx, sessionID)
	if err != nil {
		if store.IsNotFoundError(err) {
			report.Checks = append(report.Checks, Check{
				Code:      CheckSessionMissing,
				Severity:  SeverityError,
				SessionID: sessionID,
				Message:   "session does not exist",
			})
			s.remember(report)
			return finish(report), nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if err := s.auditSession(ctx, session, report); err != nil {
		return nil, err
	}

	s.remember(report)
	return finish(report), nil
}

// ValidateUser audits every session belonging to one user.
func (s *Service) ValidateUser(ctx context.Context, userID uuid.UUID) (*Report, error) {
	sessions, err := s.sessionStore.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}
	return s.validateSessions(ctx, sessions)
}

// ValidateAll audits every session plus the cross-session parent graph.
// The scan is eventually consistent with concurrent session activity, which
// is acceptable for a diagnostic path.
func (s *Service) ValidateAll(ctx context.Context) (*Report, error) {
	sessions, err := s.sessionStore.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return s.validateSessions(ctx, sessions)
}

func (s *Service) validateSessions(
	ctx context.Context,
	sessions []*domain.Session,
) (*Report, error) {
	report := &Report{SessionsScanned: len(sessions)}

	for _, session := range sessions {
		if err := s.auditSession(ctx, session, report); err != nil {
			return nil, err
		}
	}

	s.auditParentGraph(ctx, sessions, report)

	s.remember(report)
	return finish(report), nil
}

// auditSession runs the per-session checks and appends findings to the report.
func (s *Service) auditSession(
	ctx context.Context,
	session *domain.Session,
	report *Report,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	record, err := s.stateStore.GetRecord(ctx, session.ID)
	if err != nil {
		if store.IsNotFoundError(err) {
			report.Checks = append(report.Checks, Check{
				Code:      CheckMissingDifficulty,
				Severity:  SeverityError,
				SessionID: session.ID,
				Message:   "session has no difficulty record",
			})
			return s.auditInheritance(ctx, session, nil, report)
		}
		return fmt.Errorf("failed to load difficulty record: %w", err)
	}

	if _, err := domain.ParseDifficultyLevel(record.Current); err != nil {
		report.Checks = append(report.Checks, Check{
			Code:      CheckMissingDifficulty,
			Severity:  SeverityError,
			SessionID: session.ID,
			Message:   fmt.Sprintf("current difficulty column is unusable: %q", record.Current),
		})
	}

	if session.IsCompleted() && (!record.IsFinalized || record.Final == nil) {
		report.Checks = append(report.Checks, Check{
			Code:      CheckMissingFinal,
			Severity:  SeverityError,
			SessionID: session.ID,
			Message:   "completed session lacks a final difficulty",
		})
	}

	if len(record.Snapshot) == 0 {
		if record.ChangesCount > 0 {
			report.Checks = append(report.Checks, Check{
				Code:      CheckChangesWithoutSnapshot,
				Severity:  SeverityWarning,
				SessionID: session.ID,
				Message:   "change count is positive but no snapshot is stored",
			})
		}
	} else {
		var state domain.SessionDifficultyState
		if err := json.Unmarshal(record.Snapshot, &state); err != nil {
			log.Debug("snapshot failed to decode during audit",
				slog.String("session_id", session.ID.String()),
				slog.String("error", err.Error()))
			report.Checks = append(report.Checks, Check{
				Code:      CheckSnapshotUnparseable,
				Severity:  SeverityError,
				SessionID: session.ID,
				Message:   "stored snapshot cannot be decoded",
			})
		} else {
			if state.SessionID != session.ID {
				report.Checks = append(report.Checks, Check{
					Code:      CheckSnapshotIDMismatch,
					Severity:  SeverityCritical,
					SessionID: session.ID,
					Message: fmt.Sprintf(
						"snapshot belongs to session %s", state.SessionID),
				})
			}
			if state.Current.String() != record.Current {
				report.Checks = append(report.Checks, Check{
					Code:      CheckColumnMismatch,
					Severity:  SeverityError,
					SessionID: session.ID,
					Message: fmt.Sprintf(
						"current difficulty column %q disagrees with snapshot %q",
						record.Current, state.Current),
				})
			}
		}
	}

	return s.auditInheritance(ctx, session, record, report)
}

// auditInheritance enforces the post-creation invariant of derived sessions:
// the child's initial difficulty must equal the parent's final difficulty,
// never the parent's initial one.
func (s *Service) auditInheritance(
	ctx context.Context,
	session *domain.Session,
	record *store.StateRecord,
	report *Report,
) error {
	if !session.IsDerived() {
		return nil
	}

	if _, err := s.sessionStore.GetByID(ctx, *session.ParentSessionID); err != nil {
		if store.IsNotFoundError(err) {
			report.Checks = append(report.Checks, Check{
				Code:      CheckDanglingParent,
				Severity:  SeverityError,
				SessionID: session.ID,
				Message: fmt.Sprintf(
					"parent session %s does not exist", *session.ParentSessionID),
			})
			return nil
		}
		return fmt.Errorf("failed to load parent session: %w", err)
	}

	parentRecord, err := s.stateStore.GetRecord(ctx, *session.ParentSessionID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("failed to load parent difficulty record: %w", err)
	}

	if record == nil || parentRecord.Final == nil {
		return nil
	}

	if record.Initial != *parentRecord.Final {
		report.Checks = append(report.Checks, Check{
			Code:      CheckInheritanceMismatch,
			Severity:  SeverityError,
			SessionID: session.ID,
			Message: fmt.Sprintf(
				"derived session starts at %q but parent finalized at %q",
				record.Initial, *parentRecord.Final),
		})
	}

	return nil
}

// auditParentGraph runs the cross-session checks: parent-chain cycles.
// The walk is bounded by the store's total session count, so a repeat
// before reaching a root is a cycle even under adversarial data.
func (s *Service) auditParentGraph(
	ctx context.Context,
	sessions []*domain.Session,
	report *Report,
) {
	bound, err := s.sessionStore.Count(ctx)
	if err != nil || bound < len(sessions) {
		bound = len(sessions)
	}

	byID := make(map[uuid.UUID]*domain.Session, len(sessions))
	for _, session := range sessions {
		byID[session.ID] = session
	}

	flagged := map[uuid.UUID]bool{}
	for _, session := range sessions {
		if !session.IsDerived() || flagged[session.ID] {
			continue
		}

		visited := map[uuid.UUID]bool{session.ID: true}
		current := session
		for steps := 0; steps <= bound; steps++ {
			if current.ParentSessionID == nil {
				break
			}
			parent, ok := byID[*current.ParentSessionID]
			if !ok {
				break
			}
			if visited[parent.ID] {
				report.Checks = append(report.Checks, Check{
					Code:      CheckParentCycle,
					Severity:  SeverityCritical,
					SessionID: session.ID,
					Message:   "parent chain forms a cycle",
				})
				flagged[session.ID] = true
				break
			}
			visited[parent.ID] = true
			current = parent
		}
	}
}

// HealthCheck reports the aggregate health: store reachability combined
// with the worst severity of the most recent audit sweep.
func (s *Service) HealthCheck(ctx context.Context) Status {
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Error("database unreachable during health check",
				slog.String("error", err.Error()))
			return StatusCritical
		}
	}
	return s.lastStatus
}

func (s *Service) remember(report *Report) {
	s.lastStatus = statusFor(report.Checks)
}
