package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prepwise/calibrate/internal/domain"
	"github.com/prepwise/calibrate/internal/store"
)

// SessionStore implements the store.SessionStore interface using a
// PostgreSQL database. The session lifecycle service owns the sessions
// table; this implementation is read-only.
type SessionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSessionStore creates a new PostgreSQL implementation of the
// SessionStore interface. If logger is nil, a default logger will be used.
func NewSessionStore(db store.DBTX, logger *slog.Logger) *SessionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionStore{
		db:     db,
		logger: logger.With(slog.String("component", "session_store")),
	}
}

// Ensure SessionStore implements store.SessionStore interface
var _ store.SessionStore = (*SessionStore)(nil)

const sessionColumns = `
	id, user_id, status, mode, parent_session_id, difficulty, score,
	created_at, completed_at
`

// GetByID implements store.SessionStore.GetByID.
func (s *SessionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrSessionNotFound
		}
		return nil, store.NewStoreError("session", "get",
			"failed to query session", MapError(err))
	}
	return session, nil
}

// ListRecentCompleted implements store.SessionStore.ListRecentCompleted.
func (s *SessionStore) ListRecentCompleted(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
) ([]*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND status = $2
		ORDER BY completed_at DESC NULLS LAST
		LIMIT $3
	`
	return s.querySessions(ctx, query, userID, string(domain.SessionStatusCompleted), limit)
}

// ListByUser implements store.SessionStore.ListByUser.
func (s *SessionStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
) ([]*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	return s.querySessions(ctx, query, userID)
}

// ListAll implements store.SessionStore.ListAll.
func (s *SessionStore) ListAll(ctx context.Context) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at`
	return s.querySessions(ctx, query)
}

// Count implements store.SessionStore.Count.
func (s *SessionStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	if err != nil {
		return 0, store.NewStoreError("session", "count",
			"failed to count sessions", MapError(err))
	}
	return count, nil
}

// WithTx implements store.SessionStore.WithTx.
func (s *SessionStore) WithTx(tx *sql.Tx) store.SessionStore {
	return &SessionStore{
		db:     tx,
		logger: s.logger,
	}
}

func (s *SessionStore) querySessions(
	ctx context.Context,
	query string,
	args ...any,
) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("session", "list",
			"failed to query sessions", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, store.NewStoreError("session", "list",
				"failed to scan session", MapError(err))
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("session", "list",
			"failed to iterate sessions", MapError(err))
	}

	return sessions, nil
}

func scanSession(row scanner) (*domain.Session, error) {
	var session domain.Session
	var status, mode, difficulty string
	var parent uuid.NullUUID
	var score sql.NullFloat64
	var completedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&status,
		&mode,
		&parent,
		&difficulty,
		&score,
		&session.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = domain.SessionStatus(status)
	session.Mode = domain.SessionMode(mode)
	if parent.Valid {
		id := parent.UUID
		session.ParentSessionID = &id
	}
	// Sessions can carry a malformed declared difficulty; callers treat the
	// zero level as absent rather than failing the whole read.
	if level, err := domain.ParseDifficultyLevel(difficulty); err == nil {
		session.Difficulty = level
	}
	if score.Valid {
		v := score.Float64
		session.Score = &v
	}
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}

	return &session, nil
}
