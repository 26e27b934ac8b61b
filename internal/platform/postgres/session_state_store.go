package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prepwise/calibrate/internal/domain"
	"github.com/prepwise/calibrate/internal/store"
)

// SessionStateStore implements the store.SessionStateStore interface using
// a PostgreSQL database as the storage backend. Each session's difficulty
// state is stored twice in one row: discrete columns for cheap querying and
// a JSONB snapshot for full reconstruction.
type SessionStateStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSessionStateStore creates a new PostgreSQL implementation of the
// SessionStateStore interface. It accepts a database connection or
// transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewSessionStateStore(db store.DBTX, logger *slog.Logger) *SessionStateStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionStateStore{
		db:     db,
		logger: logger.With(slog.String("component", "session_state_store")),
	}
}

// Ensure SessionStateStore implements store.SessionStateStore interface
var _ store.SessionStateStore = (*SessionStateStore)(nil)

// Save implements store.SessionStateStore.Save.
// The upsert writes the discrete columns and the snapshot in a single
// statement, so the two encodings cannot diverge within one successful call.
func (s *SessionStateStore) Save(ctx context.Context, state *domain.SessionDifficultyState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	snapshot, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: snapshot encoding: %v", store.ErrInvalidEntity, err)
	}

	var final *string
	if state.Final != nil {
		f := state.Final.String()
		final = &f
	}

	query := `
		INSERT INTO session_difficulty (
			session_id, user_id, initial_difficulty, current_difficulty,
			final_difficulty, changes_count, is_finalized, fallback_used,
			snapshot, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			initial_difficulty = EXCLUDED.initial_difficulty,
			current_difficulty = EXCLUDED.current_difficulty,
			final_difficulty = EXCLUDED.final_difficulty,
			changes_count = EXCLUDED.changes_count,
			is_finalized = EXCLUDED.is_finalized,
			fallback_used = EXCLUDED.fallback_used,
			snapshot = EXCLUDED.snapshot,
			last_updated = EXCLUDED.last_updated
	`
	_, err = s.db.ExecContext(ctx, query,
		state.SessionID,
		state.UserID,
		state.Initial.String(),
		state.Current.String(),
		final,
		len(state.Changes),
		state.IsFinalized,
		state.FallbackUsed,
		snapshot,
		state.LastUpdated,
	)
	if err != nil {
		s.logger.Error("failed to save session difficulty state",
			slog.String("error", err.Error()),
			slog.String("session_id", state.SessionID.String()))
		return store.NewStoreError("session_difficulty", "save",
			"failed to upsert difficulty state", MapError(err))
	}

	return nil
}

// Get implements store.SessionStateStore.Get.
// It deserializes the full state from the snapshot column.
func (s *SessionStateStore) Get(
	ctx context.Context,
	sessionID uuid.UUID,
) (*domain.SessionDifficultyState, error) {
	record, err := s.GetRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if len(record.Snapshot) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot", store.ErrInvalidEntity)
	}

	var state domain.SessionDifficultyState
	if err := json.Unmarshal(record.Snapshot, &state); err != nil {
		return nil, fmt.Errorf("%w: snapshot decoding: %v", store.ErrInvalidEntity, err)
	}

	return &state, nil
}

// GetRecord implements store.SessionStateStore.GetRecord.
func (s *SessionStateStore) GetRecord(
	ctx context.Context,
	sessionID uuid.UUID,
) (*store.StateRecord, error) {
	query := `
		SELECT session_id, user_id, initial_difficulty, current_difficulty,
		       final_difficulty, changes_count, is_finalized, fallback_used,
		       snapshot, last_updated
		FROM session_difficulty
		WHERE session_id = $1
	`
	record, err := scanStateRecord(s.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrSessionStateNotFound
		}
		return nil, store.NewStoreError("session_difficulty", "get",
			"failed to query difficulty record", MapError(err))
	}
	return record, nil
}

// ListRecordsByUser implements store.SessionStateStore.ListRecordsByUser.
func (s *SessionStateStore) ListRecordsByUser(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
) ([]*store.StateRecord, error) {
	query := `
		SELECT session_id, user_id, initial_difficulty, current_difficulty,
		       final_difficulty, changes_count, is_finalized, fallback_used,
		       snapshot, last_updated
		FROM session_difficulty
		WHERE user_id = $1
		ORDER BY last_updated DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, store.NewStoreError("session_difficulty", "list",
			"failed to query difficulty records", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []*store.StateRecord
	for rows.Next() {
		record, err := scanStateRecord(rows)
		if err != nil {
			return nil, store.NewStoreError("session_difficulty", "list",
				"failed to scan difficulty record", MapError(err))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("session_difficulty", "list",
			"failed to iterate difficulty records", MapError(err))
	}

	return records, nil
}

// Delete implements store.SessionStateStore.Delete.
func (s *SessionStateStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM session_difficulty WHERE session_id = $1`, sessionID)
	if err != nil {
		return store.NewStoreError("session_difficulty", "delete",
			"failed to delete difficulty state", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("session_difficulty", "delete",
			"failed to read affected rows", MapError(err))
	}
	if affected == 0 {
		return store.ErrSessionStateNotFound
	}

	return nil
}

// WithTx implements store.SessionStateStore.WithTx.
func (s *SessionStateStore) WithTx(tx *sql.Tx) store.SessionStateStore {
	return &SessionStateStore{
		db:     tx,
		logger: s.logger,
	}
}

// scanner is the common subset of *sql.Row and *sql.Rows used below.
type scanner interface {
	Scan(dest ...any) error
}

func scanStateRecord(row scanner) (*store.StateRecord, error) {
	var record store.StateRecord
	var final sql.NullString
	err := row.Scan(
		&record.SessionID,
		&record.UserID,
		&record.Initial,
		&record.Current,
		&final,
		&record.ChangesCount,
		&record.IsFinalized,
		&record.FallbackUsed,
		&record.Snapshot,
		&record.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	if final.Valid {
		record.Final = &final.String
	}
	return &record, nil
}
