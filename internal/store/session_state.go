package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/prepwise/calibrate/internal/domain"
)

// StateRecord is the raw durable encoding of a session's difficulty state.
// The same state is stored twice on purpose: discrete columns are cheap to
// query, the serialized snapshot allows full reconstruction, and divergence
// between the two is itself a corruption signal the diagnostics service
// checks for.
//
// Level columns are raw strings, not domain.DifficultyLevel: the recovery
// engine must be able to read records whose columns no longer parse.
type StateRecord struct {
	SessionID    uuid.UUID
	UserID       uuid.UUID
	Initial      string
	Current      string
	Final        *string
	ChangesCount int
	IsFinalized  bool
	FallbackUsed bool
	Snapshot     []byte
	LastUpdated  time.Time
}

// SessionStateStore defines the interface for durable difficulty-state
// persistence. Save performs the dual write (discrete columns + snapshot)
// atomically in a single statement.
type SessionStateStore interface {
	// Save upserts the state, writing both the discrete columns and the
	// serialized snapshot. It handles domain validation internally and
	// returns validation errors wrapped in ErrInvalidEntity.
	Save(ctx context.Context, state *domain.SessionDifficultyState) error

	// Get retrieves and deserializes the full state from the snapshot.
	// Returns ErrSessionStateNotFound if no record exists and
	// ErrInvalidEntity if the snapshot cannot be decoded; callers that must
	// survive a bad snapshot use GetRecord instead.
	Get(ctx context.Context, sessionID uuid.UUID) (*domain.SessionDifficultyState, error)

	// GetRecord retrieves the raw durable record without interpreting the
	// snapshot or the level columns. Returns ErrSessionStateNotFound if no
	// record exists.
	GetRecord(ctx context.Context, sessionID uuid.UUID) (*StateRecord, error)

	// ListRecordsByUser retrieves the raw records of a user's sessions,
	// most recently updated first, up to limit.
	ListRecordsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*StateRecord, error)

	// Delete removes the difficulty record for a session.
	// Returns ErrSessionStateNotFound if no record exists.
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// WithTx returns a new SessionStateStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) SessionStateStore
}
