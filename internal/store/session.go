package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/prepwise/calibrate/internal/domain"
)

// SessionStore defines read access to session metadata. The session
// lifecycle service owns these rows; this subsystem only reads them for
// recovery inference, history blending, and consistency audits.
type SessionStore interface {
	// GetByID retrieves a session by its unique ID.
	// Returns ErrSessionNotFound if the session does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)

	// ListRecentCompleted retrieves a user's completed sessions, most
	// recently completed first, up to limit.
	ListRecentCompleted(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Session, error)

	// ListByUser retrieves all of a user's sessions, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error)

	// ListAll retrieves every session. Diagnostic path only; the result is
	// eventually consistent with concurrent session activity.
	ListAll(ctx context.Context) ([]*domain.Session, error)

	// Count returns the total number of sessions. Used to bound the
	// parent-chain walk in cycle detection.
	Count(ctx context.Context) (int, error)

	// WithTx returns a new SessionStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) SessionStore
}
