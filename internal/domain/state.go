package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionDifficultyState is the per-session difficulty aggregate. It tracks
// the level the session started at, the level it is currently running at,
// the frozen final level once the session completes, and an append-only log
// of every transition in between.
//
// Invariants (enforced by Validate):
//   - Current == Initial iff Changes is empty, else Current == last change's To
//   - Final is non-nil iff IsFinalized
//   - ChangeNumber increases strictly by 1 starting from 1
type SessionDifficultyState struct {
	SessionID    uuid.UUID          `json:"session_id"`
	UserID       uuid.UUID          `json:"user_id"`
	Initial      DifficultyLevel    `json:"initial_difficulty"`
	Current      DifficultyLevel    `json:"current_difficulty"`
	Final        *DifficultyLevel   `json:"final_difficulty,omitempty"`
	Changes      []DifficultyChange `json:"changes"`
	IsFinalized  bool               `json:"is_finalized"`
	FallbackUsed bool               `json:"fallback_used,omitempty"`
	LastUpdated  time.Time          `json:"last_updated"`
}

// NewSessionDifficultyState creates the state for a freshly started session.
// Returns an error if validation fails.
func NewSessionDifficultyState(
	sessionID, userID uuid.UUID,
	initial DifficultyLevel,
) (*SessionDifficultyState, error) {
	state := &SessionDifficultyState{
		SessionID:   sessionID,
		UserID:      userID,
		Initial:     initial,
		Current:     initial,
		Changes:     nil,
		LastUpdated: time.Now().UTC(),
	}

	if err := state.Validate(); err != nil {
		return nil, err
	}

	return state, nil
}

// Validate checks the aggregate invariants.
// Returns the first violated invariant as a domain error.
func (s *SessionDifficultyState) Validate() error {
	if s.SessionID == uuid.Nil {
		return ErrEmptySessionID
	}
	if s.UserID == uuid.Nil {
		return ErrEmptyUserID
	}
	if !s.Initial.IsValid() || !s.Current.IsValid() {
		return ErrInvalidDifficultyLevel
	}

	if len(s.Changes) == 0 {
		if s.Current != s.Initial {
			return ErrCurrentMismatch
		}
	} else {
		for i, c := range s.Changes {
			if err := c.Validate(); err != nil {
				return err
			}
			if c.ChangeNumber != i+1 {
				return ErrChangeNumberOrder
			}
		}
		if s.Current != s.Changes[len(s.Changes)-1].To {
			return ErrCurrentMismatch
		}
	}

	if s.IsFinalized != (s.Final != nil) {
		return ErrFinalizationPair
	}
	if s.Final != nil && !s.Final.IsValid() {
		return ErrInvalidDifficultyLevel
	}

	return nil
}

// ApplyChange appends a transition to the change log and moves Current.
// questionIndex is 0 for end-of-session transitions.
// Returns ErrStateFinalized if the state is already frozen and ErrChangeNoOp
// if the target equals the current level.
func (s *SessionDifficultyState) ApplyChange(
	to DifficultyLevel,
	reason string,
	questionIndex int,
	now time.Time,
) error {
	if s.IsFinalized {
		return ErrStateFinalized
	}

	change := DifficultyChange{
		From:          s.Current,
		To:            to,
		Reason:        reason,
		QuestionIndex: questionIndex,
		ChangeNumber:  len(s.Changes) + 1,
		Timestamp:     now,
	}
	if err := change.Validate(); err != nil {
		return err
	}

	s.Changes = append(s.Changes, change)
	s.Current = to
	s.LastUpdated = now
	return nil
}

// Finalize freezes the state at the current difficulty. Finalizing an
// already-finalized state is a no-op and returns the frozen level, so the
// operation is idempotent.
func (s *SessionDifficultyState) Finalize(now time.Time) DifficultyLevel {
	if s.IsFinalized {
		return *s.Final
	}

	final := s.Current
	s.Final = &final
	s.IsFinalized = true
	s.LastUpdated = now
	return final
}

// Clone returns a deep copy so callers can hand out state without exposing
// the cached aggregate to mutation.
func (s *SessionDifficultyState) Clone() *SessionDifficultyState {
	clone := *s
	if s.Final != nil {
		final := *s.Final
		clone.Final = &final
	}
	if s.Changes != nil {
		clone.Changes = make([]DifficultyChange, len(s.Changes))
		copy(clone.Changes, s.Changes)
	}
	return &clone
}
