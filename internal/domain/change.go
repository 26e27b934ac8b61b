package domain

import (
	"errors"
	"time"
)

// Change reasons recorded in the append-only log. Free-form reasons are
// allowed for diagnostics, but the main paths use these.
const (
	ChangeReasonSessionScore   = "session_score"
	ChangeReasonLiveAdjustment = "live_adjustment"
	ChangeReasonColumnRecovery = "recovered_from_columns"
	ChangeReasonRepair         = "consistency_repair"
)

// Change-specific validation errors
var (
	// ErrChangeInvalidLevel is returned when a change references an unknown level.
	ErrChangeInvalidLevel = errors.New("difficulty change references invalid level")

	// ErrChangeNoOp is returned when a change does not move the difficulty.
	ErrChangeNoOp = errors.New("difficulty change must move the level")

	// ErrChangeReasonEmpty is returned when a change carries no reason.
	ErrChangeReasonEmpty = errors.New("difficulty change reason cannot be empty")
)

// DifficultyChange is one immutable entry in a session's append-only change
// log. ChangeNumber starts at 1 and increases strictly by 1 within a session.
// QuestionIndex is 0 for end-of-session transitions and the 1-based question
// number for mid-session adjustments.
type DifficultyChange struct {
	From          DifficultyLevel `json:"from"`
	To            DifficultyLevel `json:"to"`
	Reason        string          `json:"reason"`
	QuestionIndex int             `json:"question_index,omitempty"`
	ChangeNumber  int             `json:"change_number"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Validate checks if the DifficultyChange has valid data.
func (c DifficultyChange) Validate() error {
	if !c.From.IsValid() || !c.To.IsValid() {
		return ErrChangeInvalidLevel
	}
	if c.From == c.To {
		return ErrChangeNoOp
	}
	if c.Reason == "" {
		return ErrChangeReasonEmpty
	}
	if c.ChangeNumber < 1 {
		return ErrChangeNumberOrder
	}
	return nil
}
