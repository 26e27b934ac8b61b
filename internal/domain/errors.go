package domain

import "errors"

// Common domain errors used across the subsystem.
var (
	// ErrEmptySessionID is returned when a session ID is empty or nil.
	ErrEmptySessionID = errors.New("session ID cannot be empty")

	// ErrEmptyUserID is returned when a user ID is empty or nil.
	ErrEmptyUserID = errors.New("user ID cannot be empty")

	// ErrStateFinalized is returned when a mutation is attempted on a
	// finalized session difficulty state.
	ErrStateFinalized = errors.New("session difficulty state is finalized")

	// ErrCurrentMismatch is returned when the current difficulty does not
	// agree with the change log (initial when empty, last change target
	// otherwise).
	ErrCurrentMismatch = errors.New("current difficulty does not match change log")

	// ErrFinalizationPair is returned when final_difficulty and is_finalized
	// disagree: final set without the flag, or the flag set without a final.
	ErrFinalizationPair = errors.New("final difficulty and finalized flag disagree")

	// ErrChangeNumberOrder is returned when change numbers do not increase
	// strictly by 1 starting from 1.
	ErrChangeNumberOrder = errors.New("change numbers must increase by 1 from 1")

	// ErrInvalidScore is returned when a performance score is outside 0-100.
	ErrInvalidScore = errors.New("performance score must be between 0 and 100")
)
