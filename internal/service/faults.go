package service

import "fmt"

// FaultType enumerates the closed error taxonomy of the difficulty
// subsystem. Every failure crossing the service boundary is tagged with
// exactly one of these; raw store or domain errors never surface to
// collaborators.
type FaultType string

// Fault taxonomy members.
const (
	FaultStateCorruption    FaultType = "state_corruption"
	FaultPersistenceFailure FaultType = "persistence_failure"
	FaultRecoveryFailure    FaultType = "recovery_failure"
	FaultValidationError    FaultType = "validation_error"
	FaultIsolationViolation FaultType = "isolation_violation"
	FaultInheritanceError   FaultType = "inheritance_error"
	FaultCacheInconsistency FaultType = "cache_inconsistency"
	FaultSessionNotFound    FaultType = "session_not_found"
	FaultInvalidDifficulty  FaultType = "invalid_difficulty_level"
	FaultFinalizationError  FaultType = "finalization_error"
)

// autoRecoverable reports whether automatic recovery is attempted for the
// fault type. All other kinds are reported without auto-recovery.
func (t FaultType) autoRecoverable() bool {
	switch t {
	case FaultStateCorruption, FaultPersistenceFailure, FaultCacheInconsistency:
		return true
	default:
		return false
	}
}

// FaultReport is the structured result attached to every fault. It tells
// the caller what went wrong, what the subsystem already did about it, and
// what, if anything, the user can do.
type FaultReport struct {
	Type                 FaultType `json:"error_type"`
	Message              string    `json:"message"`
	RecoveryAttempted    bool      `json:"recovery_attempted"`
	RecoverySuccessful   bool      `json:"recovery_successful"`
	FallbackApplied      bool      `json:"fallback_applied"`
	SuggestedUserActions []string  `json:"suggested_user_actions,omitempty"`
}

// Fault is the error type carried across the service boundary. It wraps the
// underlying cause for logs while exposing only the structured report to
// collaborators.
type Fault struct {
	Report FaultReport
	Err    error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Report.Type, f.Report.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Report.Type, f.Report.Message)
}

// Unwrap returns the underlying cause to support errors.Is/errors.As.
func (f *Fault) Unwrap() error {
	return f.Err
}

// newFault creates a Fault with the given type, message, and cause.
func newFault(t FaultType, message string, err error) *Fault {
	return &Fault{
		Report: FaultReport{
			Type:    t,
			Message: message,
		},
		Err: err,
	}
}

func (f *Fault) withRecovery(attempted, successful, fallback bool) *Fault {
	f.Report.RecoveryAttempted = attempted
	f.Report.RecoverySuccessful = successful
	f.Report.FallbackApplied = fallback
	return f
}

func (f *Fault) withActions(actions ...string) *Fault {
	f.Report.SuggestedUserActions = actions
	return f
}
