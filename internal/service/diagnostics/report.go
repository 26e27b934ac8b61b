package diagnostics

import "github.com/google/uuid"

// Severity ranks a single failed check.
type Severity string

// Severities in ascending order of concern.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// rank maps severities onto a total order for aggregation.
func (s Severity) rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Status is the aggregate health derived from the worst severity observed.
type Status string

// Aggregate health statuses.
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusCritical  Status = "critical"
)

// Check codes reported by the audits.
const (
	CheckMissingDifficulty      = "missing_difficulty"
	CheckColumnMismatch         = "column_current_mismatch"
	CheckMissingFinal           = "completed_without_final"
	CheckSnapshotIDMismatch     = "snapshot_session_id_mismatch"
	CheckSnapshotUnparseable    = "snapshot_unparseable"
	CheckChangesWithoutSnapshot = "changes_without_snapshot"
	CheckDanglingParent         = "dangling_parent_reference"
	CheckParentCycle            = "parent_chain_cycle"
	CheckInheritanceMismatch    = "inheritance_mismatch"
	CheckSessionMissing         = "session_missing"
)

// Check is one finding from a consistency audit.
type Check struct {
	Code      string    `json:"code"`
	Severity  Severity  `json:"severity"`
	SessionID uuid.UUID `json:"session_id,omitempty"`
	Message   string    `json:"message"`
}

// Report aggregates the findings of one audit run.
type Report struct {
	Checks          []Check `json:"checks"`
	SessionsScanned int     `json:"sessions_scanned"`
	Status          Status  `json:"status"`
}

// statusFor derives the aggregate status from a set of findings:
// no findings is healthy, warnings degrade, errors make the subsystem
// unhealthy, and any critical finding dominates.
func statusFor(checks []Check) Status {
	worst := 0
	for _, c := range checks {
		if r := c.Severity.rank(); r > worst {
			worst = r
		}
	}
	switch {
	case worst >= SeverityCritical.rank():
		return StatusCritical
	case worst >= SeverityError.rank():
		return StatusUnhealthy
	case worst >= SeverityWarning.rank():
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// finish computes the aggregate status and returns the report.
func finish(report *Report) *Report {
	report.Status = statusFor(report.Checks)
	return report
}
