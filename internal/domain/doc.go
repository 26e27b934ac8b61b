// Package domain contains the core entities of the adaptive-difficulty
// subsystem: difficulty levels, the per-session difficulty aggregate with
// its append-only change log, and the collaborator-facing session and
// performance types.
package domain
