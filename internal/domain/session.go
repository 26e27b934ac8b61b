package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle status reported by the session service.
type SessionStatus string

// Possible session status values
const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// SessionMode distinguishes first attempts from derived practice runs.
type SessionMode string

// Possible session mode values
const (
	SessionModeStandard SessionMode = "standard"
	SessionModePractice SessionMode = "practice"
)

// Session is the slice of session metadata this subsystem reads. The session
// lifecycle service owns these rows; the difficulty core never mutates them
// and never introspects any richer collaborator shape than this struct.
type Session struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Status          SessionStatus   `json:"status"`
	Mode            SessionMode     `json:"mode"`
	ParentSessionID *uuid.UUID      `json:"parent_session_id,omitempty"`
	Difficulty      DifficultyLevel `json:"difficulty"`
	Score           *float64        `json:"score,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// IsCompleted reports whether the session finished normally.
func (s *Session) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

// IsDerived reports whether the session was seeded from a parent session.
func (s *Session) IsDerived() bool {
	return s.ParentSessionID != nil
}
