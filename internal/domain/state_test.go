package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewSessionDifficultyState(t *testing.T) {
	sessionID := uuid.New()
	userID := uuid.New()

	state, err := NewSessionDifficultyState(sessionID, userID, DifficultyHard)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if state.SessionID != sessionID {
		t.Errorf("Expected session ID %s, got %s", sessionID, state.SessionID)
	}
	if state.UserID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, state.UserID)
	}
	if state.Initial != DifficultyHard {
		t.Errorf("Expected initial hard, got %v", state.Initial)
	}
	if state.Current != DifficultyHard {
		t.Errorf("Expected current hard, got %v", state.Current)
	}
	if state.IsFinalized {
		t.Error("Expected fresh state to not be finalized")
	}
	if state.Final != nil {
		t.Error("Expected nil final difficulty on fresh state")
	}
	if len(state.Changes) != 0 {
		t.Errorf("Expected empty change log, got %d entries", len(state.Changes))
	}
	if state.LastUpdated.IsZero() {
		t.Error("Expected non-zero LastUpdated")
	}

	// Invalid inputs
	if _, err := NewSessionDifficultyState(uuid.Nil, userID, DifficultyEasy); err != ErrEmptySessionID {
		t.Errorf("Expected ErrEmptySessionID, got %v", err)
	}
	if _, err := NewSessionDifficultyState(sessionID, uuid.Nil, DifficultyEasy); err != ErrEmptyUserID {
		t.Errorf("Expected ErrEmptyUserID, got %v", err)
	}
	if _, err := NewSessionDifficultyState(sessionID, userID, DifficultyLevel(0)); err != ErrInvalidDifficultyLevel {
		t.Errorf("Expected ErrInvalidDifficultyLevel, got %v", err)
	}
}

func TestSessionDifficultyStateValidate(t *testing.T) {
	now := time.Now().UTC()
	sessionID := uuid.New()
	userID := uuid.New()

	valid := func() *SessionDifficultyState {
		return &SessionDifficultyState{
			SessionID: sessionID,
			UserID:    userID,
			Initial:   DifficultyMedium,
			Current:   DifficultyHard,
			Changes: []DifficultyChange{{
				From:          DifficultyMedium,
				To:            DifficultyHard,
				Reason:        ChangeReasonLiveAdjustment,
				QuestionIndex: 3,
				ChangeNumber:  1,
				Timestamp:     now,
			}},
			LastUpdated: now,
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Expected valid state, got %v", err)
	}

	testCases := []struct {
		name     string
		mutate   func(*SessionDifficultyState)
		expected error
	}{
		{
			name:     "current diverges from change log tail",
			mutate:   func(s *SessionDifficultyState) { s.Current = DifficultyExpert },
			expected: ErrCurrentMismatch,
		},
		{
			name: "current diverges from initial with empty log",
			mutate: func(s *SessionDifficultyState) {
				s.Changes = nil
				s.Current = DifficultyExpert
			},
			expected: ErrCurrentMismatch,
		},
		{
			name: "change numbers out of order",
			mutate: func(s *SessionDifficultyState) {
				s.Changes[0].ChangeNumber = 2
			},
			expected: ErrChangeNumberOrder,
		},
		{
			name: "finalized without final level",
			mutate: func(s *SessionDifficultyState) {
				s.IsFinalized = true
			},
			expected: ErrFinalizationPair,
		},
		{
			name: "final level without finalized flag",
			mutate: func(s *SessionDifficultyState) {
				final := DifficultyHard
				s.Final = &final
			},
			expected: ErrFinalizationPair,
		},
		{
			name: "change without movement",
			mutate: func(s *SessionDifficultyState) {
				s.Changes[0].From = DifficultyHard
			},
			expected: ErrChangeNoOp,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			state := valid()
			tc.mutate(state)
			if err := state.Validate(); err != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, err)
			}
		})
	}
}

func TestApplyChange(t *testing.T) {
	now := time.Now().UTC()
	state, err := NewSessionDifficultyState(uuid.New(), uuid.New(), DifficultyMedium)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := state.ApplyChange(DifficultyHard, ChangeReasonLiveAdjustment, 3, now); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if state.Current != DifficultyHard {
		t.Errorf("Expected current hard, got %v", state.Current)
	}
	if len(state.Changes) != 1 || state.Changes[0].ChangeNumber != 1 {
		t.Fatalf("Expected one change numbered 1, got %+v", state.Changes)
	}
	if state.Changes[0].From != DifficultyMedium || state.Changes[0].To != DifficultyHard {
		t.Errorf("Expected medium->hard, got %v->%v", state.Changes[0].From, state.Changes[0].To)
	}

	if err := state.ApplyChange(DifficultyExpert, ChangeReasonSessionScore, 0, now); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if state.Changes[1].ChangeNumber != 2 {
		t.Errorf("Expected change number 2, got %d", state.Changes[1].ChangeNumber)
	}

	// No-op changes are rejected.
	if err := state.ApplyChange(DifficultyExpert, ChangeReasonSessionScore, 0, now); err != ErrChangeNoOp {
		t.Errorf("Expected ErrChangeNoOp, got %v", err)
	}

	// Frozen states reject further changes.
	state.Finalize(now)
	if err := state.ApplyChange(DifficultyHard, ChangeReasonSessionScore, 0, now); err != ErrStateFinalized {
		t.Errorf("Expected ErrStateFinalized, got %v", err)
	}

	if err := state.Validate(); err != nil {
		t.Errorf("Expected valid state after changes, got %v", err)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	state, err := NewSessionDifficultyState(uuid.New(), uuid.New(), DifficultyEasy)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	first := state.Finalize(now)
	if first != DifficultyEasy {
		t.Errorf("Expected easy, got %v", first)
	}
	if !state.IsFinalized || state.Final == nil {
		t.Fatal("Expected finalized state with final level set")
	}

	// A second Finalize returns the frozen level and records nothing new.
	later := now.Add(time.Hour)
	second := state.Finalize(later)
	if second != first {
		t.Errorf("Expected repeated finalize to return %v, got %v", first, second)
	}
	if !state.LastUpdated.Equal(now) {
		t.Error("Expected repeated finalize to leave LastUpdated untouched")
	}
}

func TestClone(t *testing.T) {
	now := time.Now().UTC()
	state, err := NewSessionDifficultyState(uuid.New(), uuid.New(), DifficultyMedium)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := state.ApplyChange(DifficultyHard, ChangeReasonLiveAdjustment, 2, now); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	state.Finalize(now)

	clone := state.Clone()

	clone.Changes[0].To = DifficultyExpert
	*clone.Final = DifficultyExpert

	if state.Changes[0].To != DifficultyHard {
		t.Error("Expected clone's change log to be independent")
	}
	if *state.Final != DifficultyHard {
		t.Error("Expected clone's final level to be independent")
	}
}
