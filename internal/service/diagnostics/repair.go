package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prepwise/calibrate/internal/domain"
	"github.com/prepwise/calibrate/internal/store"
)

// Repair actions, mirroring the audit checks.
const (
	RepairCreatedDefault    = "created_default_state"
	RepairSyncedColumns     = "synced_columns_from_snapshot"
	RepairRebuiltSnapshot   = "rebuilt_minimal_snapshot"
	RepairDiscardedSnapshot = "discarded_unparseable_snapshot"
	RepairFinalized         = "finalized_completed_session"
)

// RepairSession applies the guarded repair actions to one session. All
// repairs for the session run in a single transaction and commit or roll
// back together. Returns the actions applied, possibly none.
func (s *Service) RepairSession(ctx context.Context, sessionID uuid.UUID) ([]string, error) {
	var actions []string

	err := s.runTx(ctx, func(
		ctx context.Context,
		states store.SessionStateStore,
		sessions store.SessionStore,
	) error {
		session, err := sessions.GetByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}

		now := time.Now().UTC()

		record, err := states.GetRecord(ctx, sessionID)
		if err != nil {
			if !store.IsNotFoundError(err) {
				return fmt.Errorf("failed to load difficulty record: %w", err)
			}
			// No record at all: create one at the declared difficulty, or
			// the safe default when the session never declared one.
			initial := session.Difficulty
			if !initial.IsValid() {
				initial = domain.DifficultyDefault
			}
			state, err := domain.NewSessionDifficultyState(sessionID, session.UserID, initial)
			if err != nil {
				return err
			}
			if session.IsCompleted() {
				state.Finalize(now)
			}
			if err := states.Save(ctx, state); err != nil {
				return err
			}
			actions = append(actions, RepairCreatedDefault)
			return nil
		}

		state, decodeErr := decodeSnapshot(record)
		if decodeErr != nil {
			// Foreign or unparseable snapshots are discarded and a minimal
			// replacement rebuilt from the discrete columns.
			state = minimalStateFromColumns(record, now)
			actions = append(actions, RepairDiscardedSnapshot, RepairRebuiltSnapshot)
		} else if state == nil {
			state = minimalStateFromColumns(record, now)
			actions = append(actions, RepairRebuiltSnapshot)
		}

		if session.IsCompleted() && !state.IsFinalized {
			state.Finalize(now)
			actions = append(actions, RepairFinalized)
		}

		if decodeErr == nil && columnsDiverged(record, state) {
			// Save rewrites the discrete columns from the snapshot state.
			actions = append(actions, RepairSyncedColumns)
		}

		if len(actions) == 0 {
			return nil
		}

		state.LastUpdated = now
		if err := states.Save(ctx, state); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(actions) > 0 {
		s.logger.Info("repaired session difficulty state",
			slog.String("session_id", sessionID.String()),
			slog.Any("actions", actions))
	}

	return actions, nil
}

// decodeSnapshot returns the snapshot state, nil when no snapshot is
// stored, or an error when the snapshot is unusable (undecodable or
// belonging to another session).
func decodeSnapshot(record *store.StateRecord) (*domain.SessionDifficultyState, error) {
	if len(record.Snapshot) == 0 {
		return nil, nil
	}
	var state domain.SessionDifficultyState
	if err := json.Unmarshal(record.Snapshot, &state); err != nil {
		return nil, err
	}
	if state.SessionID != record.SessionID {
		return nil, fmt.Errorf("snapshot belongs to session %s", state.SessionID)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}

// minimalStateFromColumns rebuilds the smallest valid state the discrete
// columns support, bridging a moved difficulty with one synthetic change.
func minimalStateFromColumns(record *store.StateRecord, now time.Time) *domain.SessionDifficultyState {
	initial, err := domain.ParseDifficultyLevel(record.Initial)
	if err != nil {
		initial = domain.DifficultyDefault
	}
	current, err := domain.ParseDifficultyLevel(record.Current)
	if err != nil {
		current = initial
	}

	state := &domain.SessionDifficultyState{
		SessionID:    record.SessionID,
		UserID:       record.UserID,
		Initial:      initial,
		Current:      initial,
		FallbackUsed: record.FallbackUsed,
		LastUpdated:  now,
	}

	if current != initial {
		state.Changes = []domain.DifficultyChange{{
			From:         initial,
			To:           current,
			Reason:       domain.ChangeReasonRepair,
			ChangeNumber: 1,
			Timestamp:    now,
		}}
		state.Current = current
	}

	if record.IsFinalized {
		state.Finalize(now)
	}

	return state
}

// columnsDiverged reports whether the discrete columns disagree with the
// snapshot state.
func columnsDiverged(record *store.StateRecord, state *domain.SessionDifficultyState) bool {
	if record.Current != state.Current.String() ||
		record.Initial != state.Initial.String() ||
		record.ChangesCount != len(state.Changes) ||
		record.IsFinalized != state.IsFinalized {
		return true
	}
	if (record.Final == nil) != (state.Final == nil) {
		return true
	}
	if record.Final != nil && state.Final != nil && *record.Final != state.Final.String() {
		return true
	}
	return false
}
