// Package recovery rebuilds a usable session difficulty state from whatever
// survives a failure: the serialized snapshot, the discrete columns, the
// user's session history, or, as a last resort, a safe default. The chain is
// ordered and the final strategy cannot fail, so Recover always terminates
// with a valid state.
package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prepwise/calibrate/internal/domain"
	"github.com/prepwise/calibrate/internal/platform/logger"
	"github.com/prepwise/calibrate/internal/store"
)

// Strategy names, in chain order.
const (
	StrategySnapshot = "snapshot"
	StrategyColumns  = "columns"
	StrategyContext  = "context"
	StrategyFallback = "fallback"
)

// historyWindow is how many completed sessions feed the context-inference
// strategy.
const historyWindow = 5

// Outcome describes how a recovery concluded.
type Outcome struct {
	Strategy     string   `json:"strategy"`
	FallbackUsed bool     `json:"fallback_used"`
	Repairs      []string `json:"repairs,omitempty"`
	Persisted    bool     `json:"persisted"`
}

// Engine runs the ordered recovery chain.
type Engine struct {
	stateStore   store.SessionStateStore
	sessionStore store.SessionStore
	logger       *slog.Logger
}

// NewEngine creates a recovery engine. If logger is nil, a default logger
// will be used.
func NewEngine(
	stateStore store.SessionStateStore,
	sessionStore store.SessionStore,
	log *slog.Logger,
) *Engine {
	if stateStore == nil {
		panic("stateStore cannot be nil")
	}
	if sessionStore == nil {
		panic("sessionStore cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		stateStore:   stateStore,
		sessionStore: sessionStore,
		logger:       log.With(slog.String("component", "recovery_engine")),
	}
}

// Recover produces a valid SessionDifficultyState for the session, trying
// each strategy in order and taking the first success. It never returns an
// error: the fallback strategy succeeds unconditionally. The recovered
// state is written back to the durable store on a best-effort basis.
func (e *Engine) Recover(
	ctx context.Context,
	sessionID uuid.UUID,
) (*domain.SessionDifficultyState, *Outcome) {
	log := logger.FromContextOrDefault(ctx, e.logger)
	now := time.Now().UTC()

	record, err := e.stateStore.GetRecord(ctx, sessionID)
	if err != nil && !store.IsNotFoundError(err) {
		log.Warn("could not read durable record during recovery",
			slog.String("error", err.Error()),
			slog.String("session_id", sessionID.String()))
	}

	session, err := e.sessionStore.GetByID(ctx, sessionID)
	if err != nil && !store.IsNotFoundError(err) {
		log.Warn("could not read session metadata during recovery",
			slog.String("error", err.Error()),
			slog.String("session_id", sessionID.String()))
	}

	userID := resolveUserID(sessionID, record, session)

	var state *domain.SessionDifficultyState
	var outcome *Outcome

	if state, outcome = e.fromSnapshot(sessionID, userID, record, now); state == nil {
		if state, outcome = e.fromColumns(sessionID, userID, record, now); state == nil {
			if state, outcome = e.fromContext(ctx, sessionID, userID, session, now); state == nil {
				state, outcome = e.fallback(sessionID, userID, session, now)
			}
		}
	}

	log.Info("recovered session difficulty state",
		slog.String("session_id", sessionID.String()),
		slog.String("strategy", outcome.Strategy),
		slog.Bool("fallback_used", outcome.FallbackUsed))

	if err := e.stateStore.Save(ctx, state); err != nil {
		log.Warn("failed to persist recovered state",
			slog.String("error", err.Error()),
			slog.String("session_id", sessionID.String()))
	} else {
		outcome.Persisted = true
	}

	return state, outcome
}

// fromSnapshot is strategy 1: deserialize the full snapshot, then repair the
// common invariant violations before giving up on it.
func (e *Engine) fromSnapshot(
	sessionID, userID uuid.UUID,
	record *store.StateRecord,
	now time.Time,
) (*domain.SessionDifficultyState, *Outcome) {
	if record == nil || len(record.Snapshot) == 0 {
		return nil, nil
	}

	var state domain.SessionDifficultyState
	if err := json.Unmarshal(record.Snapshot, &state); err != nil {
		return nil, nil
	}

	repairs := repairState(&state, sessionID, userID, now)
	if err := state.Validate(); err != nil {
		// Still broken after repair; let the next strategy try.
		return nil, nil
	}

	return &state, &Outcome{Strategy: StrategySnapshot, Repairs: repairs}
}

// fromColumns is strategy 2: rebuild minimal state from the discrete
// columns. A session whose columns say the difficulty moved gets one
// synthetic bridging change so the change-log invariant holds.
func (e *Engine) fromColumns(
	sessionID, userID uuid.UUID,
	record *store.StateRecord,
	now time.Time,
) (*domain.SessionDifficultyState, *Outcome) {
	if record == nil {
		return nil, nil
	}

	initial, err := domain.ParseDifficultyLevel(record.Initial)
	if err != nil {
		return nil, nil
	}
	current, err := domain.ParseDifficultyLevel(record.Current)
	if err != nil {
		return nil, nil
	}

	state := &domain.SessionDifficultyState{
		SessionID:    sessionID,
		UserID:       userID,
		Initial:      initial,
		Current:      initial,
		FallbackUsed: record.FallbackUsed,
		LastUpdated:  now,
	}

	var repairs []string
	if record.ChangesCount > 0 && current != initial {
		state.Changes = []domain.DifficultyChange{{
			From:         initial,
			To:           current,
			Reason:       domain.ChangeReasonColumnRecovery,
			ChangeNumber: 1,
			Timestamp:    now,
		}}
		state.Current = current
		repairs = append(repairs, fmt.Sprintf(
			"bridged %+d difficulty steps recorded only in the columns",
			initial.StepsTo(current)))
	}

	if record.IsFinalized {
		if record.Final != nil {
			if final, err := domain.ParseDifficultyLevel(*record.Final); err == nil {
				state.Current = ensureCurrent(state, final, now)
			}
		}
		state.Finalize(now)
	}

	if err := state.Validate(); err != nil {
		return nil, nil
	}

	return state, &Outcome{Strategy: StrategyColumns, Repairs: repairs}
}

// fromContext is strategy 3: infer the initial difficulty from the user's
// most frequent difficulty across their recent completed sessions.
func (e *Engine) fromContext(
	ctx context.Context,
	sessionID, userID uuid.UUID,
	session *domain.Session,
	now time.Time,
) (*domain.SessionDifficultyState, *Outcome) {
	completed, err := e.sessionStore.ListRecentCompleted(ctx, userID, historyWindow)
	if err != nil || len(completed) == 0 {
		return nil, nil
	}

	counts := map[domain.DifficultyLevel]int{}
	for _, s := range completed {
		if s.Difficulty.IsValid() {
			counts[s.Difficulty]++
		}
	}

	var inferred domain.DifficultyLevel
	var best int
	// Iterate levels in order so ties resolve deterministically to the
	// easier level.
	for level := domain.DifficultyEasy; level <= domain.DifficultyExpert; level++ {
		if counts[level] > best {
			inferred = level
			best = counts[level]
		}
	}
	if best == 0 {
		return nil, nil
	}

	state, err := domain.NewSessionDifficultyState(sessionID, userID, inferred)
	if err != nil {
		return nil, nil
	}
	state.LastUpdated = now

	if session != nil && session.IsCompleted() {
		state.Finalize(now)
	}

	return state, &Outcome{Strategy: StrategyContext}
}

// fallback is strategy 4: a fresh state at the safe default difficulty.
// It succeeds unconditionally, which is what guarantees chain termination.
func (e *Engine) fallback(
	sessionID, userID uuid.UUID,
	session *domain.Session,
	now time.Time,
) (*domain.SessionDifficultyState, *Outcome) {
	state := &domain.SessionDifficultyState{
		SessionID:    sessionID,
		UserID:       userID,
		Initial:      domain.DifficultyDefault,
		Current:      domain.DifficultyDefault,
		FallbackUsed: true,
		LastUpdated:  now,
	}

	if session != nil && session.IsCompleted() {
		state.Finalize(now)
	}

	return state, &Outcome{Strategy: StrategyFallback, FallbackUsed: true}
}

// repairState fixes the common invariant violations found in snapshots,
// returning a description of each repair applied.
func repairState(
	state *domain.SessionDifficultyState,
	sessionID, userID uuid.UUID,
	now time.Time,
) []string {
	var repairs []string

	if state.SessionID == uuid.Nil {
		state.SessionID = sessionID
		repairs = append(repairs, "filled missing session id")
	}
	if state.UserID == uuid.Nil {
		state.UserID = userID
		repairs = append(repairs, "filled missing user id")
	}

	if !state.Initial.IsValid() {
		state.Initial = domain.DifficultyDefault
		repairs = append(repairs, "filled missing initial difficulty with default")
	}
	if !state.Current.IsValid() {
		state.Current = domain.DifficultyDefault
		repairs = append(repairs, "filled missing current difficulty with default")
	}

	// Renumber the change log so ChangeNumber increases by 1 from 1.
	for i := range state.Changes {
		if state.Changes[i].ChangeNumber != i+1 {
			state.Changes[i].ChangeNumber = i + 1
			repairs = append(repairs, "renumbered change log")
		}
	}

	// Recompute current from the change-log tail.
	if len(state.Changes) > 0 {
		if tail := state.Changes[len(state.Changes)-1].To; tail.IsValid() && state.Current != tail {
			state.Current = tail
			repairs = append(repairs, "recomputed current difficulty from change log")
		}
	} else if state.Current != state.Initial {
		state.Initial = state.Current
		repairs = append(repairs, "aligned initial difficulty with current")
	}

	// Reconcile the finalization pairing in either direction.
	if state.IsFinalized && state.Final == nil {
		final := state.Current
		state.Final = &final
		repairs = append(repairs, "filled missing final difficulty")
	}
	if !state.IsFinalized && state.Final != nil {
		state.IsFinalized = true
		repairs = append(repairs, "marked state finalized to match final difficulty")
	}

	if len(repairs) > 0 {
		state.LastUpdated = now
	}

	return repairs
}

// ensureCurrent moves the state's current level to target, appending a
// bridging change when the state already carries a log.
func ensureCurrent(
	state *domain.SessionDifficultyState,
	target domain.DifficultyLevel,
	now time.Time,
) domain.DifficultyLevel {
	if state.Current == target {
		return state.Current
	}
	state.Changes = append(state.Changes, domain.DifficultyChange{
		From:         state.Current,
		To:           target,
		Reason:       domain.ChangeReasonColumnRecovery,
		ChangeNumber: len(state.Changes) + 1,
		Timestamp:    now,
	})
	state.Current = target
	return target
}

// resolveUserID picks the best available owner for the recovered state.
// The durable record wins, then session metadata. A session with no trace
// in either store still gets a structurally valid state; the session id
// stands in as owner until the lifecycle service backfills the row.
func resolveUserID(
	sessionID uuid.UUID,
	record *store.StateRecord,
	session *domain.Session,
) uuid.UUID {
	if record != nil && record.UserID != uuid.Nil {
		return record.UserID
	}
	if session != nil && session.UserID != uuid.Nil {
		return session.UserID
	}
	return sessionID
}
