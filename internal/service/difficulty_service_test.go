package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/calibrate/internal/config"
	"github.com/prepwise/calibrate/internal/domain"
	"github.com/prepwise/calibrate/internal/domain/scoring"
	"github.com/prepwise/calibrate/internal/service"
	"github.com/prepwise/calibrate/internal/service/recovery"
	"github.com/prepwise/calibrate/internal/store"
)

// fakeStateStore is an in-memory SessionStateStore that mirrors the dual
// write of the real store: Save encodes both the discrete columns and the
// snapshot, so tests can corrupt either side independently.
type fakeStateStore struct {
	order   []uuid.UUID
	records map[uuid.UUID]*store.StateRecord
	saveErr error
	getErr  error
	saves   int
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{records: make(map[uuid.UUID]*store.StateRecord)}
}

func (f *fakeStateStore) Save(_ context.Context, state *domain.SessionDifficultyState) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	snapshot, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	record := &store.StateRecord{
		SessionID:    state.SessionID,
		UserID:       state.UserID,
		Initial:      state.Initial.String(),
		Current:      state.Current.String(),
		ChangesCount: len(state.Changes),
		IsFinalized:  state.IsFinalized,
		FallbackUsed: state.FallbackUsed,
		Snapshot:     snapshot,
		LastUpdated:  state.LastUpdated,
	}
	if state.Final != nil {
		final := state.Final.String()
		record.Final = &final
	}

	if _, ok := f.records[state.SessionID]; !ok {
		f.order = append(f.order, state.SessionID)
	}
	f.records[state.SessionID] = record
	return nil
}

func (f *fakeStateStore) Get(
	ctx context.Context,
	sessionID uuid.UUID,
) (*domain.SessionDifficultyState, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	record, err := f.GetRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var state domain.SessionDifficultyState
	if err := json.Unmarshal(record.Snapshot, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return &state, nil
}

func (f *fakeStateStore) GetRecord(
	_ context.Context,
	sessionID uuid.UUID,
) (*store.StateRecord, error) {
	record, ok := f.records[sessionID]
	if !ok {
		return nil, store.ErrSessionStateNotFound
	}
	return record, nil
}

func (f *fakeStateStore) ListRecordsByUser(
	_ context.Context,
	userID uuid.UUID,
	limit int,
) ([]*store.StateRecord, error) {
	var out []*store.StateRecord
	// Newest first.
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		if record := f.records[f.order[i]]; record != nil && record.UserID == userID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeStateStore) Delete(_ context.Context, sessionID uuid.UUID) error {
	if _, ok := f.records[sessionID]; !ok {
		return store.ErrSessionStateNotFound
	}
	delete(f.records, sessionID)
	return nil
}

func (f *fakeStateStore) WithTx(_ *sql.Tx) store.SessionStateStore { return f }

// fakeSessionStore is an in-memory read model of the session lifecycle
// service's rows.
type fakeSessionStore struct {
	order    []uuid.UUID
	sessions map[uuid.UUID]*domain.Session
}

func newFakeSessionStore(sessions ...*domain.Session) *fakeSessionStore {
	f := &fakeSessionStore{sessions: make(map[uuid.UUID]*domain.Session)}
	for _, s := range sessions {
		f.add(s)
	}
	return f
}

func (f *fakeSessionStore) add(s *domain.Session) {
	if _, ok := f.sessions[s.ID]; !ok {
		f.order = append(f.order, s.ID)
	}
	f.sessions[s.ID] = s
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	session, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return session, nil
}

func (f *fakeSessionStore) ListRecentCompleted(
	_ context.Context,
	userID uuid.UUID,
	limit int,
) ([]*domain.Session, error) {
	var out []*domain.Session
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		s := f.sessions[f.order[i]]
		if s != nil && s.UserID == userID && s.IsCompleted() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) ListByUser(
	_ context.Context,
	userID uuid.UUID,
) ([]*domain.Session, error) {
	var out []*domain.Session
	for i := len(f.order) - 1; i >= 0; i-- {
		if s := f.sessions[f.order[i]]; s != nil && s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) ListAll(_ context.Context) ([]*domain.Session, error) {
	var out []*domain.Session
	for _, id := range f.order {
		out = append(out, f.sessions[id])
	}
	return out, nil
}

func (f *fakeSessionStore) Count(_ context.Context) (int, error) {
	return len(f.sessions), nil
}

func (f *fakeSessionStore) WithTx(_ *sql.Tx) store.SessionStore { return f }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeSession(userID uuid.UUID, difficulty domain.DifficultyLevel) *domain.Session {
	return &domain.Session{
		ID:         uuid.New(),
		UserID:     userID,
		Status:     domain.SessionStatusActive,
		Mode:       domain.SessionModeStandard,
		Difficulty: difficulty,
		CreatedAt:  time.Now().UTC(),
	}
}

func newTestService(
	states *fakeStateStore,
	sessions *fakeSessionStore,
	opts ...service.Option,
) *service.DifficultyService {
	log := testLogger()
	return service.NewDifficultyService(
		states,
		sessions,
		scoring.NewDefaultService(),
		recovery.NewEngine(states, sessions, log),
		config.DifficultyConfig{PersistAttempts: 1, MaxRecoveryAttempts: 3},
		log,
		opts...,
	)
}

func faultType(t *testing.T, err error) service.FaultType {
	t.Helper()
	var fault *service.Fault
	require.ErrorAs(t, err, &fault)
	return fault.Report.Type
}

func TestInitializeSessionDifficulty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyHard)
	states := newFakeStateStore()
	svc := newTestService(states, newFakeSessionStore(session))

	err := svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyHard)
	require.NoError(t, err)

	record, err := states.GetRecord(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "hard", record.Initial)
	assert.Equal(t, "hard", record.Current)
	assert.False(t, record.IsFinalized)
	assert.NotEmpty(t, record.Snapshot, "dual write must include the snapshot")

	// Unknown sessions and invalid levels are rejected with typed faults.
	err = svc.InitializeSessionDifficulty(ctx, uuid.New(), domain.DifficultyEasy)
	assert.Equal(t, service.FaultSessionNotFound, faultType(t, err))

	err = svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyLevel(9))
	assert.Equal(t, service.FaultInvalidDifficulty, faultType(t, err))
}

func TestRecordAnswerAdjustsMidSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyExpert)
	states := newFakeStateStore()
	svc := newTestService(states, newFakeSessionStore(session))

	require.NoError(t, svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyExpert))

	weak := domain.PerformanceSample{ContentScore: domain.Score(20)}

	// First two answers: the check waits for a full window of signal.
	level, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 1, 6, weak)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyExpert, level)

	level, err = svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 2, 6, weak)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyExpert, level)

	// Third answer: sustained weak content demotes one step.
	level, err = svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 3, 6, weak)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyHard, level)

	// Continued weakness keeps stepping down, one level at a time.
	level, err = svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 4, 6, weak)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyMedium, level)

	record, err := states.GetRecord(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "expert", record.Initial)
	assert.Equal(t, "medium", record.Current)
	assert.Equal(t, 2, record.ChangesCount)
}

func TestSustainedWeaknessAtExpertDemotesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyExpert)
	svc := newTestService(newFakeStateStore(), newFakeSessionStore(session))

	require.NoError(t, svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyExpert))

	// Three consecutive content scores of 20 demote expert to hard after
	// the 3rd sample, as a single recorded change.
	weak := domain.PerformanceSample{ContentScore: domain.Score(20)}
	for i := 1; i <= 2; i++ {
		level, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, i, 10, weak)
		require.NoError(t, err)
		assert.Equal(t, domain.DifficultyExpert, level)
	}
	level, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 3, 10, weak)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyHard, level)

	summary, err := svc.GetSessionDifficultySummary(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyHard, summary.Current)
	require.Len(t, summary.Changes, 1)
	assert.Equal(t, domain.ChangeReasonLiveAdjustment, summary.Changes[0].Reason)
	assert.Equal(t, 3, summary.Changes[0].QuestionIndex)
}

func TestRecordAnswerNeverAdjustsOnFinalQuestion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyMedium)
	svc := newTestService(newFakeStateStore(), newFakeSessionStore(session))

	require.NoError(t, svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyMedium))

	strong := domain.PerformanceSample{ContentScore: domain.Score(95)}
	_, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 1, 3, strong)
	require.NoError(t, err)
	_, err = svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 2, 3, strong)
	require.NoError(t, err)

	// Enough answers for the check to run, but question 3 of 3 is final.
	level, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 3, 3, strong)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyMedium, level,
		"final question must never move the difficulty")
}

func TestRecordAnswerRejectsBadInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyMedium)
	svc := newTestService(newFakeStateStore(), newFakeSessionStore(session))
	require.NoError(t, svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyMedium))

	bad := domain.PerformanceSample{ContentScore: domain.Score(150)}
	_, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 1, 5, bad)
	assert.Equal(t, service.FaultValidationError, faultType(t, err))
}

func TestFinalizeSessionDifficulty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyHard)
	states := newFakeStateStore()
	svc := newTestService(states, newFakeSessionStore(session))

	require.NoError(t, svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyHard))

	// Two questions total, so the live check never fires and the
	// end-of-session transition decides alone.
	strong := domain.PerformanceSample{
		ContentScore:      domain.Score(90),
		BodyLanguageScore: domain.Score(90),
		ToneScore:         domain.Score(90),
	}
	_, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 1, 2, strong)
	require.NoError(t, err)
	_, err = svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 2, 2, strong)
	require.NoError(t, err)

	final, err := svc.FinalizeSessionDifficulty(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyExpert, final,
		"exceptional score must promote at session end")

	record, err := states.GetRecord(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, record.IsFinalized)
	require.NotNil(t, record.Final)
	assert.Equal(t, "expert", *record.Final)

	assert.Equal(t, 0, svc.CachedSessions(), "finalized sessions leave the cache")

	// Finalizing again is idempotent even after the cache entry is gone.
	again, err := svc.FinalizeSessionDifficulty(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyExpert, again)
	assert.Equal(t, 1, record.ChangesCount)
}

func TestFinalizeRespectsStabilityGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyMedium)
	states := newFakeStateStore()
	sessions := newFakeSessionStore(session)

	// Two recent sessions that both changed difficulty: the guard holds the
	// next transition.
	for i := 0; i < 2; i++ {
		prior, err := domain.NewSessionDifficultyState(uuid.New(), userID, domain.DifficultyMedium)
		require.NoError(t, err)
		require.NoError(t, prior.ApplyChange(
			domain.DifficultyHard, domain.ChangeReasonSessionScore, 0, time.Now().UTC()))
		prior.Finalize(time.Now().UTC())
		require.NoError(t, states.Save(ctx, prior))
	}

	svc := newTestService(states, sessions,
		service.WithStabilityPolicy(scoring.AntiOscillationPolicy{}))

	require.NoError(t, svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyMedium))

	strong := domain.PerformanceSample{
		ContentScore:      domain.Score(95),
		BodyLanguageScore: domain.Score(95),
		ToneScore:         domain.Score(95),
	}
	_, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 1, 2, strong)
	require.NoError(t, err)

	final, err := svc.FinalizeSessionDifficulty(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyMedium, final,
		"guard must hold the level despite a promoting score")
}

func TestPersistenceFailureDegradesToCacheOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyMedium)
	states := newFakeStateStore()
	svc := newTestService(states, newFakeSessionStore(session))

	require.NoError(t, svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyMedium))

	states.saveErr = errors.New("connection refused")

	sample := domain.PerformanceSample{ContentScore: domain.Score(60)}
	level, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 1, 5, sample)

	// The answer still lands; the session keeps its level and the caller
	// gets a typed, recoverable fault.
	assert.Equal(t, domain.DifficultyMedium, level)
	require.Error(t, err)
	var fault *service.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, service.FaultPersistenceFailure, fault.Report.Type)
	assert.True(t, fault.Report.FallbackApplied)

	// Once the store is back, the next write flushes the cached state.
	states.saveErr = nil
	_, err = svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 2, 5, sample)
	require.NoError(t, err)

	record, err := states.GetRecord(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "medium", record.Current)
}

func TestGetDifficultyForDerivedSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	parent := activeSession(userID, domain.DifficultyMedium)
	states := newFakeStateStore()
	sessions := newFakeSessionStore(parent)
	svc := newTestService(states, sessions)

	// Parent finalized at expert: the derived session starts there, not at
	// the parent's initial level.
	state, err := domain.NewSessionDifficultyState(parent.ID, userID, domain.DifficultyMedium)
	require.NoError(t, err)
	require.NoError(t, state.ApplyChange(
		domain.DifficultyHard, domain.ChangeReasonSessionScore, 0, time.Now().UTC()))
	require.NoError(t, state.ApplyChange(
		domain.DifficultyExpert, domain.ChangeReasonLiveAdjustment, 4, time.Now().UTC()))
	state.Finalize(time.Now().UTC())
	require.NoError(t, states.Save(ctx, state))

	level, err := svc.GetDifficultyForDerivedSession(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyExpert, level)

	// No difficulty state: fall back to the parent's declared difficulty.
	declared := activeSession(userID, domain.DifficultyHard)
	sessions.add(declared)
	level, err = svc.GetDifficultyForDerivedSession(ctx, declared.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyHard, level)

	// Unknown parent: safe default plus a typed fault.
	level, err = svc.GetDifficultyForDerivedSession(ctx, uuid.New())
	assert.Equal(t, domain.DifficultyDefault, level)
	assert.Equal(t, service.FaultSessionNotFound, faultType(t, err))
}

func TestSummaryRecoversLostState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyMedium)
	states := newFakeStateStore()
	svc := newTestService(states, newFakeSessionStore(session))

	// The session exists but its difficulty state is gone: the read goes
	// through recovery and still produces a usable summary.
	summary, err := svc.GetSessionDifficultySummary(ctx, session.ID)
	require.NotNil(t, summary)
	assert.Equal(t, session.ID, summary.SessionID)
	assert.True(t, summary.FallbackUsed)
	assert.Equal(t, domain.DifficultyDefault, summary.Current)

	var fault *service.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, service.FaultStateCorruption, fault.Report.Type)
	assert.True(t, fault.Report.RecoveryAttempted)
	assert.True(t, fault.Report.RecoverySuccessful)
}

func TestSummaryForUnknownSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := newTestService(newFakeStateStore(), newFakeSessionStore())

	summary, err := svc.GetSessionDifficultySummary(ctx, uuid.New())
	assert.Nil(t, summary)
	assert.Equal(t, service.FaultSessionNotFound, faultType(t, err))
}

func TestResetSessionDifficulty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyHard)
	states := newFakeStateStore()
	svc := newTestService(states, newFakeSessionStore(session))

	require.NoError(t, svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyHard))
	weak := domain.PerformanceSample{ContentScore: domain.Score(10)}
	for i := 1; i <= 3; i++ {
		_, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, i, 5, weak)
		require.NoError(t, err)
	}

	level, err := svc.GetDifficultyForDerivedSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DifficultyMedium, level, "sanity: the session moved before the reset")

	require.NoError(t, svc.ResetSessionDifficulty(ctx, session.ID))

	record, err := states.GetRecord(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "hard", record.Current, "reset returns to the declared difficulty")
	assert.Equal(t, 0, record.ChangesCount)
}

func TestStoredStateForAnotherSessionIsQuarantined(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyHard)
	other := activeSession(userID, domain.DifficultyExpert)
	states := newFakeStateStore()
	svc := newTestService(states, newFakeSessionStore(session, other))

	otherState, err := domain.NewSessionDifficultyState(other.ID, userID, domain.DifficultyExpert)
	require.NoError(t, err)
	require.NoError(t, states.Save(ctx, otherState))

	// The row under this session's key carries the other session's state.
	states.records[session.ID] = states.records[other.ID]

	summary, err := svc.GetSessionDifficultySummary(ctx, session.ID)
	require.NotNil(t, summary)
	assert.Equal(t, session.ID, summary.SessionID,
		"the foreign state must never leak into the owning session")
	assert.Equal(t, domain.DifficultyDefault, summary.Current)
	assert.True(t, summary.FallbackUsed)

	var fault *service.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, service.FaultIsolationViolation, fault.Report.Type)
	assert.False(t, fault.Report.RecoveryAttempted)
	assert.True(t, fault.Report.FallbackApplied)
}

func TestDerivedSessionSurvivesCorruptParentState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	parent := activeSession(userID, domain.DifficultyHard)
	states := newFakeStateStore()
	svc := newTestService(states, newFakeSessionStore(parent))

	state, err := domain.NewSessionDifficultyState(parent.ID, userID, domain.DifficultyHard)
	require.NoError(t, err)
	require.NoError(t, states.Save(ctx, state))
	states.records[parent.ID].Snapshot = []byte("{not json")

	// The declared difficulty still seeds the derived session; the caller
	// learns inheritance degraded.
	level, err := svc.GetDifficultyForDerivedSession(ctx, parent.ID)
	assert.Equal(t, domain.DifficultyHard, level)

	var fault *service.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, service.FaultInheritanceError, fault.Report.Type)
	assert.True(t, fault.Report.FallbackApplied)
}

func TestRecordAnswerOnFinalizedSessionLeavesNoCacheEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyMedium)
	states := newFakeStateStore()
	svc := newTestService(states, newFakeSessionStore(session))

	require.NoError(t, svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyMedium))
	final, err := svc.FinalizeSessionDifficulty(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 0, svc.CachedSessions())

	// The rejected answer hydrates the finalized state transiently; it must
	// not stay resident afterwards.
	sample := domain.PerformanceSample{ContentScore: domain.Score(50)}
	level, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, 1, 5, sample)
	assert.Equal(t, final, level)
	assert.Equal(t, service.FaultFinalizationError, faultType(t, err))
	assert.Equal(t, 0, svc.CachedSessions())
}

func TestResetFailureDoesNotResurrectOldState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userID := uuid.New()
	session := activeSession(userID, domain.DifficultyHard)
	states := newFakeStateStore()
	svc := newTestService(states, newFakeSessionStore(session))

	require.NoError(t, svc.InitializeSessionDifficulty(ctx, session.ID, domain.DifficultyHard))
	weak := domain.PerformanceSample{ContentScore: domain.Score(10)}
	for i := 1; i <= 3; i++ {
		_, err := svc.RecordAnswerAndMaybeAdjust(ctx, session.ID, i, 5, weak)
		require.NoError(t, err)
	}

	// The durable row is cleared before the rewrite, so even a failed reset
	// cannot bring the pre-reset trajectory back on the next hydrate.
	states.saveErr = errors.New("connection refused")
	err := svc.ResetSessionDifficulty(ctx, session.ID)
	assert.Equal(t, service.FaultPersistenceFailure, faultType(t, err))

	_, err = states.GetRecord(ctx, session.ID)
	assert.True(t, store.IsNotFoundError(err))
}
