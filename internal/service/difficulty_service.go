package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prepwise/calibrate/internal/config"
	"github.com/prepwise/calibrate/internal/domain"
	"github.com/prepwise/calibrate/internal/domain/scoring"
	"github.com/prepwise/calibrate/internal/platform/logger"
	"github.com/prepwise/calibrate/internal/service/recovery"
	"github.com/prepwise/calibrate/internal/store"
)

// persistBackoff is the pause between store write attempts.
const persistBackoff = 100 * time.Millisecond

// Summary is the read model returned to collaborators: the difficulty
// trajectory of one session without the internal working state.
type Summary struct {
	SessionID    uuid.UUID                 `json:"session_id"`
	Initial      domain.DifficultyLevel    `json:"initial_difficulty"`
	Current      domain.DifficultyLevel    `json:"current_difficulty"`
	Final        *domain.DifficultyLevel   `json:"final_difficulty,omitempty"`
	IsFinalized  bool                      `json:"is_finalized"`
	FallbackUsed bool                      `json:"fallback_used,omitempty"`
	Changes      []domain.DifficultyChange `json:"changes"`
}

// DifficultyService owns the adaptive-difficulty state machine: it tracks
// per-session difficulty, adjusts it from performance signals, persists it
// redundantly, and propagates final difficulty into derived sessions.
//
// Concurrency contract: at most one in-flight mutation per session,
// serialized by the caller. The service performs no locking of its own.
type DifficultyService struct {
	stateStore   store.SessionStateStore
	sessionStore store.SessionStore
	scoring      scoring.Service
	recovery     *recovery.Engine
	cache        *sessionCache
	logger       *slog.Logger

	// recoveryCounts bounds automatic recovery per session for the process
	// lifetime; it survives cache eviction on purpose.
	recoveryCounts map[uuid.UUID]int

	persistAttempts     int
	maxRecoveryAttempts int
	stability           scoring.StabilityPolicy

	// now is split out so tests can pin time.
	now func() time.Time
}

// Option configures a DifficultyService.
type Option func(*DifficultyService)

// WithStabilityPolicy installs the optional anti-oscillation guard
// consulted before an end-of-session transition is applied.
func WithStabilityPolicy(policy scoring.StabilityPolicy) Option {
	return func(s *DifficultyService) {
		s.stability = policy
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *DifficultyService) {
		s.now = now
	}
}

// NewDifficultyService creates the difficulty service.
// If log is nil, a default logger will be used.
func NewDifficultyService(
	stateStore store.SessionStateStore,
	sessionStore store.SessionStore,
	scoringService scoring.Service,
	recoveryEngine *recovery.Engine,
	cfg config.DifficultyConfig,
	log *slog.Logger,
	opts ...Option,
) *DifficultyService {
	if stateStore == nil {
		panic("stateStore cannot be nil")
	}
	if sessionStore == nil {
		panic("sessionStore cannot be nil")
	}
	if scoringService == nil {
		panic("scoringService cannot be nil")
	}
	if recoveryEngine == nil {
		panic("recoveryEngine cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	persistAttempts := cfg.PersistAttempts
	if persistAttempts < 1 {
		persistAttempts = 2
	}
	maxRecoveryAttempts := cfg.MaxRecoveryAttempts
	if maxRecoveryAttempts < 1 {
		maxRecoveryAttempts = 3
	}

	s := &DifficultyService{
		stateStore:          stateStore,
		sessionStore:        sessionStore,
		scoring:             scoringService,
		recovery:            recoveryEngine,
		cache:               newSessionCache(),
		recoveryCounts:      make(map[uuid.UUID]int),
		logger:              log.With(slog.String("component", "difficulty_service")),
		persistAttempts:     persistAttempts,
		maxRecoveryAttempts: maxRecoveryAttempts,
		now:                 func() time.Time { return time.Now().UTC() },
	}

	if cfg.EnableStabilityGuard {
		s.stability = scoring.AntiOscillationPolicy{}
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// InitializeSessionDifficulty creates the difficulty state for a freshly
// started session at the given level (user-chosen or inherited).
//
// A persistence failure does not undo the cache write: the session
// continues in cache-only mode and the fault is returned for
// retry/alerting.
func (s *DifficultyService) InitializeSessionDifficulty(
	ctx context.Context,
	sessionID uuid.UUID,
	initial domain.DifficultyLevel,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !initial.IsValid() {
		return newFault(FaultInvalidDifficulty,
			"initial difficulty is not a known level", domain.ErrInvalidDifficultyLevel)
	}

	session, err := s.sessionStore.GetByID(ctx, sessionID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return newFault(FaultSessionNotFound, "session does not exist", err).
				withActions("verify the session id")
		}
		return newFault(FaultPersistenceFailure, "failed to load session", err)
	}

	state, err := domain.NewSessionDifficultyState(sessionID, session.UserID, initial)
	if err != nil {
		return newFault(FaultValidationError, "could not build initial state", err)
	}

	entry := &sessionEntry{state: state}
	s.cache.put(sessionID, entry)

	if fault := s.persist(ctx, entry); fault != nil {
		return fault
	}

	log.Debug("initialized session difficulty",
		slog.String("session_id", sessionID.String()),
		slog.String("initial", initial.String()))
	return nil
}

// RecordAnswerAndMaybeAdjust ingests one answer's performance sample and
// runs the mid-session adjustment check. questionIndex is 1-based.
// Returns the session's current difficulty after the check; a non-nil
// error never invalidates the returned level — at worst the session runs
// on the last-good difficulty in cache-only mode.
func (s *DifficultyService) RecordAnswerAndMaybeAdjust(
	ctx context.Context,
	sessionID uuid.UUID,
	questionIndex int,
	totalQuestions int,
	sample domain.PerformanceSample,
) (domain.DifficultyLevel, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := sample.Validate(); err != nil {
		return domain.DifficultyDefault, newFault(FaultValidationError,
			"performance sample has out-of-range scores", err)
	}

	entry, loadFault := s.loadEntry(ctx, sessionID)
	if entry == nil {
		return domain.DifficultyDefault, loadFault
	}

	if entry.state.IsFinalized {
		// Finalized states never stay resident; this hydrate was transient.
		current := entry.state.Current
		s.cache.evict(sessionID)
		return current, newFault(FaultFinalizationError,
			"cannot record answers on a finalized session", domain.ErrStateFinalized)
	}

	entry.samples = append(entry.samples, sample)
	entry.answered++

	next, changed, err := s.scoring.LiveAdjustment(
		entry.state.Current,
		entry.samples,
		entry.answered,
		questionIndex,
		totalQuestions,
	)
	if err != nil {
		return entry.state.Current, newFault(FaultValidationError,
			"live adjustment rejected inputs", err)
	}

	if changed {
		if err := entry.state.ApplyChange(
			next, domain.ChangeReasonLiveAdjustment, questionIndex, s.now(),
		); err != nil {
			return entry.state.Current, newFault(FaultStateCorruption,
				"could not apply live adjustment", err)
		}
		log.Info("adjusted difficulty mid-session",
			slog.String("session_id", sessionID.String()),
			slog.Int("question_index", questionIndex),
			slog.String("to", next.String()))
	}

	// Cache and durable store are updated synchronously before the next
	// question; a failed write degrades to cache-only mode.
	if fault := s.persist(ctx, entry); fault != nil {
		return entry.state.Current, fault
	}

	// A fault incurred while loading the state (e.g. a recovery pass) is
	// reported even though the answer landed.
	if loadFault != nil {
		return entry.state.Current, loadFault
	}
	return entry.state.Current, nil
}

// FinalizeSessionDifficulty runs the end-of-session transition and freezes
// the session's difficulty. Finalizing an already-finalized session is
// idempotent: it returns the frozen level and records no new change.
func (s *DifficultyService) FinalizeSessionDifficulty(
	ctx context.Context,
	sessionID uuid.UUID,
) (domain.DifficultyLevel, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	entry, loadFault := s.loadEntry(ctx, sessionID)
	if entry == nil {
		return domain.DifficultyDefault, loadFault
	}

	if entry.state.IsFinalized {
		final := *entry.state.Final
		s.cache.evict(sessionID)
		if loadFault != nil {
			return final, loadFault
		}
		return final, nil
	}

	score, err := s.scoring.ComputeSessionScore(entry.samples)
	if err != nil {
		return entry.state.Current, newFault(FaultValidationError,
			"session score computation failed", err)
	}

	history := s.previousScores(ctx, entry.state.UserID)

	next, err := s.scoring.NextDifficulty(entry.state.Current, &score, history)
	if err != nil {
		return entry.state.Current, newFault(FaultInvalidDifficulty,
			"transition decision failed", err)
	}

	if next != entry.state.Current && s.stability != nil {
		if !s.stability.Allow(s.recentOutcomes(ctx, entry.state.UserID)) {
			log.Info("stability guard held difficulty steady",
				slog.String("session_id", sessionID.String()))
			next = entry.state.Current
		}
	}

	now := s.now()
	if next != entry.state.Current {
		if err := entry.state.ApplyChange(
			next, domain.ChangeReasonSessionScore, 0, now,
		); err != nil {
			return entry.state.Current, newFault(FaultStateCorruption,
				"could not apply end-of-session transition", err)
		}
	}

	final := entry.state.Finalize(now)

	if fault := s.persist(ctx, entry); fault != nil {
		// Keep the entry cached so the finalized state is not lost; the
		// next summary or derived-session read retries the write.
		return final, fault
	}

	s.cache.evict(sessionID)

	log.Info("finalized session difficulty",
		slog.String("session_id", sessionID.String()),
		slog.Float64("score", score),
		slog.String("final", final.String()))
	if loadFault != nil {
		return final, loadFault
	}
	return final, nil
}

// GetDifficultyForDerivedSession resolves the starting difficulty for a
// practice session derived from parentID: the parent's final difficulty if
// finalized, else its current difficulty, else the parent's declared
// difficulty, else the safe default. Adaptive progress carries across
// attempts precisely because the parent's *initial* difficulty is never
// used here.
func (s *DifficultyService) GetDifficultyForDerivedSession(
	ctx context.Context,
	parentID uuid.UUID,
) (domain.DifficultyLevel, error) {
	if entry, ok := s.cache.get(parentID); ok {
		return levelFromState(entry.state), nil
	}

	state, err := s.stateStore.Get(ctx, parentID)
	if err == nil {
		return levelFromState(state), nil
	}
	if !store.IsNotFoundError(err) && !errors.Is(err, store.ErrInvalidEntity) {
		return domain.DifficultyDefault, newFault(FaultPersistenceFailure,
			"failed to load parent difficulty state", err)
	}

	// A corrupt parent snapshot still yields a usable starting level from
	// the declared difficulty, but the caller learns inheritance degraded.
	var inheritanceFault *Fault
	if errors.Is(err, store.ErrInvalidEntity) {
		inheritanceFault = newFault(FaultInheritanceError,
			"parent difficulty state is unusable; inheriting the declared difficulty", err).
			withRecovery(false, false, true).
			withActions("run a consistency repair for the parent session")
	}

	session, err := s.sessionStore.GetByID(ctx, parentID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return domain.DifficultyDefault, newFault(FaultSessionNotFound,
				"parent session does not exist", err).
				withActions("verify the parent session id")
		}
		return domain.DifficultyDefault, newFault(FaultPersistenceFailure,
			"failed to load parent session", err)
	}

	level := domain.DifficultyDefault
	if session.Difficulty.IsValid() {
		level = session.Difficulty
	}
	if inheritanceFault != nil {
		return level, inheritanceFault
	}
	return level, nil
}

// GetSessionDifficultySummary returns the session's difficulty trajectory.
func (s *DifficultyService) GetSessionDifficultySummary(
	ctx context.Context,
	sessionID uuid.UUID,
) (*Summary, error) {
	entry, fault := s.loadEntry(ctx, sessionID)
	if entry == nil {
		return nil, fault
	}

	state := entry.state.Clone()
	summary := &Summary{
		SessionID:    state.SessionID,
		Initial:      state.Initial,
		Current:      state.Current,
		Final:        state.Final,
		IsFinalized:  state.IsFinalized,
		FallbackUsed: state.FallbackUsed,
		Changes:      state.Changes,
	}
	if summary.Changes == nil {
		summary.Changes = []domain.DifficultyChange{}
	}

	// Finalized sessions do not stay cached; summaries hydrate them
	// transiently.
	if state.IsFinalized {
		s.cache.evict(sessionID)
	}

	if fault != nil {
		return summary, fault
	}
	return summary, nil
}

// ResetSessionDifficulty discards the session's difficulty state and
// rewrites a fresh one at the session's declared difficulty.
func (s *DifficultyService) ResetSessionDifficulty(
	ctx context.Context,
	sessionID uuid.UUID,
) error {
	session, err := s.sessionStore.GetByID(ctx, sessionID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return newFault(FaultSessionNotFound, "session does not exist", err)
		}
		return newFault(FaultPersistenceFailure, "failed to load session", err)
	}

	s.cache.evict(sessionID)

	// Drop the durable row first so a failed rewrite cannot resurrect the
	// pre-reset state on the next hydrate.
	if err := s.stateStore.Delete(ctx, sessionID); err != nil && !store.IsNotFoundError(err) {
		return newFault(FaultPersistenceFailure,
			"failed to clear the previous difficulty state", err)
	}

	initial := session.Difficulty
	if !initial.IsValid() {
		initial = domain.DifficultyDefault
	}
	state, err := domain.NewSessionDifficultyState(sessionID, session.UserID, initial)
	if err != nil {
		return newFault(FaultValidationError, "could not build reset state", err)
	}

	entry := &sessionEntry{state: state}
	s.cache.put(sessionID, entry)
	if fault := s.persist(ctx, entry); fault != nil {
		return fault
	}
	return nil
}

// RecoverSession runs the recovery chain explicitly and refreshes the
// cache with the result.
func (s *DifficultyService) RecoverSession(
	ctx context.Context,
	sessionID uuid.UUID,
) (*recovery.Outcome, error) {
	state, outcome := s.recovery.Recover(ctx, sessionID)

	entry := &sessionEntry{state: state, recoveryAttempts: 1}
	if state.IsFinalized {
		s.cache.evict(sessionID)
	} else {
		s.cache.put(sessionID, entry)
	}

	return outcome, nil
}

// CachedSessions reports how many sessions currently sit in the cache.
func (s *DifficultyService) CachedSessions() int {
	return s.cache.len()
}

// loadEntry is the read-through path: cache first, then the durable
// snapshot, then recovery. It either returns a usable entry (possibly with
// a fault describing what it took to get one) or, past the recovery
// budget, a deterministic fallback entry. The returned entry is nil only
// for unknown sessions.
func (s *DifficultyService) loadEntry(
	ctx context.Context,
	sessionID uuid.UUID,
) (*sessionEntry, *Fault) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var cacheFault *Fault
	if entry, ok := s.cache.get(sessionID); ok {
		if entry.state.SessionID == sessionID {
			return entry, nil
		}
		// The cache held another session's state under this key. Evict it
		// and force a store reload; the owning session keeps going.
		s.cache.evict(sessionID)
		log.Warn("evicted foreign cache entry",
			slog.String("session_id", sessionID.String()),
			slog.String("entry_session_id", entry.state.SessionID.String()))
		cacheFault = newFault(FaultCacheInconsistency,
			"cache held another session's state; reloaded from the store", nil).
			withRecovery(true, true, false)
	}

	state, err := s.stateStore.Get(ctx, sessionID)
	if err == nil {
		if state.SessionID == sessionID {
			entry := &sessionEntry{state: state}
			s.cache.put(sessionID, entry)
			return entry, cacheFault
		}

		// The durable row answers to this key but carries another
		// session's state. Not auto-recoverable: the session proceeds on
		// the safe default and the row is left for an explicit repair.
		log.Error("stored difficulty state belongs to another session",
			slog.String("session_id", sessionID.String()),
			slog.String("state_session_id", state.SessionID.String()))
		return s.fallbackEntry(sessionID), newFault(FaultIsolationViolation,
			"stored difficulty state belongs to another session", nil).
			withRecovery(false, false, true).
			withActions("run a consistency repair for this session")
	}

	if store.IsNotFoundError(err) {
		// No difficulty record at all. Distinguish an unknown session from
		// lost state: only the latter is recoverable.
		if _, sErr := s.sessionStore.GetByID(ctx, sessionID); sErr != nil {
			if store.IsNotFoundError(sErr) {
				return nil, newFault(FaultSessionNotFound,
					"session does not exist", sErr).
					withActions("verify the session id")
			}
			return nil, newFault(FaultPersistenceFailure,
				"failed to load session", sErr)
		}
	}

	faultType := FaultStateCorruption
	if !store.IsNotFoundError(err) && !errors.Is(err, store.ErrInvalidEntity) {
		faultType = FaultPersistenceFailure
	}

	if faultType.autoRecoverable() && s.recoveryCounts[sessionID] < s.maxRecoveryAttempts {
		log.Warn("difficulty state unavailable, entering recovery",
			slog.String("session_id", sessionID.String()),
			slog.String("error", err.Error()))

		s.recoveryCounts[sessionID]++
		state, outcome := s.recovery.Recover(ctx, sessionID)
		entry := &sessionEntry{state: state, recoveryAttempts: s.recoveryCounts[sessionID]}
		s.cache.put(sessionID, entry)

		return entry, newFault(faultType,
			"difficulty state was rebuilt by recovery", err).
			withRecovery(true, true, outcome.FallbackUsed)
	}

	// Past the per-session recovery budget the deterministic fallback
	// applies directly, without re-running the chain.
	log.Error("recovery budget exhausted, running on fallback difficulty",
		slog.String("session_id", sessionID.String()))
	return s.fallbackEntry(sessionID), newFault(FaultRecoveryFailure,
		"recovery budget exhausted; session runs at the default difficulty", err).
		withRecovery(true, false, true).
		withActions("contact support if difficulty looks wrong")
}

// fallbackEntry caches a cache-only default-difficulty entry so the owning
// session can always proceed. The session id stands in as owner; the real
// owner returns with the next successful store load.
func (s *DifficultyService) fallbackEntry(sessionID uuid.UUID) *sessionEntry {
	state := &domain.SessionDifficultyState{
		SessionID:    sessionID,
		UserID:       sessionID,
		Initial:      domain.DifficultyDefault,
		Current:      domain.DifficultyDefault,
		FallbackUsed: true,
		LastUpdated:  s.now(),
	}
	entry := &sessionEntry{state: state, cacheOnly: true}
	s.cache.put(sessionID, entry)
	return entry
}

// persist writes the entry's state through to the durable store with
// bounded retry. On failure the entry is flagged cache-only and a
// persistence fault is returned; the caller's session keeps running.
func (s *DifficultyService) persist(ctx context.Context, entry *sessionEntry) *Fault {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := WithRetry(ctx, s.persistAttempts, persistBackoff, func(ctx context.Context) error {
		return s.stateStore.Save(ctx, entry.state)
	})
	if err != nil {
		entry.cacheOnly = true
		log.Error("failed to persist difficulty state, continuing cache-only",
			slog.String("session_id", entry.state.SessionID.String()),
			slog.String("error", err.Error()))
		return newFault(FaultPersistenceFailure,
			"difficulty state could not be persisted; session continues in cache-only mode", err).
			withRecovery(true, false, true).
			withActions("retry the operation", "check database connectivity")
	}

	if entry.cacheOnly {
		entry.cacheOnly = false
		log.Info("cache-only session difficulty state persisted",
			slog.String("session_id", entry.state.SessionID.String()))
	}
	return nil
}

// previousScores collects the scores of the user's recent completed
// sessions for history blending. Best-effort: a read failure just means
// the transition decides on the current score alone.
func (s *DifficultyService) previousScores(ctx context.Context, userID uuid.UUID) []float64 {
	sessions, err := s.sessionStore.ListRecentCompleted(ctx, userID, 3)
	if err != nil {
		s.logger.Warn("could not load session history for blending",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
		return nil
	}

	var scores []float64
	for _, session := range sessions {
		if session.Score != nil {
			scores = append(scores, *session.Score)
		}
	}
	return scores
}

// recentOutcomes summarizes the user's recent completed sessions for the
// stability guard.
func (s *DifficultyService) recentOutcomes(
	ctx context.Context,
	userID uuid.UUID,
) []scoring.SessionOutcome {
	records, err := s.stateStore.ListRecordsByUser(ctx, userID, 3)
	if err != nil {
		return nil
	}

	var outcomes []scoring.SessionOutcome
	for _, record := range records {
		if !record.IsFinalized || record.Final == nil {
			continue
		}
		final, err := domain.ParseDifficultyLevel(*record.Final)
		if err != nil {
			continue
		}
		outcomes = append(outcomes, scoring.SessionOutcome{
			Final:   final,
			Changed: record.ChangesCount > 0,
		})
	}
	return outcomes
}

// levelFromState applies the inheritance chain to a loaded state.
func levelFromState(state *domain.SessionDifficultyState) domain.DifficultyLevel {
	if state.IsFinalized && state.Final != nil {
		return *state.Final
	}
	if state.Current.IsValid() {
		return state.Current
	}
	return domain.DifficultyDefault
}
