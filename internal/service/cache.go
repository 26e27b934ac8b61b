package service

import (
	"github.com/google/uuid"
	"github.com/prepwise/calibrate/internal/domain"
)

// sessionEntry is the in-memory working set for one active session: the
// difficulty state plus the transient answer history the mid-session check
// needs. None of the transient fields are persisted; they are rebuilt empty
// after recovery.
type sessionEntry struct {
	state *domain.SessionDifficultyState

	// samples collected so far, in answer order.
	samples []domain.PerformanceSample

	// answered counts answered questions.
	answered int

	// recoveryAttempts bounds automatic recovery for this session.
	recoveryAttempts int

	// cacheOnly is set when a persistence failure degraded the session to
	// cache-only mode; writes keep going to the cache and the store write
	// is retried on the next mutation.
	cacheOnly bool
}

// sessionCache is an unsynchronized map of active session entries.
//
// There is one logical owner per session: all reads and writes for a given
// session originate from the request handling that session, serialized by
// the caller. The cache therefore carries no locking of its own. Entries
// are evicted on finalization or explicit reset.
type sessionCache struct {
	entries map[uuid.UUID]*sessionEntry
}

func newSessionCache() *sessionCache {
	return &sessionCache{entries: make(map[uuid.UUID]*sessionEntry)}
}

func (c *sessionCache) get(sessionID uuid.UUID) (*sessionEntry, bool) {
	entry, ok := c.entries[sessionID]
	return entry, ok
}

func (c *sessionCache) put(sessionID uuid.UUID, entry *sessionEntry) {
	c.entries[sessionID] = entry
}

func (c *sessionCache) evict(sessionID uuid.UUID) {
	delete(c.entries, sessionID)
}

func (c *sessionCache) len() int {
	return len(c.entries)
}
