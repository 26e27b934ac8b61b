package scoring

import (
	"github.com/prepwise/calibrate/internal/domain"
)

// SessionOutcome summarizes one recent completed session for the stability
// policy: the level it ended at and whether the session changed difficulty
// at all.
type SessionOutcome struct {
	Final   domain.DifficultyLevel
	Changed bool
}

// StabilityPolicy decides whether an end-of-session transition may be
// applied given the user's recent session outcomes, newest first. It exists
// to dampen oscillation; the default configuration runs without one.
type StabilityPolicy interface {
	Allow(recent []SessionOutcome) bool
}

// AntiOscillationPolicy blocks a transition when the user's difficulty has
// been churning: either both of the last two sessions already changed the
// level, or the last three sessions ended at three distinct levels.
type AntiOscillationPolicy struct{}

// Allow implements StabilityPolicy.
func (AntiOscillationPolicy) Allow(recent []SessionOutcome) bool {
	if len(recent) >= 2 && recent[0].Changed && recent[1].Changed {
		return false
	}

	if len(recent) >= 3 {
		levels := map[domain.DifficultyLevel]struct{}{}
		for _, outcome := range recent[:3] {
			levels[outcome.Final] = struct{}{}
		}
		if len(levels) == 3 {
			return false
		}
	}

	return true
}
