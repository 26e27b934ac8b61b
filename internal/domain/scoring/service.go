package scoring

import (
	"errors"

	"github.com/prepwise/calibrate/internal/domain"
)

// Common errors
var (
	ErrInvalidSample = errors.New("performance sample has out-of-range scores")
	ErrInvalidLevel  = errors.New("current difficulty level is invalid")
)

// Service defines the interface for score and transition calculations.
// Implementations are pure: persistence, caching, and stability policies
// live with the caller.
type Service interface {
	// ComputeSessionScore computes the weighted session score in [0, 100]
	// from the answer samples collected over the session.
	ComputeSessionScore(samples []domain.PerformanceSample) (float64, error)

	// NextDifficulty decides the end-of-session transition. currentScore may
	// be nil when the session produced no usable score; history carries the
	// scores of the user's recent completed sessions, newest first.
	NextDifficulty(
		current domain.DifficultyLevel,
		currentScore *float64,
		history []float64,
	) (domain.DifficultyLevel, error)

	// LiveAdjustment runs the mid-session check after an answered question.
	// samples are the session's answers so far, oldest first. Returns the
	// possibly-adjusted level and whether it changed.
	LiveAdjustment(
		current domain.DifficultyLevel,
		samples []domain.PerformanceSample,
		answered, questionIndex, totalQuestions int,
	) (domain.DifficultyLevel, bool, error)
}

// defaultService is the standard implementation of the Service interface.
type defaultService struct {
	params *Params
}

// NewDefaultService creates a scoring service with default parameters.
func NewDefaultService() Service {
	return &defaultService{params: NewDefaultParams()}
}

// NewServiceWithParams creates a scoring service with custom parameters.
func NewServiceWithParams(params *Params) Service {
	return &defaultService{params: params}
}

// ComputeSessionScore implements the Service interface.
func (s *defaultService) ComputeSessionScore(
	samples []domain.PerformanceSample,
) (float64, error) {
	for _, sample := range samples {
		if err := sample.Validate(); err != nil {
			return 0, ErrInvalidSample
		}
	}
	return computeSessionScore(samples, s.params), nil
}

// NextDifficulty implements the Service interface.
func (s *defaultService) NextDifficulty(
	current domain.DifficultyLevel,
	currentScore *float64,
	history []float64,
) (domain.DifficultyLevel, error) {
	if !current.IsValid() {
		return 0, ErrInvalidLevel
	}
	return nextDifficulty(current, currentScore, history, s.params), nil
}

// LiveAdjustment implements the Service interface.
func (s *defaultService) LiveAdjustment(
	current domain.DifficultyLevel,
	samples []domain.PerformanceSample,
	answered, questionIndex, totalQuestions int,
) (domain.DifficultyLevel, bool, error) {
	if !current.IsValid() {
		return 0, false, ErrInvalidLevel
	}
	for _, sample := range samples {
		if err := sample.Validate(); err != nil {
			return 0, false, ErrInvalidSample
		}
	}

	next, changed := liveAdjustment(
		current,
		samples,
		answered,
		questionIndex,
		totalQuestions,
		s.params,
	)
	return next, changed, nil
}
