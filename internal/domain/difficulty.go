package domain

import (
	"errors"
	"fmt"
)

// DifficultyLevel is the ordinal question-hardness tier for a session.
// Levels are totally ordered; normal transitions move exactly one step.
type DifficultyLevel int

// Difficulty levels in ascending order of hardness.
const (
	DifficultyEasy DifficultyLevel = iota + 1
	DifficultyMedium
	DifficultyHard
	DifficultyExpert
)

// DifficultyDefault is the safe level used whenever no better signal exists
// (fresh sessions without a declared difficulty, recovery fallbacks, repairs).
const DifficultyDefault = DifficultyMedium

// ErrInvalidDifficultyLevel is returned when a difficulty value is outside
// the known easy..expert range or an unknown string label.
var ErrInvalidDifficultyLevel = errors.New("invalid difficulty level")

// String returns the canonical lowercase label for the level.
// Unknown values render as "unknown" rather than panicking, since levels
// may arrive from corrupted storage.
func (d DifficultyLevel) String() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	case DifficultyHard:
		return "hard"
	case DifficultyExpert:
		return "expert"
	default:
		return "unknown"
	}
}

// IsValid reports whether the level is one of the four known tiers.
func (d DifficultyLevel) IsValid() bool {
	return d >= DifficultyEasy && d <= DifficultyExpert
}

// ParseDifficultyLevel converts a stored label back into a DifficultyLevel.
// Returns ErrInvalidDifficultyLevel for anything it does not recognize.
func ParseDifficultyLevel(s string) (DifficultyLevel, error) {
	switch s {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	case "expert":
		return DifficultyExpert, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDifficultyLevel, s)
	}
}

// StepUp returns the next harder level, clamped at expert.
func (d DifficultyLevel) StepUp() DifficultyLevel {
	if d >= DifficultyExpert {
		return DifficultyExpert
	}
	return d + 1
}

// StepDown returns the next easier level, clamped at easy.
func (d DifficultyLevel) StepDown() DifficultyLevel {
	if d <= DifficultyEasy {
		return DifficultyEasy
	}
	return d - 1
}

// StepsTo returns the signed distance from d to other in level steps.
func (d DifficultyLevel) StepsTo(other DifficultyLevel) int {
	return int(other) - int(d)
}

// MarshalJSON encodes the level as its string label so snapshots stay
// readable and survive reordering of the Go constants.
func (d DifficultyLevel) MarshalJSON() ([]byte, error) {
	if !d.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDifficultyLevel, int(d))
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a string label produced by MarshalJSON.
func (d *DifficultyLevel) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrInvalidDifficultyLevel, string(data))
	}
	parsed, err := ParseDifficultyLevel(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
