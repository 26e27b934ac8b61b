package scoring

import (
	"github.com/prepwise/calibrate/internal/domain"
)

// computeSessionScore produces the weighted session score in [0, 100].
//
// Each category is averaged across the samples that carry it; a category
// absent from every sample is replaced by its conservative synthetic default
// rather than excluded, since missing signal indicates an incomplete answer.
// A quality penalty then shrinks the result when the content score is low:
// below params.SevereContentCutoff the score is multiplied by SeverePenalty,
// below MildContentCutoff by MildPenalty. The result is clamped to [0, 100].
func computeSessionScore(samples []domain.PerformanceSample, params *Params) float64 {
	content := categoryMean(samples, func(s domain.PerformanceSample) *float64 {
		return s.ContentScore
	}, params.DefaultContentScore)
	body := categoryMean(samples, func(s domain.PerformanceSample) *float64 {
		return s.BodyLanguageScore
	}, params.DefaultBodyScore)
	tone := categoryMean(samples, func(s domain.PerformanceSample) *float64 {
		return s.ToneScore
	}, params.DefaultToneScore)

	score := content*params.ContentWeight + body*params.BodyWeight + tone*params.ToneWeight

	// Low content quality discounts the whole session, not just the
	// content share of the average.
	switch {
	case content < params.SevereContentCutoff:
		score *= params.SeverePenalty
	case content < params.MildContentCutoff:
		score *= params.MildPenalty
	}

	return clamp(score, 0, 100)
}

// categoryMean averages the present values of one sample category, falling
// back to def when the category is absent from every sample.
func categoryMean(
	samples []domain.PerformanceSample,
	pick func(domain.PerformanceSample) *float64,
	def float64,
) float64 {
	var sum float64
	var n int
	for _, s := range samples {
		if v := pick(s); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return def
	}
	return sum / float64(n)
}

// nextDifficulty decides the end-of-session transition from the current
// level given the current session score and the scores of recent completed
// sessions.
//
// Decision order:
//  1. No current score: absolute fallback bucketing on the history mean,
//     or hold the current level when there is no history either.
//  2. Exceptional-performance short-circuit on the raw current score,
//     bypassing blending entirely.
//  3. Blend current with the history mean (when 1..HistoryWindow prior
//     scores exist) and map the blended score through the session
//     thresholds; the guarded cut-offs only move the level away from the
//     extremes of the scale.
func nextDifficulty(
	current domain.DifficultyLevel,
	currentScore *float64,
	history []float64,
	params *Params,
) domain.DifficultyLevel {
	if currentScore == nil {
		if len(history) == 0 {
			return current
		}
		return absoluteLevel(mean(history), params)
	}

	score := *currentScore

	// Exceptional performance moves the level immediately.
	if score >= params.Session.ImmediatePromote {
		return current.StepUp()
	}
	if score <= params.Session.ImmediateDemote {
		return current.StepDown()
	}

	blended := score
	if n := len(history); n >= 1 && n <= params.HistoryWindow {
		blended = score*params.BlendCurrentWeight + mean(history)*params.BlendHistoryWeight
	}

	switch {
	case blended >= params.Session.BlendedPromote:
		return current.StepUp()
	case blended <= params.Session.BlendedDemote:
		return current.StepDown()
	case blended >= params.Session.GuardedPromote && current < domain.DifficultyHard:
		return current.StepUp()
	case blended <= params.Session.GuardedDemote && current > domain.DifficultyMedium:
		return current.StepDown()
	default:
		return current
	}
}

// absoluteLevel buckets a score into a level independent of the session's
// current level. Used only when no current-session score is available.
func absoluteLevel(score float64, params *Params) domain.DifficultyLevel {
	switch {
	case score < params.AbsoluteEasyBelow:
		return domain.DifficultyEasy
	case score < params.AbsoluteMediumBelow:
		return domain.DifficultyMedium
	case score < params.AbsoluteHardBelow:
		return domain.DifficultyHard
	default:
		return domain.DifficultyExpert
	}
}

// liveAdjustment runs the lighter mid-session check after an answered
// question. samples are the session's answers so far, oldest first; only
// the content scores of the trailing params.Live.Window answers feed the
// mean, with absent content substituted by the conservative default.
//
// The check is skipped entirely until more than params.Live.MinAnswered
// answers have accumulated and on the final question of the session, so
// the level stays stable near completion. Returns the (possibly
// unchanged) level and whether it moved.
func liveAdjustment(
	current domain.DifficultyLevel,
	samples []domain.PerformanceSample,
	answered int,
	questionIndex int,
	totalQuestions int,
	params *Params,
) (domain.DifficultyLevel, bool) {
	if answered <= params.Live.MinAnswered {
		return current, false
	}
	if totalQuestions > 0 && questionIndex >= totalQuestions {
		return current, false
	}
	if len(samples) == 0 {
		return current, false
	}

	window := samples
	if len(window) > params.Live.Window {
		window = window[len(window)-params.Live.Window:]
	}
	content := make([]float64, 0, len(window))
	for _, s := range window {
		if s.ContentScore != nil {
			content = append(content, *s.ContentScore)
		} else {
			content = append(content, params.DefaultContentScore)
		}
	}
	m := mean(content)

	switch {
	case m >= params.Live.Promote && current < domain.DifficultyExpert:
		return current.StepUp(), true
	case m <= params.Live.Demote && current > domain.DifficultyEasy:
		return current.StepDown(), true
	case m >= params.Live.EasyPromote && current == domain.DifficultyEasy:
		return domain.DifficultyMedium, true
	case m <= params.Live.ExpertDemote && current == domain.DifficultyExpert:
		return domain.DifficultyHard, true
	default:
		return current, false
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
