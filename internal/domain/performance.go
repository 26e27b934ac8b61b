package domain

// PerformanceSample carries the per-answer scores produced by the external
// evaluation providers. Each category is 0-100 or absent (nil). Absent means
// the provider produced no signal for that category, typically because the
// answer was incomplete, and is scored conservatively rather than skipped.
type PerformanceSample struct {
	ContentScore      *float64 `json:"content_score,omitempty"`
	BodyLanguageScore *float64 `json:"body_language_score,omitempty"`
	ToneScore         *float64 `json:"tone_score,omitempty"`
}

// Validate checks that every present score is within 0-100.
func (p PerformanceSample) Validate() error {
	for _, score := range []*float64{p.ContentScore, p.BodyLanguageScore, p.ToneScore} {
		if score != nil && (*score < 0 || *score > 100) {
			return ErrInvalidScore
		}
	}
	return nil
}

// Score is a convenience constructor for optional score fields.
func Score(v float64) *float64 {
	return &v
}
