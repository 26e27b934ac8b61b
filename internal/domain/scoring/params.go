package scoring

// SessionThresholds are the score cut-offs used by the end-of-session
// transition engine. They were tuned independently from LiveThresholds and
// the two sets are deliberately kept separate; unifying them would silently
// change product behavior.
type SessionThresholds struct {
	// Exceptional-performance short-circuits, applied to the raw current
	// score before any blending with history.
	ImmediatePromote float64
	ImmediateDemote  float64

	// Cut-offs applied to the blended score.
	BlendedPromote float64
	BlendedDemote  float64

	// Softer cut-offs that only apply away from the extremes: GuardedPromote
	// steps up unless already in the top two levels, GuardedDemote steps
	// down unless already in the bottom two.
	GuardedPromote float64
	GuardedDemote  float64
}

// LiveThresholds are the cut-offs for the lighter mid-session check that
// runs after each answered question.
type LiveThresholds struct {
	Promote float64 // mean recent content score to step up
	Demote  float64 // mean recent content score to step down

	// Edge rules at the extremes of the scale.
	EasyPromote  float64 // promote easy->medium at this mean while at easy
	ExpertDemote float64 // demote expert->hard at this mean while at expert

	// Window is how many trailing content scores feed the mean.
	Window int

	// MinAnswered is how many answered questions must precede the check;
	// it first runs on answer MinAnswered+1.
	MinAnswered int
}

// Params defines all configurable parameters for score computation and
// difficulty transitions.
type Params struct {
	// Weighted-average category weights; they sum to 1.
	ContentWeight float64
	BodyWeight    float64
	ToneWeight    float64

	// Conservative synthetic defaults substituted for absent categories.
	// Missing signal indicates an incomplete answer, so absence scores low
	// instead of being excluded from the average.
	DefaultContentScore float64
	DefaultBodyScore    float64
	DefaultToneScore    float64

	// Quality penalty: the weighted score is multiplied by SeverePenalty
	// when content < SevereContentCutoff, else by MildPenalty when content
	// < MildContentCutoff.
	SevereContentCutoff float64
	SeverePenalty       float64
	MildContentCutoff   float64
	MildPenalty         float64

	// History blending for the end-of-session decision: applies when 1 to
	// HistoryWindow prior completed sessions exist.
	BlendCurrentWeight float64
	BlendHistoryWeight float64
	HistoryWindow      int

	Session SessionThresholds
	Live    LiveThresholds

	// Absolute fallback buckets, used when no current-session score exists.
	// Scores below AbsoluteEasyBelow map to easy, below AbsoluteMediumBelow
	// to medium, below AbsoluteHardBelow to hard, else expert.
	AbsoluteEasyBelow   float64
	AbsoluteMediumBelow float64
	AbsoluteHardBelow   float64
}

// ParamsConfig allows overriding the default parameters when creating a new
// Params instance. Zero values keep the default.
type ParamsConfig struct {
	SessionImmediatePromote float64
	SessionImmediateDemote  float64
	SessionBlendedPromote   float64
	SessionBlendedDemote    float64
	SessionGuardedPromote   float64
	SessionGuardedDemote    float64

	LivePromote      float64
	LiveDemote       float64
	LiveEasyPromote  float64
	LiveExpertDemote float64
	LiveWindow       int
	LiveMinAnswered  int
}

// NewDefaultParams creates a new Params instance with the production values.
func NewDefaultParams() *Params {
	return &Params{
		ContentWeight: 0.5,
		BodyWeight:    0.3,
		ToneWeight:    0.2,

		DefaultContentScore: 30,
		DefaultBodyScore:    40,
		DefaultToneScore:    40,

		SevereContentCutoff: 30,
		SeverePenalty:       0.8,
		MildContentCutoff:   40,
		MildPenalty:         0.9,

		BlendCurrentWeight: 0.7,
		BlendHistoryWeight: 0.3,
		HistoryWindow:      3,

		Session: SessionThresholds{
			ImmediatePromote: 75,
			ImmediateDemote:  35,
			BlendedPromote:   80,
			BlendedDemote:    35,
			GuardedPromote:   70,
			GuardedDemote:    45,
		},

		Live: LiveThresholds{
			Promote:      85,
			Demote:       25,
			EasyPromote:  75,
			ExpertDemote: 35,
			Window:       3,
			MinAnswered:  2,
		},

		AbsoluteEasyBelow:   30,
		AbsoluteMediumBelow: 50,
		AbsoluteHardBelow:   70,
	}
}

// NewParams creates a new Params instance with custom threshold overrides.
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()

	if config.SessionImmediatePromote > 0 {
		params.Session.ImmediatePromote = config.SessionImmediatePromote
	}
	if config.SessionImmediateDemote > 0 {
		params.Session.ImmediateDemote = config.SessionImmediateDemote
	}
	if config.SessionBlendedPromote > 0 {
		params.Session.BlendedPromote = config.SessionBlendedPromote
	}
	if config.SessionBlendedDemote > 0 {
		params.Session.BlendedDemote = config.SessionBlendedDemote
	}
	if config.SessionGuardedPromote > 0 {
		params.Session.GuardedPromote = config.SessionGuardedPromote
	}
	if config.SessionGuardedDemote > 0 {
		params.Session.GuardedDemote = config.SessionGuardedDemote
	}

	if config.LivePromote > 0 {
		params.Live.Promote = config.LivePromote
	}
	if config.LiveDemote > 0 {
		params.Live.Demote = config.LiveDemote
	}
	if config.LiveEasyPromote > 0 {
		params.Live.EasyPromote = config.LiveEasyPromote
	}
	if config.LiveExpertDemote > 0 {
		params.Live.ExpertDemote = config.LiveExpertDemote
	}
	if config.LiveWindow > 0 {
		params.Live.Window = config.LiveWindow
	}
	if config.LiveMinAnswered > 0 {
		params.Live.MinAnswered = config.LiveMinAnswered
	}

	return params
}
