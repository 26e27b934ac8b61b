package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Difficulty DifficultyConfig `mapstructure:"difficulty" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// DifficultyConfig tunes the adaptive-difficulty engine. The end-of-session
// and mid-session threshold sets were tuned independently and stay
// independently configurable. Zero values fall back to the engine defaults.
type DifficultyConfig struct {
	// End-of-session thresholds.
	SessionImmediatePromote float64 `mapstructure:"session_immediate_promote" validate:"gte=0,lte=100"`
	SessionImmediateDemote  float64 `mapstructure:"session_immediate_demote"  validate:"gte=0,lte=100"`
	SessionBlendedPromote   float64 `mapstructure:"session_blended_promote"   validate:"gte=0,lte=100"`
	SessionBlendedDemote    float64 `mapstructure:"session_blended_demote"    validate:"gte=0,lte=100"`
	SessionGuardedPromote   float64 `mapstructure:"session_guarded_promote"   validate:"gte=0,lte=100"`
	SessionGuardedDemote    float64 `mapstructure:"session_guarded_demote"    validate:"gte=0,lte=100"`

	// Mid-session thresholds.
	LivePromote      float64 `mapstructure:"live_promote"       validate:"gte=0,lte=100"`
	LiveDemote       float64 `mapstructure:"live_demote"        validate:"gte=0,lte=100"`
	LiveEasyPromote  float64 `mapstructure:"live_easy_promote"  validate:"gte=0,lte=100"`
	LiveExpertDemote float64 `mapstructure:"live_expert_demote" validate:"gte=0,lte=100"`

	// PersistAttempts bounds synchronous store writes before the session
	// degrades to cache-only mode.
	PersistAttempts int `mapstructure:"persist_attempts" validate:"required,gte=1,lte=5"`

	// MaxRecoveryAttempts bounds automatic per-session recovery before the
	// deterministic fallback applies without re-running the chain.
	MaxRecoveryAttempts int `mapstructure:"max_recovery_attempts" validate:"required,gte=1,lte=10"`

	// EnableStabilityGuard wires the anti-oscillation policy into the
	// end-of-session transition path. Off by default.
	EnableStabilityGuard bool `mapstructure:"enable_stability_guard"`
}
