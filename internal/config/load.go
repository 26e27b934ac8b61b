package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables (prefix CALIBRATE_, nested keys joined
// with underscores, e.g. CALIBRATE_DATABASE_URL) take precedence over values
// from the config file, which takes precedence over defaults.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults. Difficulty thresholds default to zero, which keeps the
	// engine's built-in values.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	// Registered with an empty default so AutomaticEnv can bind it even
	// without a config file; validation rejects the empty value.
	v.SetDefault("database.url", "")
	for _, key := range []string{
		"session_immediate_promote", "session_immediate_demote",
		"session_blended_promote", "session_blended_demote",
		"session_guarded_promote", "session_guarded_demote",
		"live_promote", "live_demote", "live_easy_promote", "live_expert_demote",
	} {
		v.SetDefault("difficulty."+key, 0)
	}
	v.SetDefault("difficulty.persist_attempts", 2)
	v.SetDefault("difficulty.max_recovery_attempts", 3)
	v.SetDefault("difficulty.enable_stability_guard", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CALIBRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything can come from the
		// environment.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
