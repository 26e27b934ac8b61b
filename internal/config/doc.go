// Package config handles loading and validating application configuration
// from environment variables and optional config files.
package config
