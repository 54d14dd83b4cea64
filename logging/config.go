package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Environment types
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// GetConfigFromEnv creates a logger configuration based on environment variables
func GetConfigFromEnv() Config {
	return ApplyEnv(DefaultConfig)
}

// ApplyEnv overlays LOG_LEVEL, LOG_FORMAT, ENVIRONMENT and LOG_ADD_SOURCE onto config
func ApplyEnv(config Config) Config {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = strings.ToLower(level)
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Format = strings.ToLower(format)
	}

	envSet := false
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Environment = strings.ToLower(env)
		envSet = true
	}

	if addSource := os.Getenv("LOG_ADD_SOURCE"); addSource != "" {
		config.AddSource = strings.ToLower(addSource) == "true"
	}

	// An explicit format or level from the environment always wins over
	// the environment profile below.
	if !envSet {
		return config
	}

	switch config.Environment {
	case EnvProduction:
		if os.Getenv("LOG_FORMAT") == "" {
			config.Format = "json"
		}
		if os.Getenv("LOG_LEVEL") == "" {
			config.Level = "info"
		}
		config.AddSource = false

	case EnvTest:
		if os.Getenv("LOG_FORMAT") == "" {
			config.Format = "text"
		}
		if os.Getenv("LOG_LEVEL") == "" {
			config.Level = "debug"
		}
		config.AddSource = false

	case EnvDevelopment:
		if os.Getenv("LOG_FORMAT") == "" {
			config.Format = "text"
		}
		if os.Getenv("LOG_LEVEL") == "" {
			config.Level = "debug"
		}
		config.AddSource = true
	}

	return config
}

// CustomLevel defines a custom log level between existing ones
type CustomLevel slog.Level

const (
	LevelTrace CustomLevel = CustomLevel(slog.LevelDebug - 4)
)

// String returns the string representation of the custom level
func (l CustomLevel) String() string {
	if l == LevelTrace {
		return "TRACE"
	}
	return slog.Level(l).String()
}
