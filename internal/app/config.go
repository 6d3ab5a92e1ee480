package app

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GridPaths    []string // files, directories or globs of .hcl files
	SettingsPath string   // optional YAML settings file

	LogFormat   string
	LogLevel    string
	HistoryPath string

	ShareVisited bool
	MaxDepth     int
	ExprBudget   time.Duration
	Port         int
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.GridPaths) == 0 {
		return nil, errors.New("GridPaths is a required configuration field and cannot be empty")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "text", "json", "auto":
	default:
		return fmt.Errorf("invalid log format %q: must be 'text', 'json' or 'auto'", c.LogFormat)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("invalid max depth %d: must not be negative", c.MaxDepth)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}
