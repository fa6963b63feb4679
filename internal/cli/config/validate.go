package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Compiler.Command) == "" {
		return fmt.Errorf("compiler.command is required")
	}
	if c.Compiler.Timeout < 0 {
		return fmt.Errorf("compiler.timeout must not be negative, got %s", c.Compiler.Timeout)
	}
	if c.UI.Port < 0 || c.UI.Port > 65535 {
		return fmt.Errorf("ui.port must be between 0 and 65535, got %d", c.UI.Port)
	}
	if c.Preview.Debounce < 0 {
		return fmt.Errorf("preview.debounce must not be negative, got %s", c.Preview.Debounce)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel converts a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: want debug, info, warn or error", s)
	}
	return level, nil
}

// Level returns the effective log level; verbose forces debug.
func (c *Config) Level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	level, _ := ParseLevel(c.LogLevel)
	return level
}
