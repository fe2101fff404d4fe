// Package logging configures structured logging with log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logging options.
type Config struct {
	// Level is the minimum level to emit.
	Level slog.Level
	// JSON switches to JSON output, for running under a scheduler.
	JSON bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// FromEnv returns a config honoring the LOG_LEVEL and LOG_JSON environment
// variables. LOG_LEVEL accepts DEBUG, INFO, WARN, ERROR; default INFO.
func FromEnv() Config {
	cfg := Config{Level: slog.LevelInfo, Output: os.Stderr}

	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		cfg.Level = slog.LevelDebug
	case "WARN", "WARNING":
		cfg.Level = slog.LevelWarn
	case "ERROR":
		cfg.Level = slog.LevelError
	}

	if v := os.Getenv("LOG_JSON"); v == "1" || strings.EqualFold(v, "true") {
		cfg.JSON = true
	}

	return cfg
}

// Setup builds a logger from the config and installs it as the slog default.
func Setup(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
