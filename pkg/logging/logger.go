// Package logging configures structured logging with zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level for the console sink.
	Level string

	// FilePath optionally adds a JSON log file capturing every level,
	// for post-run diagnosis. Empty disables the file sink.
	FilePath string

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool
}

// DefaultConfig returns the default logger configuration: pretty
// console output at info level, no file sink.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Pretty: true,
	}
}

// Setup configures the global zerolog logger. The console sink honors
// the configured level; the file sink, when enabled, records debug and
// above. A previous log file at the same path is removed so each run
// starts a clean diagnosis log.
func Setup(cfg Config) (zerolog.Logger, error) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var console io.Writer = os.Stderr
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	writers := []io.Writer{
		&zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: console},
			Level:  parseLevel(cfg.Level),
		},
	}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("create log directory: %w", err)
		}
		// Remove the previous run's log rather than appending to it.
		_ = os.Remove(cfg.FilePath)

		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, file)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	log.Logger = logger

	return logger, nil
}

// NewLogger creates a logger tagged with a component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// parseLevel converts a level name to a zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
