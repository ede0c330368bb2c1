// Package logging provides structured logging for the tracklight system
// using zerolog. It offers human-readable console output during development
// and structured JSON output for production, selected automatically or via
// environment variables.
//
// Example usage:
//
//	log := logging.Default()
//	log.Info().Str("connection_id", id).Msg("Client connected")
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger zerolog.Logger

	// Nop discards all log output. Useful in tests.
	Nop = zerolog.Nop()
)

func init() {
	defaultLogger = FromEnv()
}

// Default returns the default global logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault sets the default global logger.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

// New creates a new logger writing JSON to w at the global level.
func New(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).
		Level(zerolog.GlobalLevel()).
		With().
		Timestamp().
		Logger()
}

// NewConsole creates a logger with human-readable console output.
func NewConsole() zerolog.Logger {
	return New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    os.Getenv("NO_COLOR") != "",
	})
}

// FromEnv builds a logger from LOG_LEVEL and LOG_FORMAT. Format defaults
// to console when stderr is a terminal and JSON otherwise.
func FromEnv() zerolog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	zerolog.SetGlobalLevel(level)

	var writer io.Writer = os.Stderr
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	if format == "" {
		if isTerminal() {
			format = "console"
		} else {
			format = "json"
		}
	}
	if format == "console" || format == "pretty" {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// parseLevel parses a log level string, defaulting to info.
func parseLevel(s string) zerolog.Level {
	if s == "" {
		if os.Getenv("DEBUG") != "" {
			return zerolog.DebugLevel
		}
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// isTerminal checks if stderr is a terminal.
func isTerminal() bool {
	if fileInfo, _ := os.Stderr.Stat(); (fileInfo.Mode() & os.ModeCharDevice) != 0 {
		return true
	}
	return false
}
