// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithRecording returns a logger with recording context.
func WithRecording(recordingId, userId string) zerolog.Logger {
	return log.With().
		Str("recordingId", recordingId).
		Str("userId", userId).
		Logger()
}

// WithSession returns a logger with parent session context.
func WithSession(sessionId, userId string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionId).
		Str("userId", userId).
		Logger()
}

// WithChannel returns a logger for one channel's engine call.
func WithChannel(recordingId, channel, provider string) zerolog.Logger {
	return log.With().
		Str("recordingId", recordingId).
		Str("channel", channel).
		Str("sttProvider", provider).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
