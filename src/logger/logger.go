// Package logger provides the logging interface used throughout the agent.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger defines the interface for logging throughout the application.
// Different implementations can be used for different contexts (console,
// silent for TUI mode, etc.)
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// ConsoleLogger writes structured, timestamped logs via zerolog.
type ConsoleLogger struct {
	log zerolog.Logger
}

// NewConsoleLogger creates a logger writing human-readable output to stderr.
func NewConsoleLogger() *ConsoleLogger {
	return NewConsoleLoggerTo(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}

// NewConsoleLoggerTo creates a logger writing to the given writer.
// Useful for capturing output in tests.
func NewConsoleLoggerTo(w io.Writer) *ConsoleLogger {
	return &ConsoleLogger{log: zerolog.New(w).With().Timestamp().Logger()}
}

func (c *ConsoleLogger) Info(msg string, args ...interface{}) {
	c.log.Info().Msgf(msg, args...)
}

func (c *ConsoleLogger) Error(msg string, args ...interface{}) {
	c.log.Error().Msgf(msg, args...)
}

func (c *ConsoleLogger) Debug(msg string, args ...interface{}) {
	c.log.Debug().Msgf(msg, args...)
}

// SilentLogger discards all log messages.
// Used when running in TUI mode to prevent log output from interfering
// with the display.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}
