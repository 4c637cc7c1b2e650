// Package logging provides structured logging utilities.
package logging

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/checkconfig/internal/host"
)

// NewLogger creates a new zerolog logger configured for the service.
func NewLogger(serviceName string, level string) zerolog.Logger {
	return NewLoggerWithWriter(os.Stdout, serviceName, level)
}

// NewLoggerWithWriter creates a JSON logger writing to w.
func NewLoggerWithWriter(w io.Writer, serviceName string, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// NewPrettyLogger creates a logger with pretty console output (for development).
func NewPrettyLogger(serviceName string, level string) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(consoleWriter).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// New picks the JSON or pretty logger by format name.
func New(serviceName, level, format string) zerolog.Logger {
	if format == "pretty" || format == "console" {
		return NewPrettyLogger(serviceName, level)
	}
	return NewLogger(serviceName, level)
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// ContextWithLogger adds a logger to the context.
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// LoggerFromContext extracts the logger from context.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	return *zerolog.Ctx(ctx)
}

// HostLogger creates a logger for one host resolution.
func HostLogger(logger zerolog.Logger, hostName string, mode string) zerolog.Logger {
	return logger.With().
		Str("host", hostName).
		Str("filterMode", mode).
		Logger()
}

// RulesetLogger creates a logger for ruleset evaluation.
func RulesetLogger(logger zerolog.Logger, ruleset string) zerolog.Logger {
	return logger.With().
		Str("ruleset", ruleset).
		Logger()
}

// RunLogger creates a logger for a batch run or reload cycle.
func RunLogger(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().
		Str("runId", runID).
		Logger()
}

// LogResolution writes one event summarising a host resolution. Unknown
// hosts are logged as warnings, other failures as errors.
func LogResolution(logger zerolog.Logger, hostName string, services int, latency time.Duration, err error) {
	event := logger.Info()
	if err != nil {
		event = logger.Error()
		if errors.Is(err, host.ErrHostNotFound) {
			event = logger.Warn()
		}
	}

	event.
		Str("type", "resolution").
		Str("host", hostName).
		Int("services", services).
		Dur("latency", latency)

	if err != nil {
		event.Err(err)
	}

	event.Msg("check table resolved")
}
