// Package logging provides structured logging configuration using zerolog
// and the terminal status line shown while harvesting.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
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

// ValidLevel reports whether level names a supported log level.
func ValidLevel(level LogLevel) bool {
	switch strings.ToLower(string(level)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache hits by tier (parsed, raw)
//   - Request URLs, session retries and backoff
//   - Rows parsed per page
//
// Info: Normal operation events
//   - Pages answering 404 or 425
//   - Run start, completion and stop reason
//   - Metrics server address
//
// Warn: Warning conditions that don't prevent operation
//   - Transient errors (session replaced, cooldown scheduled)
//   - Cooldown waits
//   - Skipped rows and pages without a results table
//
// Error: Error conditions requiring attention
//   - Fatal cache I/O errors
//   - Corrupt parsed artifacts
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting package (fetcher, pipeline, pagination, ...)
//   - event: Event being harvested
//   - page: Page index
//   - status: HTTP status code
//   - outcome: Page outcome (success, not_found, rate_limited, transient, parse_failure)
//   - source: Where the page came from (parsed-cache, raw-cache, network)
//   - consecutive_failures: Current failure counter
