// Package logging provides structured logging configuration using zerolog.
// Components derive their logger from the global one via NewLogger, so Setup
// must run before they are constructed to take effect.
package logging

import (
	"io"
	"os"
	"strings"

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

// Setup configures the global zerolog logger and returns it.
// A nil Output writes to stderr.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// ParseLevel converts a configured level name to a LogLevel.
// Unknown names fall back to info.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
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

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache hit/miss with cause, keys, TTL
//   - Single page fetches and next cursors
//   - Storage open, LRU evictions
//
// Info: Normal operation events
//   - Cold fetch completed (records, pages, duration)
//   - Background refresh completed
//   - Proxy startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Storage errors (fallback to network)
//   - Page retries and partial collections
//   - Cache write failures
//
// Error: Error conditions requiring attention
//   - Cold fetch failed with no data
//   - Configuration errors
//
// Context Fields:
//   - component: cache, storage, collector, client, synchronizer, proxy
//   - filters: requested filters (archived, search)
//   - cause: miss cause (absent, stale, version_mismatch, filter_mismatch)
//   - records: number of records in a collection
//   - pages: number of pages fetched
//   - status: fetch result (complete, partial, failed)
//   - refresh_id: background refresh identifier
//   - duration: operation duration
