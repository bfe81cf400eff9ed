// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
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

	// File, when set, additionally writes JSON logs to a size-rotated file.
	File FileConfig
}

// FileConfig configures the rotated log file sink.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
		File: FileConfig{
			MaxSizeMB:  5,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

var (
	fileMu   sync.Mutex
	fileSink *lumberjack.Logger
)

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	fileMu.Lock()
	if fileSink != nil {
		fileSink.Close()
		fileSink = nil
	}
	if cfg.File.Path != "" {
		fileSink = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		output = zerolog.MultiLevelWriter(output, fileSink)
	}
	fileMu.Unlock()

	logger := zerolog.New(output).With().Timestamp().Logger()

	log.Logger = logger

	return logger
}

// Close flushes and closes the log file sink, if any.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()
	if fileSink == nil {
		return nil
	}
	err := fileSink.Close()
	fileSink = nil
	return err
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
//   - Every request attempt (call_id, url, method)
//   - Cache store operations (key, hit/miss)
//   - Rate limit state updates (healthy)
//
// Info: Normal operation events
//   - Request succeeded after a retry
//   - Cache build and prune summaries
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts after a connection reset
//   - Rate limit warnings (throttling active)
//   - Single cache task failures
//
// Error: Error conditions requiring attention
//   - Retries exhausted
//   - Critical rate limit blocks
//   - Configuration errors
//
// Context Fields:
//   - call_id: Identifier shared by all attempts of one logical request
//   - url: Request URL
//   - status_code: HTTP status code
//   - duration: Request duration
//   - error_class: transport_reset, protocol, jar, retry_exhausted
//   - code: Transport error code (ECONNRESET, ETIMEDOUT, ...)
//   - symbol, date: Bar cache key
//   - remaining: Requests left in the rate limit window
