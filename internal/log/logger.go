// Package log provides logging for rtscope with a console backend and an
// in-memory buffer of recent lines for the console's /logs endpoint.
package log

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logging configuration.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "text", "json"

	// In-memory buffer size (0 to disable)
	BufferLines int
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Format:      "text",
		BufferLines: 500,
	}
}

// ParseLevel converts a string level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	defaultLogger *slog.Logger
	lineBuffer    *RingBuffer
	mu            sync.RWMutex
)

// Init initializes the global logger with the given configuration.
func Init(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()

	var handler slog.Handler = NewConsoleHandler(os.Stderr, cfg, ParseLevel(cfg.Level))

	if cfg.BufferLines > 0 {
		lineBuffer = NewRingBuffer(cfg.BufferLines)
		handler = NewBufferHandler(handler, lineBuffer)
	} else {
		lineBuffer = nil
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// Logger returns the current default logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Log logs at the given level.
func Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	Logger().Log(ctx, level, msg, args...)
}

// BufferedLines returns the last n lines from the log buffer.
// Returns nil if the buffer is disabled.
func BufferedLines(n int) []string {
	mu.RLock()
	defer mu.RUnlock()
	if lineBuffer == nil {
		return nil
	}
	return lineBuffer.Lines(n)
}
