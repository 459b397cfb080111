package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger. Error records carry a stack snapshot so a
// failed job can be triaged from the log stream alone.
type Logger struct {
	*slog.Logger
}

// New builds a logger for the configured level and format. "json" is
// the deploy format; anything else gets tinted console output for
// development.
func New(level, format string) *Logger {
	logLevel := parseLevel(level)

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// Scoped returns a child logger with fixed key-value pairs attached to
// every record
func (l *Logger) Scoped(args ...any) *Logger {
	return &Logger{Logger: l.With(args...)}
}

// Error logs an error with a stack snapshot
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, withStack(args)...)
}

// ErrorContext logs an error with context and a stack snapshot
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.Logger.ErrorContext(ctx, msg, withStack(args)...)
}

func withStack(args []any) []any {
	return append(args, "stack", string(debug.Stack()))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
