package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a JSON logger writing to stdout.
// LOG_LEVEL=debug enables debug output; source locations are attached for
// warn and above.
func NewLogger() *slog.Logger {
	return newLogger(os.Stdout, false)
}

// NewTextLogger creates a human-readable logger for CLI use, writing to stderr
// so that command output on stdout stays machine-readable.
func NewTextLogger() *slog.Logger {
	return newLogger(os.Stderr, true)
}

func newLogger(w io.Writer, text bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromEnv(),
		AddSource: levelFromEnv() <= slog.LevelWarn,
	}
	if text {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func levelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCycleID returns a logger that tags every record with the cycle id.
func WithCycleID(logger *slog.Logger, cycleID string) *slog.Logger {
	if cycleID == "" {
		return logger
	}
	return logger.With(slog.String("cycle_id", cycleID))
}

// FromContext retrieves the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger stores logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

type contextKey string

const loggerContextKey contextKey = "logger"
