package vecseg

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecseg/model"
)

// Logger wraps slog.Logger with vecseg-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithSegment adds the segment id, type and scope to the logger.
func (l *Logger) WithSegment(seg model.Segment) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			"segment", seg.ID,
			"type", string(seg.Type),
			"scope", string(seg.Scope),
		),
	}
}

// WithCollection adds a collection id field to the logger.
func (l *Logger) WithCollection(id uuid.UUID) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", id),
	}
}

// LogConstruct logs a segment instantiation.
func (l *Logger) LogConstruct(ctx context.Context, seg model.Segment, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "segment construction failed",
			"segment", seg.ID,
			"type", string(seg.Type),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "segment constructed",
			"segment", seg.ID,
			"type", string(seg.Type),
			"duration", duration,
		)
	}
}

// LogEvict logs the removal of a live instance from the cache.
func (l *Logger) LogEvict(ctx context.Context, segmentID uuid.UUID, reason EvictReason, err error) {
	if err != nil {
		l.WarnContext(ctx, "segment evicted",
			"segment", segmentID,
			"reason", string(reason),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "segment evicted",
			"segment", segmentID,
			"reason", string(reason),
		)
	}
}

// LogCreateCollection logs a collection creation.
func (l *Logger) LogCreateCollection(ctx context.Context, col model.Collection, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create collection failed",
			"collection", col.ID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "collection created",
			"collection", col.ID,
			"name", col.Name,
			"dimension", col.Dimension,
		)
	}
}

// LogDeleteCollection logs a collection deletion.
func (l *Logger) LogDeleteCollection(ctx context.Context, id uuid.UUID, segments int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete collection failed",
			"collection", id,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "collection deleted",
			"collection", id,
			"segments", segments,
		)
	}
}
