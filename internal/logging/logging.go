// Package logging sets up the colored slog handler and per-event loggers.
package logging

import (
	"context"
	"io"
	log "log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

var levels = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// ParseLevel maps debug|info|warn|error to a level; anything else is info.
func ParseLevel(s string) log.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return log.LevelInfo
}

func New(w io.Writer, level string) *log.Logger {
	return log.New(tint.NewHandler(w, &tint.Options{
		Level:      ParseLevel(level),
		TimeFormat: time.DateTime,
	}))
}

type ctxKey struct{}

// WithEvent returns a context carrying a logger tagged with a fresh request id and the given attributes.
func WithEvent(ctx context.Context, base *log.Logger, args ...any) (context.Context, *log.Logger) {
	if base == nil {
		base = log.Default()
	}
	l := base.With(append([]any{"request_id", uuid.NewString()}, args...)...)
	return context.WithValue(ctx, ctxKey{}, l), l
}

// From returns the event logger stored in ctx, or the default logger.
func From(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
