// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// requestIDKey is the context key for request/correlation IDs.
type requestIDKey struct{}

// callerKey is the context key for the authenticated caller's email.
type callerKey struct{}

// New creates a structured JSON logger on stdout at the named level.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown values yield info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// WithRequestID returns a new context with the given request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithCaller returns a new context carrying the caller's email.
func WithCaller(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, callerKey{}, email)
}

// FromContext returns a logger with context fields (request ID, caller) attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	log := base
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		log = log.With("request_id", reqID)
	}
	if email, ok := ctx.Value(callerKey{}).(string); ok && email != "" {
		log = log.With("caller", email)
	}
	return log
}
