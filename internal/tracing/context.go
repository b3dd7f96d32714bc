// Package tracing carries request-scoped identifiers through context.Context and
// into log lines.
package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	traceIDKey    contextKey = "trace_id"
	runIDKey      contextKey = "run_id"
	sessionKeyKey contextKey = "session_key"
)

// TraceContext holds the identifiers found in a context.
type TraceContext struct {
	TraceID    string
	RunID      string
	SessionKey string
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSessionKey adds a session key to the context
func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, sessionKeyKey, sessionKey)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) TraceContext {
	return TraceContext{
		TraceID:    stringValue(ctx, traceIDKey),
		RunID:      stringValue(ctx, runIDKey),
		SessionKey: stringValue(ctx, sessionKeyKey),
	}
}

// NewRunContext tags ctx with a fresh run ID, starting a trace first if ctx
// has none.
func NewRunContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, uuid.NewString())
	}
	return context.WithValue(ctx, runIDKey, uuid.NewString())
}

// LoggerFromContext adds the tracing fields present in ctx to logger.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	lc := logger.With()
	for _, f := range [][2]string{
		{"trace_id", tc.TraceID},
		{"run_id", tc.RunID},
		{"session_key", tc.SessionKey},
	} {
		if f[1] != "" {
			lc = lc.Str(f[0], f[1])
		}
	}
	return lc.Logger()
}
