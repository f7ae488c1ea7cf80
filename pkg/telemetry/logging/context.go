package logging

import (
	"context"
	"log/slog"
)

// contextKey is a private type for context keys defined in this package.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	sessionIDKey contextKey = "session_id"
	traceIDKey   contextKey = "trace_id"
	providerKey  contextKey = "provider"
	modelKey     contextKey = "model"
)

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id from the context, or "".
func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithSessionID returns a context carrying the session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionID returns the session id from the context, or "".
func SessionID(ctx context.Context) string {
	return stringValue(ctx, sessionIDKey)
}

// WithTraceID returns a context carrying the trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace id from the context, or "".
func TraceID(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

// WithProvider returns a context carrying the provider name.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, providerKey, provider)
}

// Provider returns the provider name from the context, or "".
func Provider(ctx context.Context) string {
	return stringValue(ctx, providerKey)
}

// WithModel returns a context carrying the model name.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, modelKey, model)
}

// Model returns the model name from the context, or "".
func Model(ctx context.Context) string {
	return stringValue(ctx, modelKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// ContextAttrs collects the fields present on the context as alternating
// key/value pairs suitable for slog's variadic args.
func ContextAttrs(ctx context.Context) []any {
	var attrs []any

	if v := RequestID(ctx); v != "" {
		attrs = append(attrs, "request_id", v)
	}
	if v := SessionID(ctx); v != "" {
		attrs = append(attrs, "session_id", v)
	}
	if v := TraceID(ctx); v != "" {
		attrs = append(attrs, "trace_id", v)
	}
	if v := Provider(ctx); v != "" {
		attrs = append(attrs, "provider", v)
	}
	if v := Model(ctx); v != "" {
		attrs = append(attrs, "model", v)
	}

	return attrs
}

// FromContext returns the logger with any context fields attached.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := ContextAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
