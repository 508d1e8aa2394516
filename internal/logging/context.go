// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Context keys for correlation IDs. Unexported types prevent collisions.
type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	requestIDKey contextKey = "request_id"
	toolNameKey  contextKey = "tool_name"
	loggerKey    contextKey = "logger"
)

const maxIDLen = 128

// validID matches safe correlation ID characters.
var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateID(kind, id string) {
	if id == "" {
		panic(fmt.Sprintf("logging: empty %s", kind))
	}
	if len(id) > maxIDLen {
		panic(fmt.Sprintf("logging: %s exceeds %d characters", kind, maxIDLen))
	}
	if !validID.MatchString(id) {
		panic(fmt.Sprintf("logging: %s contains invalid characters", kind))
	}
}

// WithSessionID returns a context carrying the MCP session ID.
// Panics on empty, oversized, or non [a-zA-Z0-9_-] IDs.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	validateID("session ID", sessionID)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext extracts the session ID, if set.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}

// WithRequestID returns a context carrying a per-call request ID.
// Panics on empty, oversized, or non [a-zA-Z0-9_-] IDs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	validateID("request ID", requestID)
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID, if set.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// WithTool returns a context carrying the tool name being served.
// Panics on empty, oversized, or non [a-zA-Z0-9_-] names.
func WithTool(ctx context.Context, tool string) context.Context {
	validateID("tool name", tool)
	return context.WithValue(ctx, toolNameKey, tool)
}

// ToolFromContext extracts the tool name, if set.
func ToolFromContext(ctx context.Context) (string, bool) {
	tool, ok := ctx.Value(toolNameKey).(string)
	return tool, ok
}

// ContextFields extracts correlation fields from the context.
// Includes trace/span IDs when an OTEL span is recording.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
			zap.Bool("trace_sampled", sc.IsSampled()),
		)
	}

	if sessionID, ok := SessionIDFromContext(ctx); ok {
		fields = append(fields, zap.String("session.id", sessionID))
	}

	if requestID, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, zap.String("request.id", requestID))
	}

	if tool, ok := ToolFromContext(ctx); ok {
		fields = append(fields, zap.String("tool.name", tool))
	}

	return fields
}

// WithLogger returns a context carrying the logger.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from the context.
// Returns a no-op logger when none is set, so callers never nil-check.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		zap:    zap.NewNop(),
		config: &Config{},
	}
}
