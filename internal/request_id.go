package internal

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// GenerateRequestID creates a unique request identifier.
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithRequestID adds a request ID to the context.
// A context that already carries one is returned unchanged.
func WithRequestID(ctx context.Context) context.Context {
	if _, ok := ctx.Value(requestIDKey).(string); ok {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, GenerateRequestID())
}

// GetRequestID retrieves the request ID from the context, empty when missing.
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}
