package core

import (
	"context"

	"github.com/google/uuid"
)

// HeaderRequestID is the header carrying the request ID in both directions
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLen bounds client-supplied IDs before they reach logs
const maxRequestIDLen = 128

// RequestIDKey is the context key for request ID
type requestIDKey struct{}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateRequestID generates a new request ID
func GenerateRequestID() string {
	return uuid.New().String()
}

// WithNewRequestID adds a new request ID to the context
func WithNewRequestID(ctx context.Context) context.Context {
	return WithRequestID(ctx, GenerateRequestID())
}

// NormalizeRequestID keeps a client-supplied ID when it is short and printable,
// otherwise generates a fresh one.
func NormalizeRequestID(candidate string) string {
	if candidate == "" || len(candidate) > maxRequestIDLen {
		return GenerateRequestID()
	}
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
		if c < 0x21 || c > 0x7e {
			return GenerateRequestID()
		}
	}
	return candidate
}
