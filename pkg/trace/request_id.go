// Package trace attaches a request id to every request so log lines from
// different layers correlate.
package trace

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const RequestIDKey ContextKey = "request_id"

// Header carries the id to and from clients.
const Header = "X-Request-ID"

type RequestID struct{}

func WithRequestID() *RequestID {
	return &RequestID{}
}

// Middleware reuses the client-supplied request id when present, generates
// a fresh one otherwise, and exposes it in both the context and the
// response header.
func (ri *RequestID) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(Header, requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if not found.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}
