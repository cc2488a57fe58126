package authorizer

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries a per-call correlation ID.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const retriedKey contextKey = "authorizer_retried"

// markRetried returns a copy of req flagged as a one-time replay.
func markRetried(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), retriedKey, true))
}

// IsRetried reports whether ctx belongs to a request already replayed after a refresh.
func IsRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey).(bool)
	return retried
}

func ensureRequestID(req *http.Request) string {
	id := req.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
		req.Header.Set(RequestIDHeader, id)
	}
	return id
}
