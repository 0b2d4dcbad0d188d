// Package correlation assigns and carries a request-scoped correlation
// id: a UUID-shaped identifier used in logs, error bodies, and the
// X-Request-ID response header.
package correlation

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderName is the recognized request/response header.
const HeaderName = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// FromContext returns the request id, or "" if none is present.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Resolve returns the id from the recognized request header if present,
// otherwise a freshly generated UUID.
func Resolve(r *http.Request) string {
	if id := r.Header.Get(HeaderName); id != "" {
		return id
	}
	return uuid.New().String()
}

// Middleware resolves a correlation id per request, stores it in the
// request context, and emits it back on the response header before
// calling through to the next handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Resolve(r)
		w.Header().Set(HeaderName, id)
		ctx := WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
