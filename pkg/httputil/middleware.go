package httputil

import (
	"net/http"
	"time"

	"github.com/mcare/mcare-backend/internal/correlation"
	"github.com/mcare/mcare-backend/pkg/actor"
	"github.com/mcare/mcare-backend/pkg/logger"
)

// Logger middleware logs HTTP requests. request_id comes from the
// correlation middleware wired ahead of it in the router; user_id is read
// from an actor already on the request context when it reaches this
// middleware. The auth middleware runs further down the chain and attaches
// its actor to a derived request this middleware does not see, so user_id
// is empty for requests it resolves.
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			requestID := correlation.FromContext(r.Context())
			userID := ""
			if act := actor.FromContext(r.Context()); act != nil {
				userID = act.ID
			}

			log.Info().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", duration).
				Str("user_id", userID).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

// Recoverer middleware recovers from panics.
func Recoverer(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("panic", err).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
