package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// LoggerMiddleware logs incoming HTTP requests with their outcome and tags
// each one with a request id.
func LoggerMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			ev := logger.Debug()
			if rec.status >= http.StatusInternalServerError {
				ev = logger.Error()
			}
			ev.Str("request_id", requestID).
				Str("method", r.Method).
				Str("uri", r.URL.RequestURI()).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msgf("%s %s", r.Method, r.URL.RequestURI())
		})
	}
}
