package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/freekieb7/go-perimeter/internal/metrics"
)

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
	wrote      bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wrote {
		rw.statusCode = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wrote = true
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the reverse proxy needs for flushing.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestLogger logs every request and records its duration. Requests
// slower than slowThreshold are logged at warn level.
func RequestLogger(logger *slog.Logger, slowThreshold time.Duration) func(http.Handler) http.Handler {
	if slowThreshold <= 0 {
		slowThreshold = time.Second
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapper := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapper, r)

			duration := time.Since(start)
			metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, strconv.Itoa(wrapper.statusCode)).
				Observe(duration.Seconds())

			level := slog.LevelInfo
			switch {
			case wrapper.statusCode >= http.StatusInternalServerError:
				level = slog.LevelError
			case duration > slowThreshold:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "HTTP request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", wrapper.statusCode),
				slog.Int("response_size", wrapper.size),
				slog.Duration("duration", duration),
				slog.Bool("slow_request", duration > slowThreshold))
		})
	}
}
