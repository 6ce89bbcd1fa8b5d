package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout puts a deadline on the request context so store and cache calls
// made while serving r give up after d. Nothing is written on expiry; the
// handler sees the context error.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
