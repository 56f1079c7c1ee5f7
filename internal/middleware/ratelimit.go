package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/severalx/site/internal/identity"
	"github.com/severalx/site/internal/metrics"
	"github.com/severalx/site/internal/ratelimit"
)

// RateLimit rejects requests from a client IP once limiter says no. Limiter
// failures fail open so a Redis outage never blocks the contact form.
func RateLimit(limiter ratelimit.Limiter, route string, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + ":" + identity.IPFromRequest(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				slog.Warn("Rate limiter unavailable, allowing request", "route", route, "error", err)
				allowed = true
			}
			if !allowed {
				m.Limited(route)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "Too many requests. Please try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
