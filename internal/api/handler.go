// Package api provides HTTP handlers for the site API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/severalx/site/internal/metrics"
	"github.com/severalx/site/internal/middleware"
	"github.com/severalx/site/internal/ratelimit"
	"github.com/severalx/site/internal/store"
)

const maxRequestBody = 64 << 10

// Handler provides common handler utilities.
type Handler struct {
	repo    store.Repository
	limiter ratelimit.Limiter
	metrics *metrics.Metrics
}

// NewHandler creates a new Handler with common dependencies. limiter and m
// may be nil.
func NewHandler(repo store.Repository, limiter ratelimit.Limiter, m *metrics.Metrics) *Handler {
	return &Handler{
		repo:    repo,
		limiter: limiter,
		metrics: m,
	}
}

// RegisterRoutes registers the health check and the placeholder image.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/api/placeholder/{width}/{height}", h.Placeholder)
}

// limit returns the rate limiting middleware for route, or a no-op when no
// limiter is configured.
func (h *Handler) limit(route string) func(http.Handler) http.Handler {
	if h.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(h.limiter, route, h.metrics)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Message writes a JSON response with a "message" field, the shape the
// session routes use.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message})
}

var errEmptyBody = errors.New("request body is empty")

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
