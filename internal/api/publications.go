package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/severalx/site/internal/domain"
	"github.com/severalx/site/internal/ghost"
)

const (
	maxPublicationsLimit     = 50
	fallbackPublicationLimit = 6

	msgInvalidCollection    = "Invalid collection. Valid: featured, recent, case-studies"
	msgPublicationsDown     = "Publications are temporarily unavailable."
	msgPublicationsRejected = "Publications could not be loaded."
)

// PostSource is the CMS behind the relay endpoint.
type PostSource interface {
	Posts(ctx context.Context, collection domain.Collection, limit int) (*domain.ContentQueryResult, error)
}

// Composer builds the merged list shown on the home page.
type Composer interface {
	Compose(ctx context.Context) domain.DisplayList
}

// PublicationsHandler relays CMS collections to the front end.
type PublicationsHandler struct {
	*Handler
	source   PostSource
	showcase Composer
}

// NewPublicationsHandler creates a publications handler. showcase may be nil,
// in which case the showcase route is not registered.
func NewPublicationsHandler(base *Handler, source PostSource, showcase Composer) *PublicationsHandler {
	return &PublicationsHandler{Handler: base, source: source, showcase: showcase}
}

// RegisterRoutes registers publication routes.
func (h *PublicationsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/publications", h.List)
	if h.showcase != nil {
		r.Get("/api/publications/showcase", h.Showcase)
	}
}

// List returns one collection. Upstream details are logged, never returned.
func (h *PublicationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	collection, ok := domain.ParseCollection(q.Get("collection"))
	if !ok {
		Error(w, http.StatusBadRequest, msgInvalidCollection)
		return
	}
	limit := parseLimit(q.Get("limit"))

	result, err := h.source.Posts(r.Context(), collection, limit)
	if err != nil {
		status, msg := relayFailure(err)
		slog.Warn("Publications relay failed", "collection", collection, "status", status, "error", err)
		if limit == 0 {
			limit = fallbackPublicationLimit
		}
		JSON(w, status, domain.EmptyResult(limit, msg))
		return
	}

	JSON(w, http.StatusOK, result)
}

// Showcase returns the merged home page list.
func (h *PublicationsHandler) Showcase(w http.ResponseWriter, r *http.Request) {
	list := h.showcase.Compose(r.Context())
	if len(list.Items) == 0 && list.Error != "" {
		JSON(w, http.StatusServiceUnavailable, list)
		return
	}
	JSON(w, http.StatusOK, list)
}

// parseLimit accepts a positive integer capped at maxPublicationsLimit.
// Anything else means unspecified (0).
func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return min(n, maxPublicationsLimit)
}

// relayFailure maps a CMS error to 503 (unreachable) or 502 (rejected).
func relayFailure(err error) (int, string) {
	if errors.Is(err, ghost.ErrNotConfigured) {
		return http.StatusServiceUnavailable, msgPublicationsDown
	}
	var apiErr *ghost.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return http.StatusBadGateway, msgPublicationsRejected
	}
	return http.StatusServiceUnavailable, msgPublicationsDown
}
