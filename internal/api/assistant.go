package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/severalx/site/internal/chat"
)

// Assistant answers chat messages.
type Assistant interface {
	Ask(ctx context.Context, in chat.AskRequest, cookie string) (*chat.AskResult, error)
}

// AssistantHandler relays chat bar messages to the assistant.
type AssistantHandler struct {
	*Handler
	assistant Assistant
}

// NewAssistantHandler creates an assistant handler.
func NewAssistantHandler(base *Handler, assistant Assistant) *AssistantHandler {
	return &AssistantHandler{Handler: base, assistant: assistant}
}

// RegisterRoutes registers the assistant route.
func (h *AssistantHandler) RegisterRoutes(r chi.Router) {
	r.With(h.limit("assistant")).Post("/api/chat/assistant", h.Ask)
}

// Ask sends one message and returns the collected answer.
func (h *AssistantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var body chat.AskRequest
	if err := decodeJSON(w, r, &body); err != nil || strings.TrimSpace(body.Message) == "" {
		Error(w, http.StatusBadRequest, "Message is required")
		return
	}

	res, err := h.assistant.Ask(r.Context(), body, r.Header.Get("Cookie"))
	if err != nil {
		f := chat.FailureFor(err)
		slog.Error("Chat assistant request failed", "status", f.Status, "error", err)
		JSON(w, f.Status, f)
		return
	}
	JSON(w, http.StatusOK, res)
}
