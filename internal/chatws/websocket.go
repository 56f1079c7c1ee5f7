package chatws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/severalx/site/internal/chat"
	"github.com/severalx/site/internal/identity"
	"github.com/severalx/site/internal/metrics"
)

const (
	writeTimeout = 10 * time.Second
	askTimeout   = 2 * time.Minute
	readLimit    = 32 << 10
)

// Asker is the assistant client the socket relays to.
type Asker interface {
	AskStream(ctx context.Context, in chat.AskRequest, cookie string, onDelta func(chat.Delta) error) (*chat.AskResult, error)
}

// Frame types sent to the browser.
const (
	FrameDelta = "delta"
	FrameDone  = "done"
	FrameError = "error"
	FramePong  = "pong"
)

// inbound is a message from the browser.
type inbound struct {
	Type            string `json:"type,omitempty"`
	Message         string `json:"message"`
	ConversationID  string `json:"conversationId,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
}

// Frame is a message to the browser.
type Frame struct {
	Type            string `json:"type"`
	Text            string `json:"text,omitempty"`
	Message         string `json:"message,omitempty"`
	ConversationID  string `json:"conversationId,omitempty"`
	MessageID       string `json:"messageId,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
	Error           string `json:"error,omitempty"`
	Action          string `json:"action,omitempty"`
}

// Handler upgrades /ws/chat and relays each inbound message to the assistant.
type Handler struct {
	asker          Asker
	sm             *SessionManager
	metrics        *metrics.Metrics
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates a chat socket handler.
func NewHandler(asker Asker, sm *SessionManager, allowedOrigins []string, isDev bool, m *metrics.Metrics) *Handler {
	return &Handler{
		asker:          asker,
		sm:             sm,
		metrics:        m,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "visitor_id", visitorID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "visitor_id", visitorID)
		}
	}()
	ws.SetReadLimit(readLimit)

	h.sm.Register(visitorID, sessionID, ws)
	h.metrics.SetChatSockets(h.sm.Count())
	defer func() {
		h.sm.Unregister(visitorID, sessionID, ws)
		h.metrics.SetChatSockets(h.sm.Count())
	}()

	// The upgrade request carries the chat session cookies.
	cookie := r.Header.Get("Cookie")
	h.readLoop(r.Context(), ws, cookie, visitorID)
	slog.Debug("Chat socket ended", "visitor_id", visitorID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") {
		return true
	}
	if slices.ContainsFunc(h.allowedOrigins, func(o string) bool { return strings.EqualFold(o, origin) }) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

// readLoop handles one question at a time until the client goes away.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, cookie, visitorID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "visitor_id", visitorID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "visitor_id", visitorID)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := writeFrame(ctx, ws, Frame{Type: FrameError, Error: "Invalid message format"}); err != nil {
				return
			}
			continue
		}

		if msg.Type == "ping" {
			if err := writeFrame(ctx, ws, Frame{Type: FramePong}); err != nil {
				return
			}
			continue
		}

		if err := h.ask(ctx, ws, msg, cookie); err != nil {
			slog.Debug("Chat socket write failed", "error", err, "visitor_id", visitorID)
			return
		}
	}
}

// ask relays one question. Only socket write failures are returned; assistant
// failures are reported to the browser as error frames.
func (h *Handler) ask(ctx context.Context, ws *websocket.Conn, msg inbound, cookie string) error {
	if strings.TrimSpace(msg.Message) == "" {
		return writeFrame(ctx, ws, Frame{Type: FrameError, Error: "Message is required"})
	}

	askCtx, cancel := context.WithTimeout(ctx, askTimeout)
	defer cancel()

	req := chat.AskRequest{
		Message:         msg.Message,
		ConversationID:  msg.ConversationID,
		ParentMessageID: msg.ParentMessageID,
	}
	res, err := h.asker.AskStream(askCtx, req, cookie, func(d chat.Delta) error {
		if d.Text == "" {
			return nil
		}
		return writeFrame(ctx, ws, Frame{
			Type:           FrameDelta,
			Text:           d.Text,
			ConversationID: d.ConversationID,
			MessageID:      d.MessageID,
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("Chat assistant request failed", "error", err)
		f := chat.FailureFor(err)
		return writeFrame(ctx, ws, Frame{Type: FrameError, Error: f.Message, Action: f.Action})
	}

	return writeFrame(ctx, ws, Frame{
		Type:            FrameDone,
		Message:         res.Message,
		ConversationID:  res.ConversationID,
		MessageID:       res.MessageID,
		ParentMessageID: res.ParentMessageID,
	})
}

func writeFrame(ctx context.Context, ws *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
