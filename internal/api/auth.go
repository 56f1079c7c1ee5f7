package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/severalx/site/internal/chat"
	"github.com/severalx/site/internal/domain"
	"github.com/severalx/site/internal/identity"
	"github.com/severalx/site/internal/mail"
)

const (
	msgChatNotConfigured = "Chat API base URL is not configured"
	msgInternal          = "Internal server error"
)

// SessionProxy is the chat platform's session API.
type SessionProxy interface {
	Login(ctx context.Context, email, password string) (*chat.Exchange, error)
	Logout(ctx context.Context, cookie string) (*chat.Exchange, error)
	Refresh(ctx context.Context, cookie string) (*chat.Exchange, error)
	Register(ctx context.Context, reg chat.Registration) (*chat.Exchange, error)
}

// AuthHandler proxies chat platform sessions and handles signup.
type AuthHandler struct {
	*Handler
	chat     SessionProxy
	mailer   mail.Mailer
	mailFrom string
}

// NewAuthHandler creates an auth handler. mailer may be nil, which skips the
// welcome email.
func NewAuthHandler(base *Handler, proxy SessionProxy, mailer mail.Mailer, mailFrom string) *AuthHandler {
	return &AuthHandler{Handler: base, chat: proxy, mailer: mailer, mailFrom: mailFrom}
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.With(h.limit("login")).Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
		r.With(h.limit("signup")).Post("/signup", h.Signup)
	})
}

// relay copies an upstream exchange onto w: cookies, status and body.
func relay(w http.ResponseWriter, ex *chat.Exchange) {
	chat.RelayCookies(w.Header(), ex.Cookies)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ex.Status)
	_, _ = w.Write(ex.Body)
}

// Login forwards credentials to the chat platform.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.Email == "" || body.Password == "" {
		Message(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	ex, err := h.chat.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.upstreamFailure(w, "Login", err, "message")
		return
	}
	relay(w, ex)
}

// Logout forwards the caller's cookies so the chat platform can end the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ex, err := h.chat.Logout(r.Context(), r.Header.Get("Cookie"))
	if err != nil {
		h.upstreamFailure(w, "Logout", err, "message")
		return
	}
	relay(w, ex)
}

// Me refreshes the chat session and returns the signed-in user or null.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ex, err := h.chat.Refresh(r.Context(), r.Header.Get("Cookie"))
	if err != nil {
		h.upstreamFailure(w, "Session refresh", err, "error")
		return
	}

	chat.RelayCookies(w.Header(), ex.Cookies)
	user, ok := ex.Session()
	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]any{"user": nil})
		return
	}
	JSON(w, http.StatusOK, map[string]json.RawMessage{"user": user})
}

// upstreamFailure writes 500 for a missing base URL or a transport failure.
// field is the key the route uses for its error text.
func (h *AuthHandler) upstreamFailure(w http.ResponseWriter, op string, err error, field string) {
	msg := msgInternal
	if errors.Is(err, chat.ErrNotConfigured) {
		msg = msgChatNotConfigured
	} else {
		slog.Error(op+" proxy failed", "error", err)
	}
	JSON(w, http.StatusInternalServerError, map[string]string{field: msg})
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Company  string `json:"company"`
	Password string `json:"password"`
}

func (s signupRequest) complete() bool {
	return strings.TrimSpace(s.Name) != "" && strings.TrimSpace(s.Email) != "" &&
		strings.TrimSpace(s.Company) != "" && s.Password != ""
}

// Signup creates a chat account, records the member and sends a welcome email.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var body signupRequest
	if err := decodeJSON(w, r, &body); err != nil || !body.complete() {
		h.metrics.SignupResult("invalid")
		Message(w, http.StatusBadRequest, "All fields are required")
		return
	}

	ex, err := h.chat.Register(r.Context(), chat.Registration{
		Name:     body.Name,
		Email:    body.Email,
		Username: domain.UsernameFromEmail(body.Email),
		Password: body.Password,
	})
	if err != nil {
		h.metrics.SignupResult("error")
		h.upstreamFailure(w, "Signup", err, "message")
		return
	}
	if !ex.OK() {
		h.metrics.SignupResult("rejected")
		msg := ex.Message()
		if msg == "" {
			msg = "Failed to create chat account"
		}
		Message(w, ex.Status, msg)
		return
	}

	member := &domain.Member{
		Name:      body.Name,
		Email:     body.Email,
		Company:   body.Company,
		VisitorID: identity.VisitorIDFromContext(r.Context()),
	}
	if err := h.repo.UpsertMember(r.Context(), member); err != nil {
		slog.Error("Failed to record member", "error", err)
	}
	h.sendWelcome(r.Context(), member)

	h.metrics.SignupResult("ok")
	Message(w, http.StatusOK, "Account created successfully")
}

// sendWelcome is best effort; signup never fails on email.
func (h *AuthHandler) sendWelcome(ctx context.Context, member *domain.Member) {
	if h.mailer == nil || h.mailFrom == "" {
		return
	}
	msg, err := mail.Welcome(member, h.mailFrom)
	if err != nil {
		slog.Error("Failed to render welcome email", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := h.mailer.Send(ctx, msg); err != nil {
		slog.Error("Failed to send welcome email", "error", err)
	}
}
