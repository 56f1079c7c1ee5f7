package api

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/severalx/site/internal/config"
	"github.com/severalx/site/internal/domain"
	"github.com/severalx/site/internal/identity"
	"github.com/severalx/site/internal/mail"
)

const (
	msgContactRequired    = "Name, email, and message are required fields."
	msgContactEmail       = "Please provide a valid email address."
	msgContactConfig      = "Server configuration error. Please contact support."
	msgContactUnavailable = "Email service is currently unavailable. Please try again later."
	msgContactSendFailed  = "Failed to send confirmation email. Please try again or contact us directly."
	msgContactSuccess     = "Your message has been sent successfully! We will be in touch soon."
	msgContactUnexpected  = "An unexpected error occurred. Please try again later."

	mailTimeout = 30 * time.Second
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ContactHandler accepts contact form submissions.
type ContactHandler struct {
	*Handler
	mailer      mail.Mailer
	missingSMTP func() []string
	from        string
	to          string
}

// NewContactHandler creates a contact handler. Sender and recipient come from
// cfg; missing SMTP settings are re-checked on every request.
func NewContactHandler(base *Handler, mailer mail.Mailer, cfg *config.Config) *ContactHandler {
	return &ContactHandler{
		Handler:     base,
		mailer:      mailer,
		missingSMTP: cfg.MissingSMTP,
		from:        cfg.SMTP.FromEmail,
		to:          cfg.SMTP.ToEmail,
	}
}

// RegisterRoutes registers the contact route.
func (h *ContactHandler) RegisterRoutes(r chi.Router) {
	r.With(h.limit("contact")).Post("/api/contact", h.Submit)
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Service string `json:"service"`
}

// Submit validates the form, emails the firm and the visitor, and records the lead.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body contactRequest
	if err := decodeJSON(w, r, &body); err != nil {
		slog.Warn("Invalid contact payload", "error", err)
		h.metrics.ContactResult("invalid")
		Error(w, http.StatusBadRequest, msgContactRequired)
		return
	}
	lead := &domain.Lead{
		Name:      strings.TrimSpace(body.Name),
		Email:     strings.TrimSpace(body.Email),
		Phone:     strings.TrimSpace(body.Phone),
		Service:   strings.TrimSpace(body.Service),
		Message:   strings.TrimSpace(body.Message),
		VisitorID: identity.VisitorIDFromContext(r.Context()),
		CreatedAt: time.Now().UTC(),
	}

	if lead.Name == "" || lead.Email == "" || lead.Message == "" {
		h.metrics.ContactResult("invalid")
		Error(w, http.StatusBadRequest, msgContactRequired)
		return
	}
	if !emailPattern.MatchString(lead.Email) {
		h.metrics.ContactResult("invalid")
		Error(w, http.StatusBadRequest, msgContactEmail)
		return
	}

	if missing := h.missingSMTP(); len(missing) > 0 {
		slog.Error("Missing SMTP configuration", "keys", missing)
		h.metrics.ContactResult("misconfigured")
		Error(w, http.StatusInternalServerError, msgContactConfig)
		return
	}

	// Mail delivery outlives a disconnecting browser.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), mailTimeout)
	defer cancel()

	if err := h.mailer.Verify(ctx); err != nil {
		slog.Error("SMTP verification failed", "error", err)
		h.metrics.ContactResult("unavailable")
		Error(w, http.StatusInternalServerError, msgContactUnavailable)
		return
	}

	admin, err := mail.AdminNotification(lead, h.from, h.to)
	if err != nil {
		slog.Error("Failed to render admin email", "error", err)
		h.metrics.ContactResult("error")
		Error(w, http.StatusInternalServerError, msgContactUnexpected)
		return
	}
	reply, err := mail.AutoResponse(lead, h.from)
	if err != nil {
		slog.Error("Failed to render auto-response email", "error", err)
		h.metrics.ContactResult("error")
		Error(w, http.StatusInternalServerError, msgContactUnexpected)
		return
	}

	// Both sends run to completion; only the admin notification is required.
	var g errgroup.Group
	var adminErr, replyErr error
	g.Go(func() error {
		adminErr = h.mailer.Send(ctx, admin)
		return nil
	})
	g.Go(func() error {
		replyErr = h.mailer.Send(ctx, reply)
		return nil
	})
	_ = g.Wait()

	if replyErr != nil {
		slog.Warn("Failed to send auto-response email", "error", replyErr)
	}
	lead.AdminNotified = adminErr == nil
	if err := h.repo.SaveLead(ctx, lead); err != nil {
		slog.Error("Failed to save lead", "error", err)
	}

	if adminErr != nil {
		slog.Error("Failed to send admin email", "error", adminErr)
		h.metrics.ContactResult("send_failed")
		Error(w, http.StatusInternalServerError, msgContactSendFailed)
		return
	}

	slog.Info("Contact form submitted", "lead_id", lead.ID)
	h.metrics.ContactResult("ok")
	JSON(w, http.StatusOK, map[string]any{"success": true, "message": msgContactSuccess})
}
