// Package mail sends the site's transactional email.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/severalx/site/internal/config"
)

// Message is one outbound email.
type Message struct {
	FromName string
	From     string
	To       string
	ReplyTo  string
	Subject  string
	HTML     string
}

// Mailer delivers messages.
type Mailer interface {
	// Verify checks that the transport accepts connections and credentials.
	Verify(ctx context.Context) error
	// Send delivers one message.
	Send(ctx context.Context, msg Message) error
}

// New returns a logging mailer when UseMock is set, an SMTP mailer otherwise.
func New(cfg config.SMTPConfig) Mailer {
	if cfg.UseMock {
		return NewMock()
	}
	return NewSMTP(cfg)
}

func build(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if msg.FromName != "" {
		if err := m.FromFormat(msg.FromName, msg.From); err != nil {
			return nil, fmt.Errorf("set from: %w", err)
		}
	} else if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("set reply-to: %w", err)
		}
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	return m, nil
}

// SMTPMailer sends through an SMTP relay. Each operation opens its own
// connection so concurrent sends never share client state.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTP creates an SMTP mailer. Connection problems surface on Verify or Send.
func NewSMTP(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (s *SMTPMailer) client() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.User),
		gomail.WithPassword(s.cfg.Pass),
		gomail.WithTimeout(30 * time.Second),
	}
	if s.cfg.Secure {
		opts = append(opts, gomail.WithSSL())
	}
	if s.cfg.RequireTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if s.cfg.HeloName != "" {
		opts = append(opts, gomail.WithHELO(s.cfg.HeloName))
	}

	c, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return c, nil
}

// Verify dials the relay and authenticates without sending.
func (s *SMTPMailer) Verify(ctx context.Context) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtp verify: %w", err)
	}
	if err := c.Close(); err != nil {
		slog.Debug("Failed to close SMTP verification connection", "error", err)
	}
	return nil
}

// Send delivers msg.
func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	m, err := build(msg)
	if err != nil {
		return err
	}
	c, err := s.client()
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// MockMailer renders messages and logs them instead of sending.
type MockMailer struct {
	mu   sync.Mutex
	sent []Message
}

// NewMock creates a logging mailer.
func NewMock() *MockMailer {
	return &MockMailer{}
}

// Verify always succeeds.
func (m *MockMailer) Verify(context.Context) error { return nil }

// Send renders msg as MIME and logs it.
func (m *MockMailer) Send(_ context.Context, msg Message) error {
	built, err := build(msg)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := built.WriteTo(&buf); err != nil {
		return fmt.Errorf("render message: %w", err)
	}

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	slog.Info("Mock email sent", "to", msg.To, "subject", msg.Subject, "bytes", buf.Len())
	return nil
}

// Sent returns a copy of every message sent so far.
func (m *MockMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}
