// Package chat talks to the external chat platform: session login, logout,
// refresh and registration, plus the assistant ask endpoint.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/severalx/site/internal/metrics"
)

// ErrNotConfigured is returned when no chat base URL is set.
var ErrNotConfigured = errors.New("chat api base url is not configured")

const maxBodyBytes = 1 << 20

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. It must not follow redirects.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAskURL overrides the assistant endpoint.
func WithAskURL(askURL string) ClientOption {
	return func(c *Client) {
		c.askURL = strings.TrimRight(askURL, "/")
	}
}

// WithAPIKey authenticates assistant calls with a bearer key instead of the
// caller's cookies.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithMetrics records upstream calls.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client is the adapter for the chat platform's HTTP API.
type Client struct {
	baseURL    string
	askURL     string
	apiKey     string
	httpClient HTTPClient
	metrics    *metrics.Metrics
}

// NewClient creates a chat client. timeout bounds each call; zero disables it.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the base URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// BaseURL returns the normalised chat platform origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Exchange is one relayed session call. It is never persisted.
type Exchange struct {
	Status  int
	Body    json.RawMessage
	Cookies CookieSource
}

// OK reports a 2xx upstream status.
func (e *Exchange) OK() bool {
	return e.Status >= 200 && e.Status <= 299
}

// Session returns the user object when the exchange carries a valid session,
// that is a 2xx status and a string token.
func (e *Exchange) Session() (json.RawMessage, bool) {
	if !e.OK() {
		return nil, false
	}
	var payload struct {
		Token any             `json:"token"`
		User  json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return nil, false
	}
	if _, ok := payload.Token.(string); !ok {
		return nil, false
	}
	if len(payload.User) == 0 {
		return json.RawMessage("null"), true
	}
	return payload.User, true
}

// Message returns the upstream "message" field, if any.
func (e *Exchange) Message() string {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(e.Body, &payload)
	return payload.Message
}

// Login posts credentials to /api/auth/login.
func (c *Client) Login(ctx context.Context, email, password string) (*Exchange, error) {
	return c.post(ctx, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Logout forwards the caller's Cookie header to /api/auth/logout.
func (c *Client) Logout(ctx context.Context, cookie string) (*Exchange, error) {
	return c.post(ctx, "/api/auth/logout", cookie, nil)
}

// Refresh forwards the caller's Cookie header to /api/auth/refresh.
func (c *Client) Refresh(ctx context.Context, cookie string) (*Exchange, error) {
	return c.post(ctx, "/api/auth/refresh", cookie, nil)
}

// Registration is a new chat account.
type Registration struct {
	Name     string
	Email    string
	Username string
	Password string
}

// Register creates an account at /api/auth/register.
func (c *Client) Register(ctx context.Context, reg Registration) (*Exchange, error) {
	return c.post(ctx, "/api/auth/register", "", map[string]string{
		"name":             reg.Name,
		"email":            reg.Email,
		"username":         reg.Username,
		"password":         reg.Password,
		"confirm_password": reg.Password,
	})
}

func (c *Client) post(ctx context.Context, path, cookie string, payload any) (*Exchange, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("chat", metrics.OutcomeError, time.Since(start))
		return nil, fmt.Errorf("chat %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.ObserveUpstream("chat", metrics.OutcomeError, time.Since(start))
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	outcome := metrics.OutcomeOK
	if resp.StatusCode >= 400 {
		outcome = metrics.OutcomeRejected
	}
	c.metrics.ObserveUpstream("chat", outcome, time.Since(start))

	return &Exchange{
		Status:  resp.StatusCode,
		Body:    jsonOrEmpty(raw),
		Cookies: cookieSourceFor(resp.Header),
	}, nil
}

// jsonOrEmpty replaces anything that is not a JSON value with {}.
func jsonOrEmpty(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(trimmed)
}
