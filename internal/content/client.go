// Package content fetches publication collections through the site's relay
// endpoint and composes them into display lists.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/severalx/site/internal/domain"
	"github.com/severalx/site/internal/metrics"
	"github.com/severalx/site/internal/retry"
)

// RelayPath is the same-origin endpoint serving collections.
const RelayPath = "/api/publications"

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.policy.Timeout = d
	}
}

// WithMetrics records relay calls.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client performs one logical collection query per call. It holds no state
// between calls beyond its HTTP client.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	policy     retry.Policy
	metrics    *metrics.Metrics
}

// NewClient creates a relay client rooted at baseURL (the site origin).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		policy:     retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = c.metrics.RetryHook("relay")
	}
	return c
}

// FetchCollection queries one collection. limit <= 0 leaves the limit to the
// relay. It returns nil when no data is available; the failure is logged.
func (c *Client) FetchCollection(ctx context.Context, name domain.Collection, limit int) *domain.ContentQueryResult {
	params := url.Values{"collection": {string(name)}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	endpoint := c.baseURL + RelayPath + "?" + params.Encode()

	start := time.Now()
	var result domain.ContentQueryResult
	err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		return c.get(ctx, endpoint, &result)
	})
	if err != nil {
		c.metrics.ObserveUpstream("relay", relayOutcome(err), time.Since(start))
		slog.Error("Failed to fetch collection", "collection", name, "error", err)
		return nil
	}
	c.metrics.ObserveUpstream("relay", metrics.OutcomeOK, time.Since(start))

	if result.Posts == nil {
		result.Posts = []domain.ContentItem{}
	}
	return &result
}

func (c *Client) get(ctx context.Context, endpoint string, out *domain.ContentQueryResult) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &retry.StatusError{StatusCode: resp.StatusCode, Target: "relay"}
	}

	*out = domain.ContentQueryResult{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode collection: %w", err)
	}
	return nil
}

func relayOutcome(err error) string {
	switch {
	case errors.Is(err, retry.ErrExhausted):
		return metrics.OutcomeExhausted
	case retry.StatusCode(err) != 0:
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
