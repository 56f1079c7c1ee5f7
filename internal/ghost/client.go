// Package ghost reads published posts from the Ghost Content API.
package ghost

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

// ErrNotConfigured is returned when the Ghost URL or key is missing.
var ErrNotConfigured = errors.New("ghost api credentials not configured")

// APIError describes a failed Ghost call. Status is the upstream HTTP status,
// or 0 when no response arrived (timeout, connection failure).
type APIError struct {
	Status int
	Err    error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("ghost api request failed: %v", e.Err)
	}
	return fmt.Sprintf("ghost api error: %d", e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// Query is the fixed Ghost filter behind a collection.
type Query struct {
	Limit   int
	Filter  string
	Include []string
}

var queries = map[domain.Collection]Query{
	domain.CollectionFeatured: {
		Limit:   3,
		Filter:  "status:published+featured:true",
		Include: []string{"tags", "authors"},
	},
	domain.CollectionRecent: {
		Limit:   6,
		Filter:  "status:published",
		Include: []string{"tags", "authors"},
	},
	domain.CollectionCaseStudies: {
		Limit:   10,
		Filter:  "status:published+tag:case-study",
		Include: []string{"tags", "authors"},
	},
}

// QueryFor returns the Ghost query for c.
func QueryFor(c domain.Collection) (Query, bool) {
	q, ok := queries[c]
	return q, ok
}

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

// WithMetrics records upstream calls.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client fetches posts from one Ghost site.
type Client struct {
	baseURL    string
	key        string
	httpClient HTTPClient
	policy     retry.Policy
	metrics    *metrics.Metrics
}

// NewClient creates a Ghost client. An empty url or key yields a client whose
// every call fails with ErrNotConfigured.
func NewClient(baseURL, key string, opts ...ClientOption) *Client {
	p := retry.DefaultPolicy()
	p.Timeout = 5 * time.Second

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		httpClient: &http.Client{},
		policy:     p,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = c.metrics.RetryHook("ghost")
	}
	return c
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.key != ""
}

// Posts fetches a collection. limit <= 0 uses the collection default.
func (c *Client) Posts(ctx context.Context, collection domain.Collection, limit int) (*domain.ContentQueryResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	q, ok := QueryFor(collection)
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	if limit <= 0 {
		limit = q.Limit
	}

	endpoint := c.baseURL + "/ghost/api/content/posts/?" + url.Values{
		"key":     {c.key},
		"filter":  {q.Filter},
		"limit":   {strconv.Itoa(limit)},
		"include": {strings.Join(q.Include, ",")},
	}.Encode()

	start := time.Now()
	var page postsPage
	err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		return c.fetch(ctx, endpoint, &page)
	})
	if err != nil {
		c.metrics.ObserveUpstream("ghost", outcome(err), time.Since(start))
		slog.Warn("Ghost request failed", "collection", collection, "error", err)
		return nil, &APIError{Status: retry.StatusCode(err), Err: err}
	}
	c.metrics.ObserveUpstream("ghost", metrics.OutcomeOK, time.Since(start))

	return page.toResult(), nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, out *postsPage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &retry.StatusError{StatusCode: resp.StatusCode, Target: "ghost"}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ghost response: %w", err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, retry.ErrExhausted):
		return metrics.OutcomeExhausted
	case retry.StatusCode(err) != 0:
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
