// Package metrics exposes Prometheus instrumentation for the site backend.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "site"

// Upstream request outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

// Metrics holds all site metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	UpstreamRetries  *prometheus.CounterVec

	ContactSubmissions *prometheus.CounterVec
	Signups            *prometheus.CounterVec
	RateLimited        *prometheus.CounterVec
	ChatSockets        prometheus.Gauge
}

// New registers every metric on reg. Pass a fresh prometheus.NewRegistry()
// in tests to avoid duplicate registration panics.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{gatherer: reg}

	m.UpstreamRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Upstream calls by target and outcome",
	}, []string{"target", "outcome"})

	m.UpstreamDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Wall time of upstream calls including retries",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"target"})

	m.UpstreamRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_retries_total",
		Help:      "Retry attempts issued after transient upstream failures",
	}, []string{"target"})

	m.ContactSubmissions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "contact_submissions_total",
		Help:      "Contact form submissions by result",
	}, []string{"result"})

	m.Signups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signups_total",
		Help:      "Chat account signups by result",
	}, []string{"result"})

	m.RateLimited = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	}, []string{"route"})

	m.ChatSockets = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chat_sockets_active",
		Help:      "Open chat websocket connections",
	})

	return m
}

// Handler returns the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveUpstream records one logical upstream call.
func (m *Metrics) ObserveUpstream(target, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(target, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(target).Observe(elapsed.Seconds())
}

// RetryHook returns a retry.Policy OnRetry callback counting retries for target.
func (m *Metrics) RetryHook(target string) func(int, error) {
	if m == nil {
		return nil
	}
	return func(int, error) {
		m.UpstreamRetries.WithLabelValues(target).Inc()
	}
}

// ContactResult counts a contact form outcome.
func (m *Metrics) ContactResult(result string) {
	if m == nil {
		return
	}
	m.ContactSubmissions.WithLabelValues(result).Inc()
}

// SignupResult counts a signup outcome.
func (m *Metrics) SignupResult(result string) {
	if m == nil {
		return
	}
	m.Signups.WithLabelValues(result).Inc()
}

// Limited counts a rate-limit rejection on route.
func (m *Metrics) Limited(route string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(route).Inc()
}

// SetChatSockets records the number of live chat websockets.
func (m *Metrics) SetChatSockets(n int) {
	if m == nil {
		return
	}
	m.ChatSockets.Set(float64(n))
}
