package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveUpstream("relay", OutcomeOK, time.Second)
	m.ContactResult("sent")
	m.SignupResult("created")
	m.Limited("/api/contact")
	m.SetChatSockets(3)
	assert.Nil(t, m.RetryHook("relay"))
	assert.NotNil(t, m.Handler())
}

func TestCountersRecordLabels(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveUpstream("ghost", OutcomeOK, 20*time.Millisecond)
	m.ObserveUpstream("ghost", OutcomeOK, 30*time.Millisecond)
	m.RetryHook("ghost")(1, nil)
	m.Limited("/api/contact")

	body := scrape(t, m)
	assert.Contains(t, body, `site_upstream_requests_total{outcome="ok",target="ghost"} 2`)
	assert.Contains(t, body, `site_upstream_retries_total{target="ghost"} 1`)
	assert.Contains(t, body, `site_rate_limited_total{route="/api/contact"} 1`)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ContactResult("sent")

	assert.Contains(t, scrape(t, m), `site_contact_submissions_total{result="sent"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
