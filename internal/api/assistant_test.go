package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/severalx/site/internal/chat"
)

func assistantRoutes(t *testing.T, upstream http.HandlerFunc, opts ...chat.ClientOption) http.Handler {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	client := chat.NewClient(srv.URL, 5*time.Second, opts...)
	return routes(NewAssistantHandler(NewHandler(newFakeRepo(), nil, nil), client).RegisterRoutes)
}

func TestAssistantCollectsStream(t *testing.T) {
	h := assistantRoutes(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ask", r.URL.Path)
		assert.Equal(t, "refreshToken=r1", r.Header.Get("Cookie"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "What do you offer?", body["text"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"text\":\"We\",\"conversationId\":\"c1\"}\n\n")
		fmt.Fprint(w, "data: {\"text\":\"We build AI.\",\"messageId\":\"m1\"}\n\n")
		fmt.Fprint(w, "data: {\"final\":true}\n\n")
	})

	rec := do(t, h, http.MethodPost, "/api/chat/assistant", `{"message":"What do you offer?"}`, func(r *http.Request) {
		r.Header.Set("Cookie", "refreshToken=r1")
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"We build AI.","conversationId":"c1","messageId":"m1"}`, rec.Body.String())
}

func TestAssistantUsesAPIKey(t *testing.T) {
	h := assistantRoutes(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Cookie"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":"Hi","id":"m9"}`)
	}, chat.WithAPIKey("k1"))

	rec := do(t, h, http.MethodPost, "/api/chat/assistant", `{"message":"hello"}`, func(r *http.Request) {
		r.Header.Set("Cookie", "refreshToken=r1")
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Hi","messageId":"m9"}`, rec.Body.String())
}

func TestAssistantLoginPage(t *testing.T) {
	h := assistantRoutes(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html>login</html>")
	})

	rec := do(t, h, http.MethodPost, "/api/chat/assistant", `{"message":"hello"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Authentication required. Please log in to the chat first.","action":"login_required"}`, rec.Body.String())
}

func TestAssistantUpstreamErrorHidesDetails(t *testing.T) {
	h := assistantRoutes(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "model backend exploded at /srv/app.js:42")
	})

	rec := do(t, h, http.MethodPost, "/api/chat/assistant", `{"message":"hello"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "exploded")
}

func TestAssistantRequiresMessage(t *testing.T) {
	h := assistantRoutes(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})

	rec := do(t, h, http.MethodPost, "/api/chat/assistant", `{"message":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Message is required"}`, rec.Body.String())
}

func TestAssistantNotConfigured(t *testing.T) {
	h := routes(NewAssistantHandler(NewHandler(newFakeRepo(), nil, nil), chat.NewClient("", time.Second)).RegisterRoutes)

	rec := do(t, h, http.MethodPost, "/api/chat/assistant", `{"message":"hello"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
