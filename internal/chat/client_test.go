package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second, opts...)
}

func TestLogin_RelaysStatusBodyAndEveryCookie(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Add("Set-Cookie", "refreshToken=abc; Path=/; HttpOnly")
		w.Header().Add("Set-Cookie", "token_provider=librechat; Path=/")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"token":"jwt","user":{"id":"u1"}}`)
	})

	ex, err := c.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"email": "ada@example.com", "password": "pw"}, got)
	assert.Equal(t, http.StatusOK, ex.Status)
	assert.JSONEq(t, `{"token":"jwt","user":{"id":"u1"}}`, string(ex.Body))

	dst := http.Header{}
	RelayCookies(dst, ex.Cookies)
	assert.Equal(t, []string{
		"refreshToken=abc; Path=/; HttpOnly",
		"token_provider=librechat; Path=/",
	}, dst.Values("Set-Cookie"))
}

func TestLogin_DoesNotFollowRedirects(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("redirect was followed to %s", r.URL.Path)
		}
		w.Header().Set("Location", "/login")
		w.WriteHeader(http.StatusFound)
	})

	ex, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, ex.Status)
	assert.JSONEq(t, `{}`, string(ex.Body))
}

func TestLogin_MalformedBodyBecomesEmptyObject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "<html>nope</html>")
	})

	ex, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, ex.Status)
	assert.JSONEq(t, `{}`, string(ex.Body))
}

func TestLogout_ForwardsCookieHeader(t *testing.T) {
	var cookie string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cookie = r.Header.Get("Cookie")
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "", MaxAge: -1})
		fmt.Fprint(w, `{"message":"Logout successful"}`)
	})

	ex, err := c.Logout(context.Background(), "refreshToken=abc")
	require.NoError(t, err)
	assert.Equal(t, "refreshToken=abc", cookie)
	assert.Equal(t, "Logout successful", ex.Message())
	assert.Len(t, ex.Cookies.SetCookies(), 1)
}

func TestRefresh_SessionRequiresStringToken(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		ok     bool
		user   string
	}{
		{"token and user", 200, `{"token":"t","user":{"id":"u1"}}`, true, `{"id":"u1"}`},
		{"token without user", 200, `{"token":"t"}`, true, `null`},
		{"no token", 200, `{"user":{"id":"u1"}}`, false, ""},
		{"numeric token", 200, `{"token":42}`, false, ""},
		{"upstream 401", 401, `{"token":"t"}`, false, ""},
		{"not json", 200, `oops`, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/auth/refresh", r.URL.Path)
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			})
			ex, err := c.Refresh(context.Background(), "refreshToken=abc")
			require.NoError(t, err)

			user, ok := ex.Session()
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.JSONEq(t, tc.user, string(user))
			}
		})
	}
}

func TestRegister_DerivesConfirmPassword(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.Register(context.Background(), Registration{Name: "Ada", Email: "ada@example.com", Username: "ada", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "pw", got["confirm_password"])
	assert.Equal(t, "ada", got["username"])
}

func TestUnconfiguredClientMakesNoCall(t *testing.T) {
	c := NewClient("", time.Second)
	_, err := c.Login(context.Background(), "a@b.c", "pw")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.Ask(context.Background(), AskRequest{Message: "hi"}, "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCookieSourceFor(t *testing.T) {
	multi := http.Header{}
	multi.Add("Set-Cookie", "a=1")
	multi.Add("Set-Cookie", "b=2")
	assert.Equal(t, MultiValueCookieSource{"a=1", "b=2"}, cookieSourceFor(multi))

	folded := http.Header{"set-cookie": {"a=1"}}
	assert.Equal(t, SingleValueCookieSource("a=1"), cookieSourceFor(folded))

	lowercase := http.Header{"set-cookie": {"a=1; Path=/", "b=2; Expires=Wed, 21 Oct 2026 07:28:00 GMT"}}
	assert.Equal(t, MultiValueCookieSource{"a=1; Path=/", "b=2; Expires=Wed, 21 Oct 2026 07:28:00 GMT"}, cookieSourceFor(lowercase))

	relayed := http.Header{}
	RelayCookies(relayed, cookieSourceFor(lowercase))
	assert.Len(t, relayed.Values("Set-Cookie"), 2)

	assert.Empty(t, cookieSourceFor(http.Header{}).SetCookies())
	assert.Empty(t, SingleValueCookieSource("").SetCookies())

	dst := http.Header{}
	RelayCookies(dst, nil)
	assert.Empty(t, dst)
}

func TestAsk_UsesBearerKeyOverCookies(t *testing.T) {
	var auth, cookie string
	var payload map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		cookie = r.Header.Get("Cookie")
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"Hello!","conversationId":"c1","id":"m1"}`)
	}, WithAPIKey("secret"))

	res, err := c.Ask(context.Background(), AskRequest{Message: "hi"}, "session=1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.Empty(t, cookie)
	assert.Equal(t, "hi", payload["text"])
	assert.Nil(t, payload["conversationId"])
	assert.Equal(t, RootParentMessageID, payload["parentMessageId"])
	assert.Equal(t, DefaultModel, payload["model"])
	assert.Equal(t, DefaultEndpoint, payload["endpoint"])

	assert.Equal(t, &AskResult{Message: "Hello!", ConversationID: "c1", MessageID: "m1"}, res)
}

func TestAsk_ForwardsCookiesWithoutKey(t *testing.T) {
	var cookie string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cookie = r.Header.Get("Cookie")
		fmt.Fprint(w, `{}`)
	})

	res, err := c.Ask(context.Background(), AskRequest{Message: "hi", ConversationID: "c9", ParentMessageID: "p1"}, "session=1")
	require.NoError(t, err)
	assert.Equal(t, "session=1", cookie)
	assert.Equal(t, "Received your message", res.Message)
	assert.Equal(t, "c9", res.ConversationID)
	assert.Equal(t, "p1", res.ParentMessageID)
}

func TestAsk_HTMLMeansLoginRequired(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html>login</html>")
	})

	_, err := c.Ask(context.Background(), AskRequest{Message: "hi"}, "")
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestAsk_UpstreamErrorCarriesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, strings.Repeat("x", 500))
	})

	_, err := c.Ask(context.Background(), AskRequest{Message: "hi"}, "")
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusForbidden, upErr.Status)
	assert.Len(t, upErr.Detail, 200)
}

func TestAskStream_CollectsEventsUntilFinal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message\n")
		fmt.Fprint(w, "data: {\"text\":\"Hel\",\"conversationId\":\"c2\"}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"text\":\"Hello\",\"messageId\":\"m2\"}\n\n")
		fmt.Fprint(w, "data: {\"final\":true}\n\n")
		fmt.Fprint(w, "data: {\"text\":\"ignored\"}\n\n")
	})

	var deltas []Delta
	res, err := c.AskStream(context.Background(), AskRequest{Message: "hi", ParentMessageID: "p0"}, "", func(d Delta) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, deltas, 3)
	assert.True(t, deltas[2].Final)
	assert.Equal(t, &AskResult{Message: "Hello", ConversationID: "c2", MessageID: "m2", ParentMessageID: "p0"}, res)
}

func TestAskStream_CallbackErrorStopsReading(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"text\":\"a\"}\n\ndata: {\"text\":\"ab\"}\n\n")
	})

	stop := errors.New("client gone")
	_, err := c.AskStream(context.Background(), AskRequest{Message: "hi"}, "", func(Delta) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestAskEndpointResolution(t *testing.T) {
	assert.Equal(t, "https://chat.example.com/api/ask", NewClient("https://chat.example.com", 0).AskEndpoint())
	assert.Equal(t, "https://chat.example.com/api/ask/openAI",
		NewClient("https://chat.example.com", 0, WithAskURL("https://chat.example.com/api/ask/openAI")).AskEndpoint())
	assert.Equal(t, "https://ask.example.com/api/ask",
		NewClient("", 0, WithAskURL("https://ask.example.com/")).AskEndpoint())
	assert.Empty(t, NewClient("", 0).AskEndpoint())
}

func TestJSONOrEmpty(t *testing.T) {
	assert.Equal(t, `{}`, string(jsonOrEmpty(nil)))
	assert.Equal(t, `{}`, string(jsonOrEmpty([]byte("null"))))
	assert.Equal(t, `[1]`, string(jsonOrEmpty([]byte(" [1] "))))
}

func TestFailureFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		action string
	}{
		{"not configured", ErrNotConfigured, http.StatusServiceUnavailable, ""},
		{"login page", fmt.Errorf("ask: %w", ErrLoginRequired), http.StatusUnauthorized, ActionLoginRequired},
		{"upstream 401", &UpstreamError{Status: 401}, http.StatusUnauthorized, ActionLoginRequired},
		{"upstream 403", &UpstreamError{Status: 403}, http.StatusForbidden, ""},
		{"upstream 429", &UpstreamError{Status: 429, Detail: "slow down"}, http.StatusTooManyRequests, ""},
		{"transport", errors.New("dial tcp: refused"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FailureFor(tt.err)
			assert.Equal(t, tt.status, f.Status)
			assert.Equal(t, tt.action, f.Action)
			assert.NotContains(t, f.Message, "slow down")
		})
	}
}
