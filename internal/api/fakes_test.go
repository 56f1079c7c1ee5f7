//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/severalx/site/internal/config"
	"github.com/severalx/site/internal/domain"
	"github.com/severalx/site/internal/mail"
	"github.com/severalx/site/internal/ratelimit"
	"github.com/severalx/site/internal/store"
)

type fakeRepo struct {
	mu      sync.Mutex
	leads   []*domain.Lead
	members map[string]*domain.Member
	pingErr error
	saveErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{members: make(map[string]*domain.Member)}
}

func (f *fakeRepo) SaveLead(_ context.Context, lead *domain.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if lead.ID == "" {
		lead.ID = "lead-" + time.Now().Format("150405.000000")
	}
	copy := *lead
	f.leads = append(f.leads, &copy)
	return nil
}

func (f *fakeRepo) ListLeads(_ context.Context, _ int) ([]*domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Lead(nil), f.leads...), nil
}

func (f *fakeRepo) UpsertMember(_ context.Context, member *domain.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *member
	f.members[strings.ToLower(member.Email)] = &copy
	return nil
}

func (f *fakeRepo) GetMemberByEmail(_ context.Context, email string) (*domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	copy := *m
	return &copy, nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error                 { return nil }

func (f *fakeRepo) savedLeads() []*domain.Lead {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Lead(nil), f.leads...)
}

type fakeMailer struct {
	mu        sync.Mutex
	verifyErr error
	// sendErr maps a recipient to the error its send returns.
	sendErr map[string]error
	sent    []mail.Message
}

func (f *fakeMailer) Verify(context.Context) error { return f.verifyErr }

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[msg.To]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) messages() []mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mail.Message(nil), f.sent...)
}

// routes mounts a handler's routes on a fresh chi router.
func routes(register func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newTestLimiter(t *testing.T, cfg config.RateLimitConfig) *ratelimit.Memory {
	t.Helper()
	l := ratelimit.NewMemory(cfg.Requests, cfg.Window)
	t.Cleanup(l.Stop)
	return l
}
