package chat

import (
	"net/http"
	"strings"
)

// CookieSource yields the Set-Cookie directives of one upstream response.
type CookieSource interface {
	SetCookies() []string
}

// MultiValueCookieSource holds Set-Cookie directives exposed one per header line.
type MultiValueCookieSource []string

// SetCookies returns each directive as received.
func (m MultiValueCookieSource) SetCookies() []string { return m }

// SingleValueCookieSource holds a single Set-Cookie value, as exposed by
// transports that fold the header into one field.
type SingleValueCookieSource string

// SetCookies returns the value as one directive, or nothing when empty.
func (s SingleValueCookieSource) SetCookies() []string {
	if s == "" {
		return nil
	}
	return []string{string(s)}
}

// cookieSourceFor picks the cookie capability of h once, at the adapter
// boundary. Canonical multi-value headers win. A non-canonical key (set by
// hand-built or folded responses) keeps its values separate when there are
// several, and falls back to the single value otherwise.
func cookieSourceFor(h http.Header) CookieSource {
	if values := h.Values("Set-Cookie"); len(values) > 0 {
		return MultiValueCookieSource(append([]string(nil), values...))
	}
	for key, values := range h {
		if !strings.EqualFold(key, "Set-Cookie") {
			continue
		}
		switch len(values) {
		case 0:
		case 1:
			return SingleValueCookieSource(values[0])
		default:
			return MultiValueCookieSource(append([]string(nil), values...))
		}
	}
	return MultiValueCookieSource(nil)
}

// RelayCookies appends every directive from src to dst as its own header line.
func RelayCookies(dst http.Header, src CookieSource) {
	if src == nil {
		return
	}
	for _, c := range src.SetCookies() {
		dst.Add("Set-Cookie", c)
	}
}
