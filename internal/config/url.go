package config

import (
	"errors"
	"regexp"
	"strings"
)

var schemePattern = regexp.MustCompile(`(?i)^https?://`)

// ErrEmptyURL is returned when a URL setting is blank.
var ErrEmptyURL = errors.New("URL is empty")

// EnsureAbsoluteURL adds a scheme to host-only URLs. Local, internal and
// IP-literal hosts get http://, everything else https://.
func EnsureAbsoluteURL(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", ErrEmptyURL
	}

	if schemePattern.MatchString(raw) {
		return raw, nil
	}

	if strings.HasPrefix(raw, "//") {
		return "https:" + raw, nil
	}

	lower := strings.ToLower(raw)
	first := lower[0]
	useHTTP := strings.Contains(lower, ".internal") ||
		strings.HasPrefix(lower, "localhost") ||
		(first >= '0' && first <= '9') ||
		first == '['

	if useHTTP {
		return "http://" + raw, nil
	}
	return "https://" + raw, nil
}
