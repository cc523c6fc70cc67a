package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidBaseURL is returned when a site base URL cannot be used.
var ErrInvalidBaseURL = errors.New("invalid base URL")

// ValidateBase checks that rawURL is an absolute http(s) URL with a host and
// returns it parsed.
func ValidateBase(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBaseURL)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidBaseURL, rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidBaseURL, rawURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidBaseURL, rawURL)
	}
	return parsed, nil
}

// TrimBase removes trailing slashes so paths can be appended directly.
func TrimBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

// JoinBase appends an absolute path to the trimmed base URL.
func JoinBase(base, path string) string {
	return TrimBase(base) + "/" + strings.TrimLeft(path, "/")
}

// HostSlug returns a filesystem-safe name derived from the base URL's host,
// e.g. "x.substack.com" or "localhost_8080".
func HostSlug(base string) string {
	host := TrimBase(base)
	if parsed, err := url.Parse(host); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	var b strings.Builder
	for _, r := range strings.ToLower(host) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
