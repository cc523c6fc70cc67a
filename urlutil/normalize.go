package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Normalize returns a canonical form of rawURL used for de-duplicating
// outbound links: scheme and host lowercased, fragment stripped, trailing
// slash removed except on the root path, query preserved.
//
// Returns an error if the input is empty or is not an absolute URL.
func Normalize(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("cannot normalize empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize URL %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("normalize URL %q: missing scheme or host", rawURL)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""

	if parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
		parsed.RawPath = ""
	}

	return parsed.String(), nil
}

// IsHTTPScheme returns true if the URL has an http or https scheme.
// Returns false for empty strings, non-HTTP schemes, or unparseable URLs.
func IsHTTPScheme(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

// SameSite reports whether targetURL is served by the site at baseHost.
// A leading "www." is ignored on both sides; other subdomains are
// treated as different sites.
func SameSite(targetURL string, baseHost string) bool {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	return trimWWW(parsed.Hostname()) == trimWWW(baseHost)
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
