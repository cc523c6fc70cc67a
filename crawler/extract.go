package crawler

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/lukemcguire/linkrot/urlutil"
)

// ExtractLinks parses HTML from body and returns the normalized absolute
// http(s) URLs of its anchors, in document order without duplicates.
// Relative hrefs are resolved against pageURL. Empty and fragment-only
// hrefs refer to the page itself and are skipped.
//
// Hrefs that cannot be parsed are skipped and reported together in the
// returned error; the links that could be extracted are always returned.
func ExtractLinks(body io.Reader, pageURL *url.URL) ([]string, error) {
	tokenizer := html.NewTokenizer(body)
	seen := make(map[string]bool)
	links := []string{}
	var errs []error

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != nil && !errors.Is(err, io.EOF) {
				errs = append(errs, fmt.Errorf("tokenize: %w", err))
			}
			if len(errs) > 0 {
				return links, fmt.Errorf("encountered %d errors (first: %w)", len(errs), errs[0])
			}
			return links, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "href" {
					link, err := resolveHref(string(val), pageURL)
					if err != nil {
						errs = append(errs, err)
					} else if link != "" && !seen[link] {
						seen[link] = true
						links = append(links, link)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

// resolveHref returns the normalized absolute URL for href, or "" if the
// href should be ignored.
func resolveHref(href string, pageURL *url.URL) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", nil
	}

	hrefURL, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	resolved := pageURL.ResolveReference(hrefURL).String()

	if !urlutil.IsHTTPScheme(resolved) {
		return "", nil
	}
	normalized, err := urlutil.Normalize(resolved)
	if err != nil {
		return "", err
	}
	return normalized, nil
}
