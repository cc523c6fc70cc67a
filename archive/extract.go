// Package archive discovers the post URLs of a Substack-style publication
// from its /archive page or its sitemap, and reads and writes URL lists.
package archive

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lukemcguire/linkrot/urlutil"
)

// postMarker identifies post permalinks.
const postMarker = "/p/"

// ExtractPostURLs returns the post links found in an archive page.
// Anchors whose href contains "/p/" are kept; root-relative hrefs are
// joined to baseURL and anything else is kept as written. When year is
// positive, an anchor is kept only if the year appears in its URL or in
// its visible text. The result is sorted and free of duplicates.
func ExtractPostURLs(r io.Reader, baseURL string, year int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return []string{}, fmt.Errorf("parse archive page: %w", err)
	}

	base := urlutil.TrimBase(baseURL)
	yearStr := ""
	if year > 0 {
		yearStr = strconv.Itoa(year)
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.Contains(href, postMarker) {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = base + href
		}
		if yearStr != "" && !strings.Contains(href, yearStr) && !strings.Contains(s.Text(), yearStr) {
			return
		}
		seen[href] = struct{}{}
	})

	return sortedKeys(seen), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
