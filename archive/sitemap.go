package archive

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/lukemcguire/linkrot/urlutil"
)

// maxIndexDepth bounds how far nested sitemap indexes are followed.
const maxIndexDepth = 2

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// sitemapDoc decodes both <urlset> and <sitemapindex> documents.
type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []sitemapEntry `xml:"url"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

// FetchSitemap returns the post URLs listed in the site's sitemaps. The
// sitemap locations come from robots.txt, falling back to /sitemap.xml.
func (f *Fetcher) FetchSitemap(ctx context.Context, baseURL string, year int) []string {
	locations := f.sitemapLocations(ctx, baseURL)

	yearStr := ""
	if year > 0 {
		yearStr = strconv.Itoa(year)
	}

	seen := make(map[string]struct{})
	for _, loc := range locations {
		f.collectSitemap(ctx, loc, yearStr, 0, seen)
	}

	urls := sortedKeys(seen)
	if len(urls) == 0 {
		f.logger.Warn("no posts found in sitemap",
			zap.String("base_url", baseURL),
			zap.Strings("sitemaps", locations),
			zap.String("hint", manualHint))
	} else {
		f.logger.Info("sitemap posts found", zap.Int("count", len(urls)), zap.Int("year", year))
	}
	return urls
}

func (f *Fetcher) sitemapLocations(ctx context.Context, baseURL string) []string {
	fallback := []string{urlutil.JoinBase(baseURL, "sitemap.xml")}
	robotsURL := urlutil.JoinBase(baseURL, "robots.txt")

	body, err := f.fetch(ctx, robotsURL)
	if err != nil {
		f.logger.Debug("robots.txt unavailable, using default sitemap",
			zap.String("url", robotsURL), zap.Error(err))
		return fallback
	}
	robots, err := robotstxt.FromBytes(body)
	if err != nil || len(robots.Sitemaps) == 0 {
		return fallback
	}
	return robots.Sitemaps
}

func (f *Fetcher) collectSitemap(ctx context.Context, loc, yearStr string, depth int, seen map[string]struct{}) {
	body, err := f.fetch(ctx, loc)
	if err != nil {
		f.logger.Warn("could not fetch sitemap", zap.String("url", loc), zap.Error(err))
		return
	}

	doc, err := decodeSitemap(body)
	if err != nil {
		f.logger.Warn("could not parse sitemap", zap.String("url", loc), zap.Error(err))
		return
	}

	switch doc.XMLName.Local {
	case "urlset":
		for _, u := range doc.URLs {
			post := strings.TrimSpace(u.Loc)
			if !strings.Contains(post, postMarker) {
				continue
			}
			if yearStr != "" && !strings.Contains(post, yearStr) && !strings.Contains(u.LastMod, yearStr) {
				continue
			}
			seen[post] = struct{}{}
		}
	case "sitemapindex":
		if depth >= maxIndexDepth {
			f.logger.Debug("sitemap index too deep, skipping", zap.String("url", loc))
			return
		}
		for _, sm := range doc.Sitemaps {
			if child := strings.TrimSpace(sm.Loc); child != "" {
				f.collectSitemap(ctx, child, yearStr, depth+1, seen)
			}
		}
	}
}

func decodeSitemap(body []byte) (sitemapDoc, error) {
	var doc sitemapDoc
	dec := xml.NewDecoder(bytes.NewReader(body))
	// Pool.Get has already decoded the body to UTF-8.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := dec.Decode(&doc); err != nil {
		return sitemapDoc{}, fmt.Errorf("decode sitemap: %w", err)
	}
	switch doc.XMLName.Local {
	case "urlset", "sitemapindex":
		return doc, nil
	default:
		return sitemapDoc{}, fmt.Errorf("unexpected sitemap root <%s>", doc.XMLName.Local)
	}
}
