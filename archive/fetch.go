package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lukemcguire/linkrot/checker"
	"github.com/lukemcguire/linkrot/config"
	"github.com/lukemcguire/linkrot/logging"
	"github.com/lukemcguire/linkrot/urlutil"
)

// manualHint is logged when automatic discovery fails.
const manualHint = "open the page in a browser, save the post URLs one per line, and pass the file with -url-file"

// Fetcher discovers post URLs over a shared checker.Pool. Discovery never
// fails the run: problems are logged and an empty list is returned.
type Fetcher struct {
	pool    *checker.Pool
	timeout time.Duration
	logger  *zap.Logger

	group singleflight.Group
}

// NewFetcher returns a Fetcher whose page fetches time out after timeout.
func NewFetcher(pool *checker.Pool, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = config.Default().ArchiveFetchTimeout()
	}
	return &Fetcher{
		pool:    pool,
		timeout: timeout,
		logger:  logging.OrNop(logger),
	}
}

// fetch GETs rawURL and returns the decoded body of a 2xx response.
// Concurrent fetches of the same URL share one request.
func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	v, err, _ := f.group.Do(rawURL, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		page, err := f.pool.Get(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if page.StatusCode < 200 || page.StatusCode > 299 {
			return nil, fmt.Errorf("GET %s: %s", rawURL, page.Status)
		}
		return page.Body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// FetchArchive reads {base}/archive and returns the post URLs on it,
// filtered to year when year is positive.
func (f *Fetcher) FetchArchive(ctx context.Context, baseURL string, year int) []string {
	archiveURL := urlutil.JoinBase(baseURL, "archive")
	f.logger.Info("fetching archive", zap.String("url", archiveURL), zap.Int("year", year))

	body, err := f.fetch(ctx, archiveURL)
	if err != nil {
		f.logger.Warn("could not fetch archive",
			zap.String("url", archiveURL),
			zap.Error(err),
			zap.String("hint", manualHint))
		return []string{}
	}

	urls, err := ExtractPostURLs(bytes.NewReader(body), baseURL, year)
	if err != nil {
		f.logger.Warn("could not parse archive",
			zap.String("url", archiveURL),
			zap.Error(err),
			zap.String("hint", manualHint))
		return []string{}
	}

	f.logger.Info("archive posts found", zap.Int("count", len(urls)), zap.Int("year", year))
	return urls
}

// Discover returns post URLs from the given source: config.SourceArchive,
// config.SourceSitemap, or config.SourceAuto (archive first, then the
// sitemap if the archive yields nothing).
func (f *Fetcher) Discover(ctx context.Context, baseURL string, year int, source string) ([]string, error) {
	switch source {
	case config.SourceArchive:
		return f.FetchArchive(ctx, baseURL, year), nil
	case config.SourceSitemap:
		return f.FetchSitemap(ctx, baseURL, year), nil
	case config.SourceAuto, "":
		if urls := f.FetchArchive(ctx, baseURL, year); len(urls) > 0 {
			return urls, nil
		}
		f.logger.Info("archive yielded no posts, trying sitemap", zap.String("base_url", baseURL))
		return f.FetchSitemap(ctx, baseURL, year), nil
	default:
		return nil, fmt.Errorf("unknown post source %q", source)
	}
}
