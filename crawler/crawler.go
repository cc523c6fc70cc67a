// Package crawler runs a link-rot check over a publication: it discovers
// the post URLs, collects the outbound links of every post, and checks each
// distinct link, streaming progress events for the TUI.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/linkrot/archive"
	"github.com/lukemcguire/linkrot/checker"
	"github.com/lukemcguire/linkrot/config"
	"github.com/lukemcguire/linkrot/logging"
	"github.com/lukemcguire/linkrot/metrics"
	"github.com/lukemcguire/linkrot/result"
	"github.com/lukemcguire/linkrot/urlutil"
)

// Config holds crawler configuration.
type Config struct {
	config.Config

	Transport http.RoundTripper // replaces the default HTTP transport when set
	Metrics   *metrics.Metrics  // optional
}

// Crawler coordinates discovery, post fetching and link checking.
type Crawler struct {
	cfg    Config
	base   *url.URL
	events chan<- Event
	logger *zap.Logger
}

// New creates a Crawler. It fails with urlutil.ErrInvalidBaseURL if the
// base URL is not an absolute http(s) URL. The events channel is optional;
// pass nil to disable progress events.
func New(cfg Config, events chan<- Event, logger *zap.Logger) (*Crawler, error) {
	base, err := urlutil.ValidateBase(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	def := config.Default()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = def.ArchiveTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Source == "" {
		cfg.Source = def.Source
	}

	return &Crawler{
		cfg:    cfg,
		base:   base,
		events: events,
		logger: logging.OrNop(logger),
	}, nil
}

func (c *Crawler) retryPolicy() checker.RetryPolicy {
	return checker.RetryPolicy{
		MaxAttempts: c.cfg.MaxAttempts,
		Timeout:     c.cfg.PerAttemptTimeout(),
		BaseDelay:   c.cfg.RetryDelay,
		MaxDelay:    c.cfg.MaxRetryDelay,
		Verbose:     c.cfg.Verbose,
	}
}

// Run executes the check and returns the report. A run that finds no posts
// returns an empty report. If ctx is cancelled the partial report is
// returned together with the context error.
func (c *Crawler) Run(ctx context.Context) (*result.Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := c.logger.With(zap.String("run_id", runID))

	pool, err := checker.NewPool(checker.PoolOptions{
		MaxInFlight: c.cfg.Concurrency,
		UserAgent:   c.cfg.UserAgent,
		Accept:      c.cfg.Accept,
		Transport:   c.cfg.Transport,
		Logger:      logger,
		Metrics:     c.cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	posts, err := c.posts(ctx, pool, logger)
	if err != nil {
		return nil, err
	}
	c.emit(ctx, Event{Phase: PhaseDiscover, Done: len(posts), Total: len(posts)})
	logger.Info("posts to check", zap.Int("count", len(posts)), zap.String("base_url", c.cfg.BaseURL))

	chk := checker.New(pool, c.retryPolicy(), logger)

	var links []result.LinkCheckResult
	fetched := 0
	switch {
	case len(posts) == 0:
		logger.Warn("no posts found, nothing to check")
	case c.cfg.CheckPostsOnly:
		links = c.checkLinks(ctx, chk, posts, nil)
	default:
		index, failed := c.collectLinks(ctx, pool, posts, logger)
		fetched = len(posts) - len(failed)

		targets := make([]string, 0, len(index))
		for link := range index {
			if _, isFailedPost := failed[link]; !isFailedPost {
				targets = append(targets, link)
			}
		}
		slices.Sort(targets)
		logger.Info("links to check", zap.Int("count", len(targets)), zap.Int("posts_fetched", fetched))

		links = c.checkLinks(ctx, chk, targets, index)
		for post, res := range failed {
			links = append(links, res.WithSources(index[post]))
		}
	}

	report := result.NewReport(runID, c.cfg.BaseURL, c.cfg.Year, posts, links, time.Since(start))
	report.Stats.PostsFetched = fetched

	logger.Info("run complete",
		zap.Int("links_checked", report.Stats.LinksChecked),
		zap.Int("broken", report.Stats.BrokenCount),
		zap.Duration("duration", report.Stats.Duration))

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run interrupted: %w", err)
	}
	return report, nil
}

// posts returns the post URLs from the URL file when one is configured,
// otherwise from archive or sitemap discovery.
func (c *Crawler) posts(ctx context.Context, pool *checker.Pool, logger *zap.Logger) ([]string, error) {
	if c.cfg.URLFile != "" {
		urls, err := archive.ReadURLFile(c.cfg.URLFile)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded post URLs from file", zap.String("path", c.cfg.URLFile), zap.Int("count", len(urls)))
		return urls, nil
	}

	fetcher := archive.NewFetcher(pool, c.cfg.ArchiveFetchTimeout(), logger)
	urls, err := fetcher.Discover(ctx, c.cfg.BaseURL, c.cfg.Year, c.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("discover posts: %w", err)
	}
	return urls, nil
}

// collectLinks fetches every post and indexes its outbound links. The index
// maps each link to the sorted posts referencing it. Posts that could not
// be fetched are returned as broken results keyed by post URL.
func (c *Crawler) collectLinks(ctx context.Context, pool *checker.Pool, posts []string, logger *zap.Logger) (map[string][]string, map[string]result.LinkCheckResult) {
	index := make(map[string][]string)
	failed := make(map[string]result.LinkCheckResult)
	var mu sync.Mutex
	done := 0

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for _, post := range posts {
		g.Go(func() error {
			links, res := c.fetchPost(ctx, pool, post, logger)

			mu.Lock()
			defer mu.Unlock()
			done++
			if res.IsBroken {
				failed[post] = res
				c.cfg.Metrics.ObservePost("failed")
			} else {
				c.cfg.Metrics.ObservePost("ok")
			}
			for _, link := range links {
				index[link] = append(index[link], post)
			}
			c.emit(ctx, Event{
				Phase:    PhaseFetchPosts,
				URL:      post,
				Category: res.ErrorType,
				Done:     done,
				Total:    len(posts),
				Broken:   len(failed),
			})
			return nil
		})
	}
	_ = g.Wait()

	for link := range index {
		slices.Sort(index[link])
		index[link] = slices.Compact(index[link])
	}
	return index, failed
}

// fetchPost downloads one post and returns the links to check on it along
// with the outcome of the fetch itself.
func (c *Crawler) fetchPost(ctx context.Context, pool *checker.Pool, post string, logger *zap.Logger) ([]string, result.LinkCheckResult) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.PerAttemptTimeout())
	defer cancel()

	page, err := pool.Get(reqCtx, post)
	if err != nil {
		res := result.NewLinkCheckResult(post, result.ClassifyError(err, 0), err.Error(), 0)
		logger.Warn("could not fetch post", zap.String("url", post), zap.Error(err))
		return nil, res
	}
	res := result.NewLinkCheckResult(post, result.ClassifyError(nil, page.StatusCode), page.Status, page.StatusCode)
	if res.IsBroken {
		logger.Warn("could not fetch post", zap.String("url", post), zap.String("status", page.Status))
		return nil, res
	}

	pageURL, err := url.Parse(page.FinalURL)
	if err != nil {
		pageURL = c.base
	}
	all, err := ExtractLinks(bytes.NewReader(page.Body), pageURL)
	if err != nil {
		logger.Debug("some links could not be parsed", zap.String("url", post), zap.Error(err))
	}

	self, _ := urlutil.Normalize(page.FinalURL)
	links := make([]string, 0, len(all))
	for _, link := range all {
		if link == self {
			continue
		}
		if !c.cfg.IncludeInternal && urlutil.SameSite(link, c.base.Hostname()) {
			continue
		}
		links = append(links, link)
	}
	logger.Debug("post read", zap.String("url", post), zap.Int("links", len(links)))
	return links, res
}

// checkLinks checks targets and attaches the posts each link was found on.
func (c *Crawler) checkLinks(ctx context.Context, chk *checker.Checker, targets []string, index map[string][]string) []result.LinkCheckResult {
	checked, broken := 0, 0
	results := chk.CheckAll(ctx, targets, func(r result.LinkCheckResult) {
		checked++
		if r.IsBroken {
			broken++
		}
		c.emit(ctx, Event{
			Phase:    PhaseCheckLinks,
			URL:      r.URL,
			Category: r.ErrorType,
			Done:     checked,
			Total:    len(targets),
			Broken:   broken,
		})
	})

	for i, r := range results {
		if sources, ok := index[r.URL]; ok {
			results[i] = r.WithSources(sources)
		}
	}
	return results
}

// emit sends ev unless events are disabled or ctx is done.
func (c *Crawler) emit(ctx context.Context, ev Event) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
