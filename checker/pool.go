// Package checker verifies URLs over a shared, bounded HTTP connection pool
// with per-attempt timeouts and retry of transient failures.
package checker

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/semaphore"

	"github.com/lukemcguire/linkrot/config"
	"github.com/lukemcguire/linkrot/logging"
	"github.com/lukemcguire/linkrot/metrics"
)

var (
	// ErrPoolClosed is returned for requests made after Close.
	ErrPoolClosed = errors.New("checker: pool closed")
	// ErrBodyTooLarge is returned by Get when a page exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("checker: response body too large")
)

const (
	defaultMaxInFlight  = 5
	defaultMaxRedirects = 10
	defaultMaxBodyBytes = 5 << 20
	drainLimit          = 64 << 10
)

// PoolOptions configures a Pool. Zero values select defaults.
type PoolOptions struct {
	MaxInFlight  int
	MaxRedirects int
	MaxBodyBytes int64
	UserAgent    string
	Accept       string

	// Transport replaces the tuned default transport when set.
	Transport http.RoundTripper
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Pool is a shared HTTP client whose concurrent network attempts are capped
// at MaxInFlight. It is safe for concurrent use.
type Pool struct {
	client       *http.Client
	sem          *semaphore.Weighted
	maxInFlight  int
	maxBodyBytes int64
	userAgent    string
	accept       string
	logger       *zap.Logger
	metrics      *metrics.Metrics

	inFlight atomic.Int64
	closed   atomic.Bool
}

// Response is the outcome of a request whose body was discarded.
type Response struct {
	StatusCode int
	Status     string
	FinalURL   string
}

// Page is a fetched and decoded document.
type Page struct {
	Response
	ContentType string
	Body        []byte
}

// NewPool builds a Pool from opts.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = config.DefaultUserAgent
	}
	if opts.Accept == "" {
		opts.Accept = config.DefaultAccept
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   opts.MaxInFlight,
			MaxConnsPerHost:       opts.MaxInFlight,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		}
	}

	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Pool{
		client:       client,
		sem:          semaphore.NewWeighted(int64(opts.MaxInFlight)),
		maxInFlight:  opts.MaxInFlight,
		maxBodyBytes: opts.MaxBodyBytes,
		userAgent:    opts.UserAgent,
		accept:       opts.Accept,
		logger:       logging.OrNop(opts.Logger),
		metrics:      opts.Metrics,
	}, nil
}

// MaxInFlight returns the concurrent attempt ceiling.
func (p *Pool) MaxInFlight() int {
	return p.maxInFlight
}

// InFlight returns the number of network attempts currently running.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Close releases idle connections. Requests made afterwards fail with
// ErrPoolClosed. Close is idempotent.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.client.CloseIdleConnections()
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	return p.closed.Load()
}

// acquire takes one in-flight slot. The returned func releases it.
func (p *Pool) acquire(ctx context.Context) (func(), error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.inFlight.Add(1)
	p.metrics.IncInFlight()
	return func() {
		p.metrics.DecInFlight()
		p.inFlight.Add(-1)
		p.sem.Release(1)
	}, nil
}

func (p *Pool) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", p.accept)
	return req, nil
}

// request performs one request under its own in-flight slot and discards up
// to 64 KiB of the body so the connection can be reused.
func (p *Pool) request(ctx context.Context, method, rawURL string) (Response, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return Response{}, err
	}
	defer release()
	return p.do(ctx, method, rawURL)
}

func (p *Pool) do(ctx context.Context, method, rawURL string) (Response, error) {
	req, err := p.newRequest(ctx, method, rawURL)
	if err != nil {
		return Response{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	return Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// Get fetches rawURL and returns its body decoded to UTF-8. A non-2xx
// response is returned without a body and without error; the caller decides
// what the status means.
func (p *Pool) Get(ctx context.Context, rawURL string) (Page, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return Page{}, err
	}
	defer release()

	req, err := p.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := p.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	page := Page{
		Response: Response{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			FinalURL:   resp.Request.URL.String(),
		},
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page, nil
	}

	page.Body, err = p.readBody(resp)
	if err != nil {
		return page, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return page, nil
}

func (p *Pool) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		decoded, err := charset.NewReader(reader, ct)
		if err != nil {
			p.logger.Debug("charset detection failed, using raw body",
				zap.String("url", resp.Request.URL.String()),
				zap.String("content_type", ct),
				zap.Error(err))
		} else {
			reader = decoded
		}
	}

	body, err := io.ReadAll(io.LimitReader(reader, p.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > p.maxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, p.maxBodyBytes)
	}
	return body, nil
}
