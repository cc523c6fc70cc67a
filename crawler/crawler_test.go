package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lukemcguire/linkrot/config"
	"github.com/lukemcguire/linkrot/crawler"
	"github.com/lukemcguire/linkrot/metrics"
	"github.com/lukemcguire/linkrot/result"
	"github.com/lukemcguire/linkrot/urlutil"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// newExternalServer serves the targets of outbound links.
func newExternalServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return httptest.NewServer(mux)
}

// newSiteServer creates a publication for integration testing.
// Site structure:
//
//	/archive  -> /p/one, /p/two, /p/gone
//	/p/one    -> ext/ok, ext/missing, /about (internal), ext/ok (dup)
//	/p/two    -> ext/ok, nonexistent.invalid
//	/p/gone   -> 404
//	/about    -> 200
func newSiteServer() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/archive", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/p/one">One</a>
			<a href="/p/two">Two</a>
			<a href="/p/gone">Gone</a>
			<a href="/about">About</a>
		</body></html>`)
	})
	mux.HandleFunc("/p/one", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="http://ext.example/ok">ok</a>
			<a href="http://ext.example/missing">missing</a>
			<a href="/about">about</a>
			<a href="http://ext.example/ok#again">ok again</a>
			<a href="/p/one">self</a>
		</body></html>`)
	})
	mux.HandleFunc("/p/two", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="http://ext.example/ok">ok</a>
			<a href="https://nonexistent.invalid/x">dead domain</a>
		</body></html>`)
	})
	mux.HandleFunc("/p/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>about</body></html>`)
	})

	return httptest.NewServer(mux)
}

// routingTransport sends ext.example to the external server and fails
// .invalid hosts name resolution.
func routingTransport(ext *httptest.Server) http.RoundTripper {
	extHost := strings.TrimPrefix(ext.URL, "http://")
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch host := req.URL.Hostname(); {
		case host == "ext.example":
			out := req.Clone(req.Context())
			out.URL.Host = extHost
			out.Host = extHost
			return http.DefaultTransport.RoundTrip(out)
		case strings.HasSuffix(host, ".invalid"):
			return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
		default:
			return http.DefaultTransport.RoundTrip(req)
		}
	})
}

func testConfig(base string, transport http.RoundTripper) crawler.Config {
	cfg := config.Default()
	cfg.BaseURL = base
	cfg.Concurrency = 2
	cfg.Timeout = 5
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 5 * time.Millisecond
	return crawler.Config{Config: cfg, Transport: transport}
}

// mustNewCrawler creates a crawler or fails the test.
func mustNewCrawler(t *testing.T, cfg crawler.Config, events chan<- crawler.Event) *crawler.Crawler {
	t.Helper()
	c, err := crawler.New(cfg, events, nil)
	if err != nil {
		t.Fatalf("crawler.New() error: %v", err)
	}
	return c
}

func linkByURL(report *result.Report) map[string]result.LinkCheckResult {
	out := make(map[string]result.LinkCheckResult, len(report.Links))
	for _, l := range report.Links {
		out[l.URL] = l
	}
	return out
}

// TestCrawlerIntegration verifies the full run from archive discovery
// through outbound link checks.
func TestCrawlerIntegration(t *testing.T) {
	site := newSiteServer()
	defer site.Close()
	ext := newExternalServer()
	defer ext.Close()

	cfg := testConfig(site.URL, routingTransport(ext))
	cfg.Metrics = metrics.New()
	events := make(chan crawler.Event, 100)

	report, err := mustNewCrawler(t, cfg, events).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	wantPosts := []string{site.URL + "/p/gone", site.URL + "/p/one", site.URL + "/p/two"}
	if !slices.Equal(report.Posts, wantPosts) {
		t.Errorf("posts = %v, want %v", report.Posts, wantPosts)
	}
	if report.Stats.PostsFound != 3 || report.Stats.PostsFetched != 2 {
		t.Errorf("posts found/fetched = %d/%d, want 3/2", report.Stats.PostsFound, report.Stats.PostsFetched)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}

	links := linkByURL(report)
	if len(links) != 4 || report.Stats.LinksChecked != 4 {
		t.Fatalf("got %d links (%d checked), want 4: %v", len(links), report.Stats.LinksChecked, report.Links)
	}
	if _, ok := links[site.URL+"/about"]; ok {
		t.Error("internal link was checked without IncludeInternal")
	}

	ok := links["http://ext.example/ok"]
	if ok.IsBroken || ok.StatusCode != 200 {
		t.Errorf("ext/ok = %+v, want OK 200", ok)
	}
	if want := []string{site.URL + "/p/one", site.URL + "/p/two"}; !slices.Equal(ok.Sources, want) {
		t.Errorf("ext/ok sources = %v, want %v", ok.Sources, want)
	}

	missing := links["http://ext.example/missing"]
	if missing.ErrorType != result.CategoryHTTPError || missing.StatusCode != 404 || missing.Attempts != 1 {
		t.Errorf("ext/missing = %+v, want HTTP_ERROR 404 after 1 attempt", missing)
	}

	dns := links["https://nonexistent.invalid/x"]
	if dns.ErrorType != result.CategoryDNSFailure || dns.Attempts != 3 || dns.HasStatus() {
		t.Errorf("dns link = %+v, want DNS_FAILURE after 3 attempts without status", dns)
	}

	gone := links[site.URL+"/p/gone"]
	if gone.ErrorType != result.CategoryHTTPError || gone.StatusCode != 404 {
		t.Errorf("failed post = %+v, want HTTP_ERROR 404", gone)
	}

	if report.Stats.BrokenCount != 3 {
		t.Errorf("broken = %d, want 3", report.Stats.BrokenCount)
	}
	if !slices.IsSortedFunc(report.Links, func(a, b result.LinkCheckResult) int {
		return strings.Compare(a.URL, b.URL)
	}) {
		t.Error("report links are not sorted by URL")
	}

	close(events)
	var last crawler.Event
	phases := map[crawler.Phase]int{}
	for ev := range events {
		phases[ev.Phase]++
		last = ev
	}
	if phases[crawler.PhaseDiscover] != 1 || phases[crawler.PhaseFetchPosts] != 3 || phases[crawler.PhaseCheckLinks] != 3 {
		t.Errorf("event counts by phase = %v", phases)
	}
	if last.Phase != crawler.PhaseCheckLinks || last.Done != 3 || last.Total != 3 {
		t.Errorf("last event = %+v, want final link check", last)
	}

	if got := testutil.ToFloat64(cfg.Metrics.PostsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed posts metric = %v, want 1", got)
	}
}

func TestCrawlerIncludeInternal(t *testing.T) {
	site := newSiteServer()
	defer site.Close()
	ext := newExternalServer()
	defer ext.Close()

	cfg := testConfig(site.URL, routingTransport(ext))
	cfg.IncludeInternal = true

	report, err := mustNewCrawler(t, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	links := linkByURL(report)
	about, ok := links[site.URL+"/about"]
	if !ok {
		t.Fatalf("internal link missing from %v", report.Links)
	}
	if about.IsBroken {
		t.Errorf("about = %+v, want OK", about)
	}
	if _, ok := links[site.URL+"/p/one"]; ok {
		t.Error("post self-link was checked")
	}
}

func TestCrawlerCheckPostsOnly(t *testing.T) {
	site := newSiteServer()
	defer site.Close()

	cfg := testConfig(site.URL, nil)
	cfg.CheckPostsOnly = true

	report, err := mustNewCrawler(t, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(report.Links) != 3 {
		t.Fatalf("got %d results, want one per post: %v", len(report.Links), report.Links)
	}
	broken := report.Broken()
	if len(broken) != 1 || broken[0].URL != site.URL+"/p/gone" {
		t.Errorf("broken = %v, want only /p/gone", broken)
	}
}

func TestCrawlerURLFile(t *testing.T) {
	site := newSiteServer()
	defer site.Close()

	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "# chosen posts\n" + site.URL + "/p/two\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(site.URL, nil)
	cfg.URLFile = path
	cfg.CheckPostsOnly = true

	report, err := mustNewCrawler(t, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !slices.Equal(report.Posts, []string{site.URL + "/p/two"}) {
		t.Errorf("posts = %v, want only the file's URL", report.Posts)
	}

	cfg.URLFile = filepath.Join(t.TempDir(), "absent.txt")
	if _, err := mustNewCrawler(t, cfg, nil).Run(context.Background()); err == nil {
		t.Error("expected error for missing URL file")
	}
}

func TestCrawlerNoPosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	report, err := mustNewCrawler(t, testConfig(server.URL, nil), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(report.Posts) != 0 || len(report.Links) != 0 || report.Stats.BrokenCount != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestCrawlerInvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "x.substack.com", "ftp://x.substack.com", "https://"} {
		_, err := crawler.New(testConfig(base, nil), nil, nil)
		if !errors.Is(err, urlutil.ErrInvalidBaseURL) {
			t.Errorf("New(%q) error = %v, want ErrInvalidBaseURL", base, err)
		}
	}
}

func TestCrawlerCancellation(t *testing.T) {
	site := newSiteServer()
	defer site.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nobody reads the unbuffered events channel; Run must not block on it.
	c := mustNewCrawler(t, testConfig(site.URL, nil), make(chan crawler.Event))
	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}
