package checker

import (
	"context"
	"net/http"
	"time"

	"github.com/lukemcguire/linkrot/result"
)

// CheckOnce makes a single attempt at rawURL and classifies the outcome.
// HEAD is tried first; servers answering 405 or 501 are asked again with GET
// inside the same attempt. Redirects are followed and the final status wins.
func CheckOnce(ctx context.Context, pool *Pool, rawURL string, timeout time.Duration) result.LinkCheckResult {
	start := time.Now()
	resp, err := pool.probe(ctx, rawURL, timeout)
	category := result.ClassifyError(err, resp.StatusCode)
	pool.metrics.ObserveAttempt(string(category), time.Since(start))

	if err != nil {
		return result.NewLinkCheckResult(rawURL, category, err.Error(), 0)
	}
	return result.NewLinkCheckResult(rawURL, category, resp.Status, resp.StatusCode)
}

// probe holds one in-flight slot for the whole attempt. The timeout starts
// once the slot is acquired, so time spent queued is not charged to the URL.
func (p *Pool) probe(ctx context.Context, rawURL string, timeout time.Duration) (Response, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return Response{}, err
	}
	defer release()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := p.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		return p.do(ctx, http.MethodGet, rawURL)
	}
	return resp, nil
}
