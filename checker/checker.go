package checker

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/linkrot/logging"
	"github.com/lukemcguire/linkrot/result"
)

// Checker checks batches of URLs concurrently over a Pool.
type Checker struct {
	pool   *Pool
	policy RetryPolicy
	logger *zap.Logger
}

// New returns a Checker. A nil logger discards output.
func New(pool *Pool, policy RetryPolicy, logger *zap.Logger) *Checker {
	return &Checker{
		pool:   pool,
		policy: policy.withDefaults(),
		logger: logging.OrNop(logger),
	}
}

// Check runs a single URL through the retry policy.
func (c *Checker) Check(ctx context.Context, rawURL string) result.LinkCheckResult {
	res := checkWithRetry(ctx, c.pool, rawURL, c.policy, c.logger)
	c.pool.metrics.ObserveLink(string(res.ErrorType))
	return res
}

// CheckAll checks every distinct URL in urls and returns one result per URL
// in completion order. At most three checks per in-flight slot are pending at
// once; the pool bounds the actual network attempts. onResult, if non-nil,
// is called serially as each result completes.
func (c *Checker) CheckAll(ctx context.Context, urls []string, onResult func(result.LinkCheckResult)) []result.LinkCheckResult {
	distinct := dedupe(urls)
	results := make([]result.LinkCheckResult, 0, len(distinct))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(3 * c.pool.MaxInFlight())
	for _, u := range distinct {
		g.Go(func() error {
			res := c.Check(ctx, u)
			if res.IsBroken {
				c.logger.Debug("broken link",
					zap.String("url", u),
					zap.String("category", string(res.ErrorType)),
					zap.Int("attempts", res.Attempts))
			}

			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
			if onResult != nil {
				onResult(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
