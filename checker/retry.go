package checker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lukemcguire/linkrot/result"
)

// RetryPolicy configures how often and how patiently a URL is retried.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first (3)
	Timeout     time.Duration // per-attempt timeout (10s)
	BaseDelay   time.Duration // delay before the second attempt (1s)
	MaxDelay    time.Duration // backoff cap (30s)
	Verbose     bool          // log intermediate failures at info level
}

// DefaultRetryPolicy returns 3 attempts, 10s timeout, 1s base delay and a
// 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Timeout:     10 * time.Second,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Backoff returns the wait after the n-th failed attempt (n >= 1):
// min(BaseDelay * 2^(n-1), MaxDelay).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		if delay >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	return min(delay, p.MaxDelay)
}

// CheckWithRetry checks rawURL until it gets a definitive answer (OK or an
// HTTP error status) or MaxAttempts is reached. The last attempt's result is
// returned with Attempts set.
func CheckWithRetry(ctx context.Context, pool *Pool, rawURL string, policy RetryPolicy) result.LinkCheckResult {
	return checkWithRetry(ctx, pool, rawURL, policy, pool.logger)
}

func checkWithRetry(ctx context.Context, pool *Pool, rawURL string, policy RetryPolicy, logger *zap.Logger) result.LinkCheckResult {
	policy = policy.withDefaults()
	level := zapcore.DebugLevel
	if policy.Verbose {
		level = zapcore.InfoLevel
	}

	var last result.LinkCheckResult
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		last = CheckOnce(ctx, pool, rawURL, policy.Timeout).WithAttempts(attempt)
		if !last.ErrorType.Transient() || attempt == policy.MaxAttempts || pool.Closed() {
			return last
		}

		delay := policy.Backoff(attempt)
		logger.Log(level, "attempt failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.String("category", string(last.ErrorType)),
			zap.String("detail", last.Detail),
			zap.Duration("backoff", delay))

		if !sleep(ctx, delay) {
			return last
		}
	}
	return last
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
