package pipeline

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/fetcherr"
)

const (
	defaultRetryAttempts = 3
	maxRetryAttempts     = 10
	retryBaseDelay       = 1 * time.Second
	retryMaxDelay        = 10 * time.Second

	// retryAfterFallback applies when a 429 carries no usable Retry-After.
	retryAfterFallback = 60 * time.Second
	// retryAfterCap bounds how long a Retry-After header can stall a retry.
	retryAfterCap = 30 * time.Second
)

// retryPolicy runs an operation with exponential backoff and full jitter.
type retryPolicy struct {
	attempts int
	logger   *zap.Logger
}

func newRetryPolicy(attempts int, logger *zap.Logger) *retryPolicy {
	if attempts < 1 {
		attempts = defaultRetryAttempts
	}
	if attempts > maxRetryAttempts {
		attempts = maxRetryAttempts
	}
	return &retryPolicy{attempts: attempts, logger: logger}
}

// run invokes fn until it succeeds, exhausts the attempt budget, fails
// with a non-retryable error, or ctx is done. The last error is returned.
func (p *retryPolicy) run(ctx context.Context, url string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fetcherr.From(err).WithURL(url)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !fetcherr.IsRetryable(lastErr) || attempt == p.attempts {
			return lastErr
		}

		delay := p.delayFor(attempt, lastErr)
		p.logger.Debug("Retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fetcherr.From(ctx.Err()).WithURL(url)
		case <-timer.C:
		}
	}
	return lastErr
}

// delayFor computes the backoff for the given attempt: full jitter over an
// exponentially growing window, unless a rate-limit error dictates a
// Retry-After delay.
func (p *retryPolicy) delayFor(attempt int, err error) time.Duration {
	if fe := fetcherr.From(err); fe.Kind == fetcherr.KindRateLimited {
		if after, ok := fe.Details["retryAfter"].(int); ok && after > 0 {
			delay := time.Duration(after) * time.Second
			if delay > retryAfterCap {
				delay = retryAfterCap
			}
			return delay
		}
		delay := retryAfterFallback
		if delay > retryAfterCap {
			delay = retryAfterCap
		}
		return delay
	}

	window := retryBaseDelay << (attempt - 1)
	if window > retryMaxDelay {
		window = retryMaxDelay
	}
	return time.Duration(rand.Int63n(int64(window)) + 1)
}

// parseRetryAfter reads a Retry-After header as delta-seconds or an
// HTTP-date. Unusable values fall back to 60 seconds.
func parseRetryAfter(header http.Header) int {
	value := header.Get("Retry-After")
	if value == "" {
		return int(retryAfterFallback.Seconds())
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return seconds
	}
	if at, err := http.ParseTime(value); err == nil {
		if seconds := int(time.Until(at).Seconds()); seconds > 0 {
			return seconds
		}
		return 0
	}
	return int(retryAfterFallback.Seconds())
}
