package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// retryLLM re-sends failed requests with exponential backoff and
// jitter. A retried call is still a single logical request: the caller
// sees exactly one response or one error, so a retry never becomes an
// extra vote upstream.
type retryLLM struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var _ CoreLLM = (*retryLLM)(nil)

// RetryMiddleware retries retryable provider failures up to maxRetries
// times with exponential backoff between attempts.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// DoRequest executes the request, retrying only errors a ProviderError
// classifies as transient. Non-retryable failures and context
// cancellation end the loop immediately.
func (r *retryLLM) DoRequest(ctx context.Context, prompt, system string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		response, err := r.next.DoRequest(ctx, prompt, system)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.delay(attempt)):
		}
	}

	return "", fmt.Errorf("request failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

// retryable treats unclassified errors as transient; only an explicit
// non-retryable classification stops the loop early.
func retryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.IsRetryable()
	}
	return true
}

// delay computes exponential backoff with +/-25% jitter, capped at
// maxDelay.
func (r *retryLLM) delay(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := time.Duration(float64(r.baseDelay) * float64(uint(1)<<uint(attempt)))

	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}

func (r *retryLLM) GetModel() string { return r.next.GetModel() }
