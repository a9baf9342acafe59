package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimitedLLM paces requests through a token bucket so the client
// never exceeds a provider's documented request rate.
type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

var _ CoreLLM = (*rateLimitedLLM)(nil)

// RateLimitMiddleware enforces a token-bucket rate limit. limit is the
// sustained request rate; burst allows short spikes above it.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{next: next, limiter: limiter}
	}
}

// DoRequest blocks until a token is available, then forwards the call.
func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt, system string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, prompt, system)
}

func (r *rateLimitedLLM) GetModel() string { return r.next.GetModel() }
