package llm

import (
	"context"
	"time"
)

// timeoutLLM bounds each request with a deadline so a hung provider
// call never stalls the pipeline.
type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

var _ CoreLLM = (*timeoutLLM)(nil)

// TimeoutMiddleware enforces a per-request deadline.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{next: next, timeout: timeout}
	}
}

// DoRequest executes the request under a timeout context.
func (t *timeoutLLM) DoRequest(ctx context.Context, prompt, system string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt, system)
}

func (t *timeoutLLM) GetModel() string { return t.next.GetModel() }
