package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLLM is a scriptable CoreLLM for middleware tests.
type stubLLM struct {
	mu        sync.Mutex
	calls     int
	responses []string
	errs      []error
	delay     time.Duration
	sawCtx    context.Context
}

var _ CoreLLM = (*stubLLM)(nil)

func (s *stubLLM) DoRequest(ctx context.Context, prompt, system string) (string, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.sawCtx = ctx
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "ok", nil
}

func (s *stubLLM) GetModel() string { return "stub-model" }

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("carrier-pigeon", ClientConfig{APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM provider")
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	for _, provider := range []string{"anthropic", "openai", "google"} {
		t.Run(provider, func(t *testing.T) {
			_, err := NewClient(provider, ClientConfig{})
			assert.ErrorIs(t, err, ErrEmptyAPIKey)
		})
	}
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	assert.Contains(t, providers, "anthropic")
	assert.Contains(t, providers, "openai")
	assert.Contains(t, providers, "google")
}

func TestRetryMiddleware_RetriesTransientFailures(t *testing.T) {
	stub := &stubLLM{
		errs: []error{
			NewProviderError("stub", ErrorTypeServerError, 503, "overloaded", nil),
			NewProviderError("stub", ErrorTypeRateLimit, 429, "slow down", nil),
		},
		responses: []string{"", "", "third time lucky"},
	}

	wrapped := RetryMiddleware(3, time.Millisecond, 5*time.Millisecond)(stub)
	response, err := wrapped.DoRequest(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", response)
	assert.Equal(t, 3, stub.callCount())
}

func TestRetryMiddleware_DoesNotRetryAuthFailures(t *testing.T) {
	stub := &stubLLM{
		errs: []error{NewProviderError("stub", ErrorTypeAuthentication, 401, "bad key", nil)},
	}

	wrapped := RetryMiddleware(3, time.Millisecond, 5*time.Millisecond)(stub)
	_, err := wrapped.DoRequest(context.Background(), "p", "")
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrorTypeAuthentication, provErr.Type)
	assert.Equal(t, 1, stub.callCount())
}

func TestRetryMiddleware_ExhaustsAttempts(t *testing.T) {
	failure := NewProviderError("stub", ErrorTypeServerError, 500, "down", nil)
	stub := &stubLLM{errs: []error{failure, failure, failure, failure}}

	wrapped := RetryMiddleware(2, time.Millisecond, 5*time.Millisecond)(stub)
	_, err := wrapped.DoRequest(context.Background(), "p", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, stub.callCount())
}

func TestTimeoutMiddleware_CancelsSlowRequests(t *testing.T) {
	stub := &stubLLM{delay: 200 * time.Millisecond}

	wrapped := TimeoutMiddleware(10 * time.Millisecond)(stub)
	_, err := wrapped.DoRequest(context.Background(), "p", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProviderError_Retryability(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
	}{
		{ErrorTypeRateLimit, true},
		{ErrorTypeServerError, true},
		{ErrorTypeNetwork, true},
		{ErrorTypeAuthentication, false},
		{ErrorTypeBadRequest, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeUnknown, false},
	}
	for _, tt := range tests {
		err := NewProviderError("p", tt.errType, 0, "", nil)
		assert.Equal(t, tt.retryable, err.IsRetryable(), "type %v", tt.errType)
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	inner := errors.New("socket closed")
	err := NewProviderError("p", ErrorTypeNetwork, 0, "transport", inner)
	assert.ErrorIs(t, err, inner)
}

func TestErrorClassifier_HTTPStatus(t *testing.T) {
	ec := &ErrorClassifier{Provider: "test"}

	assert.Equal(t, ErrorTypeAuthentication, ec.ClassifyHTTPError(401, "", nil).Type)
	assert.Equal(t, ErrorTypeAuthentication, ec.ClassifyHTTPError(403, "", nil).Type)
	assert.Equal(t, ErrorTypeRateLimit, ec.ClassifyHTTPError(429, "", nil).Type)
	assert.Equal(t, ErrorTypeNotFound, ec.ClassifyHTTPError(404, "", nil).Type)
	assert.Equal(t, ErrorTypeServerError, ec.ClassifyHTTPError(503, "", nil).Type)
	assert.Equal(t, ErrorTypeBadRequest, ec.ClassifyHTTPError(400, "", nil).Type)
}

func TestMiddlewareOrder_FirstConfiguredIsOutermost(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &taggedLLM{next: next, name: name, order: &order}
		}
	}

	stub := &stubLLM{responses: []string{"ok"}}
	core := CoreLLM(stub)
	mws := []Middleware{tag("outer"), tag("inner")}
	for i := len(mws) - 1; i >= 0; i-- {
		core = mws[i](core)
	}

	_, err := core.DoRequest(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type taggedLLM struct {
	next  CoreLLM
	name  string
	order *[]string
}

func (l *taggedLLM) DoRequest(ctx context.Context, prompt, system string) (string, error) {
	*l.order = append(*l.order, l.name)
	return l.next.DoRequest(ctx, prompt, system)
}

func (l *taggedLLM) GetModel() string { return l.next.GetModel() }
