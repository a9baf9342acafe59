// Package llm provides a unified client for the LLM providers that back
// the scoring oracles. Provider-specific APIs (Anthropic, OpenAI,
// Google) are abstracted behind a small CoreLLM interface, and
// cross-cutting concerns such as rate limiting, timeouts, retries, and
// metrics compose through a middleware chain.
//
// Basic usage:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-sonnet-4-20250514",
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitMiddleware(rate.Every(2*time.Second), 1),
//	        llm.TimeoutMiddleware(60 * time.Second),
//	    },
//	})
//	answer, err := client.Complete(ctx, prompt, system)
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// CoreLLM is the minimal surface a provider must implement. Middleware
// wraps any conforming implementation, so providers stay free of
// operational concerns.
type CoreLLM interface {
	// DoRequest sends a prompt with an optional system instruction and
	// returns the provider's text response.
	DoRequest(ctx context.Context, prompt, system string) (string, error)

	// GetModel returns the configured model name, used in logs and
	// metric labels.
	GetModel() string
}

// Middleware wraps a CoreLLM to add cross-cutting behavior. Middleware
// compose outermost-first: the first entry in ClientConfig.Middleware
// sees the request before the rest of the chain.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig holds the settings for creating an LLM client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model selects the provider-specific model. Empty selects the
	// provider's default.
	Model string

	// BaseURL overrides the provider's default endpoint when set.
	BaseURL string

	// MaxTokens caps the response size per call. Zero selects
	// DefaultMaxTokens.
	MaxTokens int64

	// Temperature, when non-nil, overrides the provider default.
	Temperature *float64

	// Middleware is applied around the provider in the order given.
	Middleware []Middleware
}

// DefaultMaxTokens bounds responses when the config leaves MaxTokens
// unset. Oracle answers are small structured documents; they never need
// more.
const DefaultMaxTokens = 1024

// Client is a provider-backed LLM client with its middleware chain
// applied. It is safe for concurrent use.
type Client struct {
	core CoreLLM
}

// Complete sends a prompt through the middleware chain and returns the
// provider's text response.
func (c *Client) Complete(ctx context.Context, prompt, system string) (string, error) {
	return c.core.DoRequest(ctx, prompt, system)
}

// Model returns the underlying model name.
func (c *Client) Model() string { return c.core.GetModel() }

// ProviderFactory constructs a provider's CoreLLM from a ClientConfig.
type ProviderFactory func(config ClientConfig) (CoreLLM, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ProviderFactory)
)

// RegisterProviderFactory registers a provider under a name. Providers
// call this from init; registering the same name twice panics to catch
// wiring mistakes early.
func RegisterProviderFactory(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("llm: provider %q registered twice", name))
	}
	factories[name] = factory
}

// SupportedProviders returns the registered provider names, sorted.
func SupportedProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient creates a Client for the named provider with the config's
// middleware chain applied.
func NewClient(provider string, config ClientConfig) (*Client, error) {
	factoriesMu.RLock()
	factory, ok := factories[provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (supported: %v)", provider, SupportedProviders())
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", provider, err)
	}

	// Apply in reverse so the first configured middleware is outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{core: core}, nil
}
