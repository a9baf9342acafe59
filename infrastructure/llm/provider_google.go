package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when the config leaves Model unset.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements CoreLLM against Google's Gemini API.
type googleProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int64
	temperature *float64
	classifier  *ErrorClassifier
}

var _ CoreLLM = (*googleProvider)(nil)

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Google client: %w", err)
	}

	return &googleProvider{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: config.Temperature,
		classifier:  &ErrorClassifier{Provider: "google"},
	}, nil
}

func (p *googleProvider) DoRequest(ctx context.Context, prompt, system string) (string, error) {
	// Gemini has no separate system role; the instruction goes through
	// the generation config instead.
	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(p.maxTokens, math.MaxInt32)),
	}
	if p.temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*p.temperature))
	}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, genConfig)
	if err != nil {
		return "", p.handleError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", NewProviderError("google", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}
	return text, nil
}

func (p *googleProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.classifier.ClassifyContextError(err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return p.classifier.ClassifyHTTPError(apiErr.Code, apiErr.Message, err)
	}
	return NewProviderError("google", ErrorTypeUnknown, 0, "request failed", err)
}

// GetModel returns the configured Gemini model name.
func (p *googleProvider) GetModel() string { return p.model }
