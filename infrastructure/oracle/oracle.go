// Package oracle adapts an LLM client into the pipeline's Oracle port.
// It owns the judgment prompt, response parsing, and the mapping of
// provider answers onto domain judgments and rejections.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"

	"github.com/marbeek/stagescore/internal/domain"
	"github.com/marbeek/stagescore/internal/ports"
)

// Completer is the LLM surface the oracle needs. *llm.Client satisfies
// it; tests substitute a scripted implementation.
type Completer interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
	Model() string
}

// validate checks parsed oracle responses before they become judgments.
var validate = validator.New()

const systemPrompt = `You are a theater critic analyst. You read a review excerpt and
classify the critic's overall verdict. Answer with a single JSON object
and nothing else.`

const promptTemplate = `Classify the overall verdict of this theater review excerpt.

Buckets, worst to best: pan, negative, mixed, positive, rave.
Score ranges: pan 0-34, negative 35-54, mixed 55-69, positive 70-84, rave 85-100.

{{if .Background}}Context: {{.Background}}

{{end}}Review excerpt:
---
{{.Text}}
---

Respond with exactly one JSON object:
{"bucket": "<bucket>", "score": <0-100 integer inside the bucket's range>, "confidence": "<high|medium|low>", "rationale": "<one sentence>"}

If the excerpt cannot be judged at all (wrong production, no evaluative
content), respond instead with:
{"rejected": true, "reason": "<why>"}`

// oracleResponse is the JSON shape expected back from the model.
type oracleResponse struct {
	Rejected   bool   `json:"rejected"`
	Reason     string `json:"reason"`
	Bucket     string `json:"bucket" validate:"omitempty,oneof=pan negative mixed positive rave"`
	Score      int    `json:"score" validate:"min=0,max=100"`
	Confidence string `json:"confidence" validate:"omitempty,oneof=high medium low"`
	Rationale  string `json:"rationale"`
}

// promptData feeds the compiled prompt template.
type promptData struct {
	Text       string
	Background string
}

// LLMOracle implements ports.Oracle on top of an LLM completion client.
// It is stateless apart from its configuration and safe for concurrent
// use.
type LLMOracle struct {
	name   string
	client Completer
	table  domain.BucketTable
	tmpl   *template.Template
}

var _ ports.Oracle = (*LLMOracle)(nil)

// New creates an LLMOracle with the given stable name.
func New(name string, client Completer, table domain.BucketTable) (*LLMOracle, error) {
	if name == "" {
		return nil, fmt.Errorf("oracle name cannot be empty")
	}
	if client == nil {
		return nil, fmt.Errorf("oracle %s: completion client cannot be nil", name)
	}
	tmpl, err := template.New("judge").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("oracle %s: compile prompt template: %w", name, err)
	}
	return &LLMOracle{name: name, client: client, table: table, tmpl: tmpl}, nil
}

// Name returns the oracle's stable identifier.
func (o *LLMOracle) Name() string { return o.name }

// Judge scores the review text. Malformed responses come back as
// errors, which the consensus layer absorbs as a missing vote; only an
// explicit rejected answer becomes a Rejection.
func (o *LLMOracle) Judge(ctx context.Context, text, background string) (domain.Judgment, *domain.Rejection, error) {
	var prompt strings.Builder
	if err := o.tmpl.Execute(&prompt, promptData{Text: text, Background: background}); err != nil {
		return domain.Judgment{}, nil, fmt.Errorf("oracle %s: render prompt: %w", o.name, err)
	}

	answer, err := o.client.Complete(ctx, prompt.String(), systemPrompt)
	if err != nil {
		return domain.Judgment{}, nil, fmt.Errorf("oracle %s: %w", o.name, err)
	}

	return o.parseResponse(answer)
}

// parseResponse extracts the structured answer from free text and maps
// it onto the domain.
func (o *LLMOracle) parseResponse(answer string) (domain.Judgment, *domain.Rejection, error) {
	jsonStr := extractJSON(answer)
	if jsonStr == "" {
		return domain.Judgment{}, nil, fmt.Errorf("oracle %s: no JSON object in response (%d chars)", o.name, len(answer))
	}

	var resp oracleResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return domain.Judgment{}, nil, fmt.Errorf("oracle %s: parse response JSON: %w", o.name, err)
	}
	if err := validate.Struct(resp); err != nil {
		return domain.Judgment{}, nil, fmt.Errorf("oracle %s: invalid response structure: %w", o.name, err)
	}

	if resp.Rejected {
		reason := resp.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return domain.Judgment{}, &domain.Rejection{OracleName: o.name, Reason: reason}, nil
	}

	if resp.Bucket == "" || resp.Confidence == "" {
		return domain.Judgment{}, nil, fmt.Errorf("oracle %s: response missing bucket or confidence", o.name)
	}

	judgment, err := domain.NewJudgment(
		o.table,
		o.name,
		domain.Bucket(resp.Bucket),
		resp.Score,
		domain.Confidence(resp.Confidence),
		resp.Rationale,
	)
	if err != nil {
		return domain.Judgment{}, nil, fmt.Errorf("oracle %s: %w", o.name, err)
	}
	return judgment, nil, nil
}

// extractJSON pulls a JSON object out of a response that may wrap it in
// markdown fences or surrounding prose.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		rest := response[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(response, "```"); idx != -1 {
		rest := response[idx+3:]
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	// Bare JSON, possibly with prose around it: take the outermost
	// brace pair.
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return response[start : end+1]
}
