// Package application orchestrates the scoring pipeline: it wires the
// ensemble scorer, the auditor, and the adjudication machine against
// the persistence and oracle ports, and owns the run-level
// configuration schema.
package application

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/marbeek/stagescore/internal/adjudicate"
	"github.com/marbeek/stagescore/internal/audit"
	"github.com/marbeek/stagescore/internal/ensemble"
)

// validate is the package-level validator instance shared by all
// configuration types.
var validate = validator.New()

// Config is the run-level specification for a scoring pipeline run.
// It is the primary configuration entry point: one YAML document
// describing the oracle panel, the consensus settings, and the audit
// and adjudication tunables.
type Config struct {
	// Normalize controls rating normalization policy.
	Normalize NormalizeConfig `yaml:"normalize"`

	// Oracles defines the ensemble panel. At least one oracle is
	// required; consensus semantics assume three or more.
	Oracles []OracleConfig `yaml:"oracles" validate:"required,min=1,dive"`

	// Ensemble controls the concurrent fan-out over the panel.
	Ensemble EnsembleConfig `yaml:"ensemble"`

	// Audit carries the disagreement detector's tolerances.
	Audit audit.Config `yaml:"audit"`

	// Adjudicate carries the escalation state machine's tunables.
	Adjudicate adjudicate.Config `yaml:"adjudicate"`
}

// NormalizeConfig pins the normalization policy choices that the source
// data cannot answer by itself.
type NormalizeConfig struct {
	// BareDenominator resolves the ambiguity of a bare whole-number star
	// value ("3 stars"): the outlet scale it is read against. Must be 4
	// or 5; the value is an explicit editorial decision, never inferred
	// from the data.
	BareDenominator int `yaml:"bare_denominator" validate:"omitempty,oneof=4 5"`
}

// OracleConfig describes one member of the ensemble panel.
type OracleConfig struct {
	// Name is the stable identifier recorded on every judgment this
	// oracle produces.
	Name string `yaml:"name" validate:"required,min=1,max=100"`

	// Provider selects the vendor client implementation.
	Provider string `yaml:"provider" validate:"required,oneof=anthropic openai google"`

	// Model is the provider-specific model identifier.
	Model string `yaml:"model" validate:"required,min=1"`

	// APIKeyEnv names the environment variable holding the provider
	// credential. Credentials never appear in the config file itself.
	APIKeyEnv string `yaml:"api_key_env" validate:"required,min=1"`

	// MaxTokens caps the response size per call.
	MaxTokens int64 `yaml:"max_tokens" validate:"omitempty,min=1,max=100000"`

	// Temperature, when set, overrides the provider default.
	Temperature *float64 `yaml:"temperature" validate:"omitempty,min=0,max=2"`

	// RequestsPerMinute throttles calls to this oracle. Zero disables
	// client-side throttling.
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"omitempty,min=1,max=10000"`

	// TimeoutSeconds bounds a single call including retries.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"omitempty,min=1,max=600"`

	// MaxRetries is the number of re-sends after a retryable transport
	// failure. A retried call still yields exactly one vote.
	MaxRetries int `yaml:"max_retries" validate:"omitempty,min=0,max=5"`
}

// EnsembleConfig controls the consensus scorer's fan-out.
type EnsembleConfig struct {
	// OracleTimeoutSeconds bounds each oracle invocation within a
	// scoring round.
	OracleTimeoutSeconds int `yaml:"oracle_timeout_seconds" validate:"omitempty,min=1,max=600"`

	// MaxConcurrency caps in-flight oracle calls per scoring round.
	MaxConcurrency int `yaml:"max_concurrency" validate:"omitempty,min=1,max=64"`
}

// ToScorerConfig converts the YAML shape into the ensemble package's
// runtime config.
func (e EnsembleConfig) ToScorerConfig() ensemble.Config {
	cfg := ensemble.Config{}
	if e.OracleTimeoutSeconds > 0 {
		cfg.OracleTimeout = time.Duration(e.OracleTimeoutSeconds) * time.Second
	}
	cfg.MaxConcurrency = e.MaxConcurrency
	return cfg
}

// applyDefaults fills unset fields with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Normalize.BareDenominator == 0 {
		c.Normalize.BareDenominator = 5
	}
	for i := range c.Oracles {
		o := &c.Oracles[i]
		if o.MaxTokens == 0 {
			o.MaxTokens = 1024
		}
		if o.TimeoutSeconds == 0 {
			o.TimeoutSeconds = 60
		}
	}
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	names := make(map[string]bool, len(c.Oracles))
	for _, o := range c.Oracles {
		if names[o.Name] {
			return fmt.Errorf("invalid run config: duplicate oracle name %q", o.Name)
		}
		names[o.Name] = true
	}
	return nil
}

// LoadConfig reads, defaults, and validates a run config YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse run config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
