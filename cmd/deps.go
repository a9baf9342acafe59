package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/marbeek/stagescore/infrastructure/llm"
	"github.com/marbeek/stagescore/infrastructure/middleware"
	"github.com/marbeek/stagescore/infrastructure/oracle"
	"github.com/marbeek/stagescore/infrastructure/store"
	"github.com/marbeek/stagescore/internal/adjudicate"
	"github.com/marbeek/stagescore/internal/application"
	"github.com/marbeek/stagescore/internal/audit"
	"github.com/marbeek/stagescore/internal/domain"
	"github.com/marbeek/stagescore/internal/ensemble"
	"github.com/marbeek/stagescore/internal/ports"
)

// Prometheus collectors register against the default registry, so the
// process holds exactly one instance.
var (
	metricsOnce sync.Once
	metrics     *middleware.PrometheusMetrics
)

func getMetrics() ports.MetricsCollector {
	metricsOnce.Do(func() {
		metrics = middleware.NewPrometheusMetrics()
	})
	return metrics
}

func getLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getPipeline assembles the full scoring pipeline from the run config.
// The adjudication machine re-invokes the first oracle in the panel.
func getPipeline() (*application.Pipeline, error) {
	cfg, err := application.LoadConfig(viper.GetString("run_config"))
	if err != nil {
		return nil, err
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}
	queue := store.NewFileQueue(viper.GetString("queue_path"))
	collector := getMetrics()

	norm, err := domain.NewNormalizer(domain.BucketTableV1, cfg.Normalize.BareDenominator)
	if err != nil {
		return nil, err
	}

	oracles := make([]ports.Oracle, 0, len(cfg.Oracles))
	for _, oc := range cfg.Oracles {
		o, err := buildOracle(oc, collector)
		if err != nil {
			return nil, fmt.Errorf("oracle %q: %w", oc.Name, err)
		}
		oracles = append(oracles, o)
	}

	scorer := ensemble.NewScorer(domain.BucketTableV1, cfg.Ensemble.ToScorerConfig(), collector)
	auditor := audit.New(norm, cfg.Audit, collector)
	machine := adjudicate.New(s, oracles[0], norm, cfg.Adjudicate, collector)

	return application.NewPipeline(application.PipelineParams{
		Store:       s,
		Queue:       queue,
		Scorer:      scorer,
		Oracles:     oracles,
		Adjudicator: oracles[0],
		Auditor:     auditor,
		Machine:     machine,
		Normalizer:  norm,
		Logger:      getLogger(),
	})
}

// buildOracle wires one panel member: provider client, middleware
// chain, and the judgment parser. The chain runs rate limit, then
// timeout, then retry, so the timeout bounds the whole retried call
// and the limiter throttles calls rather than individual retries.
func buildOracle(oc application.OracleConfig, collector ports.MetricsCollector) (ports.Oracle, error) {
	apiKey := os.Getenv(oc.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", oc.APIKeyEnv)
	}

	var mw []llm.Middleware
	if oc.RequestsPerMinute > 0 {
		mw = append(mw, llm.RateLimitMiddleware(rate.Limit(float64(oc.RequestsPerMinute)/60.0), 1))
	}
	if oc.TimeoutSeconds > 0 {
		mw = append(mw, llm.TimeoutMiddleware(time.Duration(oc.TimeoutSeconds)*time.Second))
	}
	if oc.MaxRetries > 0 {
		mw = append(mw, llm.RetryMiddleware(oc.MaxRetries, time.Second, 30*time.Second))
	}
	mw = append(mw, llm.MetricsMiddleware(oc.Provider, collector))

	client, err := llm.NewClient(oc.Provider, llm.ClientConfig{
		APIKey:      apiKey,
		Model:       oc.Model,
		MaxTokens:   oc.MaxTokens,
		Temperature: oc.Temperature,
		Middleware:  mw,
	})
	if err != nil {
		return nil, err
	}

	return oracle.New(oc.Name, client, domain.BucketTableV1)
}
