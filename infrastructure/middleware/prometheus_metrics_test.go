package middleware

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marbeek/stagescore/internal/ports"
)

// The collector registers in the global Prometheus registry, so the
// whole test file shares one instance.
var (
	metricsOnce sync.Once
	metrics     *PrometheusMetrics
)

func collector(t *testing.T) *PrometheusMetrics {
	t.Helper()
	metricsOnce.Do(func() { metrics = NewPrometheusMetrics() })
	return metrics
}

func TestPrometheusMetrics_ImplementsCollector(t *testing.T) {
	var c ports.MetricsCollector = collector(t)
	assert.NotNil(t, c)
}

func TestPrometheusMetrics_RecordLatency(t *testing.T) {
	pm := collector(t)

	assert.NotPanics(t, func() {
		pm.RecordLatency("llm_request_duration_seconds", 120*time.Millisecond, map[string]string{
			"provider": "anthropic", "model": "m", "status": "success",
		})
		pm.RecordLatency("ensemble_score", 2*time.Second, map[string]string{"oracles": "3"})
		pm.RecordLatency("unknown_operation", time.Second, nil)
	})
}

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	pm := collector(t)

	assert.NotPanics(t, func() {
		pm.RecordCounter("oracle_failures_total", 1, map[string]string{"oracle": "claude"})
		pm.RecordCounter("oracle_rejections_total", 1, map[string]string{"oracle": "gpt"})
		pm.RecordCounter("consensus_total", 1, map[string]string{"bucket": "positive"})
		pm.RecordCounter("audit_flags_total", 1, map[string]string{"flag": "high_disagreement"})
		pm.RecordCounter("audit_tier_total", 1, map[string]string{"tier": "C"})
		pm.RecordCounter("adjudication_outcomes_total", 1, map[string]string{"outcome": "resolved"})
		pm.RecordCounter("something_else", 3, nil)
	})
}

func TestPrometheusMetrics_RecordGauge(t *testing.T) {
	pm := collector(t)

	assert.NotPanics(t, func() {
		pm.RecordGauge("adjudication_queue_remaining", 4, nil)
		pm.RecordGauge("custom_state", 1.5, nil)
	})
}

func TestPrometheusMetrics_MissingLabelsDoNotPanic(t *testing.T) {
	pm := collector(t)

	assert.NotPanics(t, func() {
		pm.RecordLatency("llm_request_duration_seconds", time.Millisecond, nil)
		pm.RecordCounter("consensus_total", 1, nil)
	})
}
