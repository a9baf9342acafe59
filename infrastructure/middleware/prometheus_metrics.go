// Package middleware provides cross-cutting infrastructure for the
// scoring pipeline.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marbeek/stagescore/internal/ports"
)

// PrometheusMetrics implements ports.MetricsCollector on the global
// Prometheus registry. It gives operators visibility into oracle
// behavior, audit flag rates, and adjudication queue movement.
type PrometheusMetrics struct {
	llmLatency      *prometheus.HistogramVec
	ensembleLatency prometheus.Histogram

	llmRequests     *prometheus.CounterVec
	oracleFailures  *prometheus.CounterVec
	oracleRejects   *prometheus.CounterVec
	consensusTotal  *prometheus.CounterVec
	auditFlags      *prometheus.CounterVec
	auditTiers      *prometheus.CounterVec
	adjudications   *prometheus.CounterVec
	genericCounters *prometheus.CounterVec

	queueRemaining prometheus.Gauge
	genericGauges  *prometheus.GaugeVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the collector and registers every metric
// in the global registry. Create at most one per process.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		llmLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stagescore_llm_request_duration_seconds",
				Help:    "Latency of individual LLM provider calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		ensembleLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stagescore_ensemble_score_duration_seconds",
				Help:    "Latency of full ensemble scoring rounds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		llmRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagescore_llm_requests_total",
				Help: "LLM provider calls by outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		oracleFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagescore_oracle_failures_total",
				Help: "Oracle invocations that failed and became missing votes.",
			},
			[]string{"oracle"},
		),
		oracleRejects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagescore_oracle_rejections_total",
				Help: "Oracle invocations that substantively rejected the input.",
			},
			[]string{"oracle"},
		),
		consensusTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagescore_consensus_total",
				Help: "Consensus results by winning bucket.",
			},
			[]string{"bucket"},
		),
		auditFlags: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagescore_audit_flags_total",
				Help: "Audit flags raised, by kind.",
			},
			[]string{"flag"},
		),
		auditTiers: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagescore_audit_tier_total",
				Help: "Audited reviews by assigned confidence tier.",
			},
			[]string{"tier"},
		),
		adjudications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagescore_adjudication_outcomes_total",
				Help: "Adjudication attempts by outcome.",
			},
			[]string{"outcome"},
		),
		genericCounters: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagescore_operations_total",
				Help: "Uncategorized pipeline operations.",
			},
			[]string{"operation"},
		),
		queueRemaining: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stagescore_adjudication_queue_remaining",
				Help: "Reviews still queued after an adjudication run.",
			},
		),
		genericGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stagescore_system_state",
				Help: "Uncategorized pipeline state values.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	switch operation {
	case "llm_request_duration_seconds":
		pm.llmLatency.WithLabelValues(
			labels["provider"], labels["model"], labels["status"],
		).Observe(duration.Seconds())
	case "ensemble_score":
		pm.ensembleLatency.Observe(duration.Seconds())
	}
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(labels["provider"], labels["model"], labels["status"]).Add(value)
	case "oracle_failures_total":
		pm.oracleFailures.WithLabelValues(labels["oracle"]).Add(value)
	case "oracle_rejections_total":
		pm.oracleRejects.WithLabelValues(labels["oracle"]).Add(value)
	case "consensus_total":
		pm.consensusTotal.WithLabelValues(labels["bucket"]).Add(value)
	case "audit_flags_total":
		pm.auditFlags.WithLabelValues(labels["flag"]).Add(value)
	case "audit_tier_total":
		pm.auditTiers.WithLabelValues(labels["tier"]).Add(value)
	case "adjudication_outcomes_total":
		pm.adjudications.WithLabelValues(labels["outcome"]).Add(value)
	default:
		pm.genericCounters.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	switch metric {
	case "adjudication_queue_remaining":
		pm.queueRemaining.Set(value)
	default:
		pm.genericGauges.WithLabelValues(metric).Set(value)
	}
}
