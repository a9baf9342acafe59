package llm

import (
	"context"
	"time"

	"github.com/marbeek/stagescore/internal/ports"
)

// metricsLLM records latency and outcome counters for every provider
// call.
type metricsLLM struct {
	next      CoreLLM
	provider  string
	collector ports.MetricsCollector
}

var _ CoreLLM = (*metricsLLM)(nil)

// MetricsMiddleware records request latency and outcome counters
// labeled by provider and model.
func MetricsMiddleware(provider string, collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, provider: provider, collector: collector}
	}
}

// DoRequest times the wrapped call and records its outcome.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt, system string) (string, error) {
	start := time.Now()
	response, err := m.next.DoRequest(ctx, prompt, system)

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"status":   "success",
	}
	if err != nil {
		labels["status"] = "error"
		if ctx.Err() == context.DeadlineExceeded {
			labels["status"] = "timeout"
		}
	}

	if m.collector != nil {
		m.collector.RecordLatency("llm_request_duration_seconds", time.Since(start), labels)
		m.collector.RecordCounter("llm_requests_total", 1, labels)
	}

	return response, err
}

func (m *metricsLLM) GetModel() string { return m.next.GetModel() }
