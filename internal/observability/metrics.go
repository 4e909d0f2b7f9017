// Package observability collects Prometheus metrics for the reasoning
// core: routing decisions, LLM attempts, breaker transitions, tool
// executions, and memory lock contention.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nusantara-labs/oracle/pkg/models"
)

// Metrics holds every instrument the core emits. Create one per
// process with NewMetrics and inject it where needed; a nil *Metrics
// is treated as "metrics disabled" by all consumers.
type Metrics struct {
	// RoutesTotal counts routing decisions.
	// Labels: collection, confidence (high|medium|low|override)
	RoutesTotal *prometheus.CounterVec

	// LLMAttempts counts individual provider attempts.
	// Labels: provider, model, status (success|error)
	LLMAttempts *prometheus.CounterVec

	// LLMAttemptDuration measures provider attempt latency in seconds.
	// Labels: provider, model
	LLMAttemptDuration *prometheus.HistogramVec

	// LLMTokens counts token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokens *prometheus.CounterVec

	// LLMCostUSD accumulates billed cost per provider and model.
	LLMCostUSD *prometheus.CounterVec

	// BreakerTransitions counts circuit breaker state changes.
	// Labels: target, state (closed|open|half_open)
	BreakerTransitions *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error|rejected)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	ToolDuration *prometheus.HistogramVec

	// MemoryLockWait measures per-user memory lock wait time.
	MemoryLockWait prometheus.Histogram

	// MemoryLockTimeouts counts saves skipped because the per-user
	// lock could not be acquired in time.
	MemoryLockTimeouts prometheus.Counter

	// EvidenceScore observes the evidence score of completed answers.
	EvidenceScore prometheus.Histogram
}

// NewMetrics registers all instruments with reg, or with the default
// registerer when reg is nil. Call once at startup.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RoutesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_routes_total",
				Help: "Routing decisions by collection and confidence bucket",
			},
			[]string{"collection", "confidence"},
		),
		LLMAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_llm_attempts_total",
				Help: "Provider attempts by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMAttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_llm_attempt_duration_seconds",
				Help:    "Duration of individual provider attempts in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_llm_tokens_total",
				Help: "Token consumption by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),
		LLMCostUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_llm_cost_usd_total",
				Help: "Accumulated billed cost in USD by provider and model",
			},
			[]string{"provider", "model"},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_breaker_transitions_total",
				Help: "Circuit breaker state transitions by target and new state",
			},
			[]string{"target", "state"},
		),
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_tool_executions_total",
				Help: "Tool invocations by tool name and status",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_tool_duration_seconds",
				Help:    "Tool execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool"},
		),
		MemoryLockWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oracle_memory_lock_wait_seconds",
				Help:    "Time spent waiting on the per-user memory lock",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
			},
		),
		MemoryLockTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "oracle_memory_lock_timeouts_total",
				Help: "Memory saves skipped because the per-user lock timed out",
			},
		),
		EvidenceScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oracle_evidence_score",
				Help:    "Evidence score distribution of completed answers",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
		),
	}
}

// RecordRoute records one routing decision.
func (m *Metrics) RecordRoute(collection, confidenceBucket string) {
	m.RoutesTotal.WithLabelValues(collection, confidenceBucket).Inc()
}

// RecordLLMAttempt records one provider attempt and its latency.
func (m *Metrics) RecordLLMAttempt(provider, model, status string, d time.Duration) {
	m.LLMAttempts.WithLabelValues(provider, model, status).Inc()
	m.LLMAttemptDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// RecordLLMTokens records the token usage and cost of one attempt.
func (m *Metrics) RecordLLMTokens(provider, model string, usage models.TokenUsage) {
	m.LLMTokens.WithLabelValues(provider, model, "prompt").Add(float64(usage.PromptTokens))
	m.LLMTokens.WithLabelValues(provider, model, "completion").Add(float64(usage.CompletionTokens))
	if usage.CostUSD > 0 {
		m.LLMCostUSD.WithLabelValues(provider, model).Add(usage.CostUSD)
	}
}

// RecordBreakerTransition records one breaker state change.
func (m *Metrics) RecordBreakerTransition(target, state string) {
	m.BreakerTransitions.WithLabelValues(target, state).Inc()
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(tool, status string, d time.Duration) {
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordMemoryLockWait records the observed lock wait time.
func (m *Metrics) RecordMemoryLockWait(d time.Duration) {
	m.MemoryLockWait.Observe(d.Seconds())
}

// RecordMemoryLockTimeout records a skipped save.
func (m *Metrics) RecordMemoryLockTimeout() {
	m.MemoryLockTimeouts.Inc()
}

// RecordEvidenceScore records the final evidence score of an answer.
func (m *Metrics) RecordEvidenceScore(score float64) {
	m.EvidenceScore.Observe(score)
}
