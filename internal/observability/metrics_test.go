package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nusantara-labs/oracle/pkg/models"
)

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRoute("visa_oracle", "high")
	m.RecordRoute("visa_oracle", "high")
	m.RecordLLMAttempt("anthropic", "claude-sonnet", "success", 150*time.Millisecond)
	m.RecordLLMTokens("anthropic", "claude-sonnet", models.TokenUsage{
		PromptTokens:     100,
		CompletionTokens: 40,
		CostUSD:          0.002,
	})
	m.RecordToolExecution("search_knowledge", "success", 20*time.Millisecond)
	m.RecordMemoryLockTimeout()
	m.RecordEvidenceScore(0.75)

	if got := testutil.ToFloat64(m.RoutesTotal.WithLabelValues("visa_oracle", "high")); got != 2 {
		t.Fatalf("RoutesTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LLMAttempts.WithLabelValues("anthropic", "claude-sonnet", "success")); got != 1 {
		t.Fatalf("LLMAttempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LLMTokens.WithLabelValues("anthropic", "claude-sonnet", "prompt")); got != 100 {
		t.Fatalf("prompt tokens = %v, want 100", got)
	}
	if got := testutil.ToFloat64(m.MemoryLockTimeouts); got != 1 {
		t.Fatalf("MemoryLockTimeouts = %v, want 1", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	// Each test process may build multiple cores; registration must be
	// scoped to the injected registry.
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())
	a.RecordRoute("tax_genius", "low")
	if got := testutil.ToFloat64(b.RoutesTotal.WithLabelValues("tax_genius", "low")); got != 0 {
		t.Fatalf("counter leaked across registries: %v", got)
	}
}
