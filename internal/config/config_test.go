package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oracle.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
logging:
  level: debug
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.Timeout != 60*time.Second {
		t.Fatalf("breaker defaults not applied: %+v", cfg.Breaker)
	}
	if cfg.LLM.MaxFallbackCostUSD != 0.50 {
		t.Fatalf("MaxFallbackCostUSD = %v", cfg.LLM.MaxFallbackCostUSD)
	}
	if cfg.Agent.MaxToolExecutions != 10 || cfg.Memory.LockTimeout != 5*time.Second {
		t.Fatalf("agent/memory defaults not applied: %+v %+v", cfg.Agent, cfg.Memory)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  listen_addr: ":9000"
  extra: true
`))
	if err == nil {
		t.Fatalf("unknown field accepted")
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("ORACLE_TEST_KEY", "sk-test-123")
	cfg, err := Load(writeConfig(t, `
llm:
  providers:
    anthropic:
      api_key: ${ORACLE_TEST_KEY}
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.LLM.Providers["anthropic"].APIKey; got != "sk-test-123" {
		t.Fatalf("APIKey = %q", got)
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	_, err := Load(writeConfig(t, `
agent:
  abstain_threshold: 0.7
  warn_threshold: 0.6
`))
	if err == nil || !strings.Contains(err.Error(), "abstain_threshold") {
		t.Fatalf("inverted thresholds accepted: %v", err)
	}
}

func TestValidateRejectsUnconfiguredTierProvider(t *testing.T) {
	_, err := Load(writeConfig(t, `
llm:
  providers:
    anthropic:
      api_key: sk-x
  tiers:
    powerful:
      - provider: openai
        model: gpt-4o
`))
	if err == nil || !strings.Contains(err.Error(), "unconfigured provider") {
		t.Fatalf("unconfigured tier provider accepted: %v", err)
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  listen_addr: ":9090"
llm:
  providers:
    anthropic:
      api_key: sk-a
    openai:
      api_key: sk-o
  tiers:
    fast:
      - provider: anthropic
        model: claude-3-5-haiku-latest
    powerful:
      - provider: anthropic
        model: claude-sonnet-4-20250514
      - provider: openai
        model: gpt-4o
  max_fallback_cost_usd: 0.75
database:
  url: postgres://oracle@localhost/oracle
search:
  weaviate_host: localhost:8080
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.LLM.Tiers["powerful"]) != 2 {
		t.Fatalf("powerful tier = %+v", cfg.LLM.Tiers["powerful"])
	}
	if cfg.LLM.MaxFallbackCostUSD != 0.75 {
		t.Fatalf("MaxFallbackCostUSD = %v", cfg.LLM.MaxFallbackCostUSD)
	}
	if cfg.Search.WeaviateHost != "localhost:8080" {
		t.Fatalf("WeaviateHost = %q", cfg.Search.WeaviateHost)
	}
}
