// Package config loads and validates the YAML deployment configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	LLM      LLMConfig      `yaml:"llm"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Routing  RoutingConfig  `yaml:"routing"`
	Agent    AgentConfig    `yaml:"agent"`
	Memory   MemoryConfig   `yaml:"memory"`
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Tools    ToolsConfig    `yaml:"tools"`
}

type ServerConfig struct {
	// ListenAddr serves /metrics and /healthz.
	ListenAddr string `yaml:"listen_addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LLMConfig struct {
	Providers          map[string]ProviderConfig `yaml:"providers"`
	Tiers              map[string][]CandidateRef `yaml:"tiers"`
	MaxFallbackDepth   int                       `yaml:"max_fallback_depth"`
	MaxFallbackCostUSD float64                   `yaml:"max_fallback_cost_usd"`
	RequestTimeout     time.Duration             `yaml:"request_timeout"`
	MaxTokens          int                       `yaml:"max_tokens"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// CandidateRef names one (provider, model) pair in a tier chain.
type CandidateRef struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

type RoutingConfig struct {
	DefaultCollection string `yaml:"default_collection"`
	MaxFallbacks      int    `yaml:"max_fallbacks"`
}

type AgentConfig struct {
	Persona           string        `yaml:"persona"`
	Tier              string        `yaml:"tier"`
	MaxSteps          int           `yaml:"max_steps"`
	MaxToolExecutions int           `yaml:"max_tool_executions"`
	ToolTimeout       time.Duration `yaml:"tool_timeout"`
	AbstainThreshold  float64       `yaml:"abstain_threshold"`
	WarnThreshold     float64       `yaml:"warn_threshold"`
}

type MemoryConfig struct {
	LockTimeout time.Duration `yaml:"lock_timeout"`
	QueueSize   int           `yaml:"queue_size"`
	Workers     int           `yaml:"workers"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type SearchConfig struct {
	WeaviateHost   string `yaml:"weaviate_host"`
	WeaviateScheme string `yaml:"weaviate_scheme"`
	WeaviateAPIKey string `yaml:"weaviate_api_key"`
}

type ToolsConfig struct {
	WebSearch WebSearchConfig `yaml:"websearch"`
}

type WebSearchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
// Providers and tiers must still come from a file or the environment.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{ListenAddr: ":8085"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		LLM: LLMConfig{
			Providers:          map[string]ProviderConfig{},
			Tiers:              map[string][]CandidateRef{},
			MaxFallbackDepth:   3,
			MaxFallbackCostUSD: 0.50,
			RequestTimeout:     45 * time.Second,
			MaxTokens:          2048,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
		},
		Routing: RoutingConfig{MaxFallbacks: 3},
		Agent: AgentConfig{
			Tier:              "powerful",
			MaxSteps:          6,
			MaxToolExecutions: 10,
			ToolTimeout:       30 * time.Second,
			AbstainThreshold:  0.3,
			WarnThreshold:     0.6,
		},
		Memory: MemoryConfig{
			LockTimeout: 5 * time.Second,
			QueueSize:   256,
			Workers:     2,
		},
		Search: SearchConfig{WeaviateScheme: "http"},
		Tools:  ToolsConfig{WebSearch: WebSearchConfig{Enabled: true}},
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Agent.AbstainThreshold < 0 || c.Agent.AbstainThreshold > 1 {
		return fmt.Errorf("agent.abstain_threshold must be in [0,1], got %v", c.Agent.AbstainThreshold)
	}
	if c.Agent.WarnThreshold < 0 || c.Agent.WarnThreshold > 1 {
		return fmt.Errorf("agent.warn_threshold must be in [0,1], got %v", c.Agent.WarnThreshold)
	}
	if c.Agent.AbstainThreshold >= c.Agent.WarnThreshold {
		return fmt.Errorf("agent.abstain_threshold (%v) must be below agent.warn_threshold (%v)",
			c.Agent.AbstainThreshold, c.Agent.WarnThreshold)
	}
	if c.LLM.MaxFallbackCostUSD < 0 {
		return fmt.Errorf("llm.max_fallback_cost_usd must not be negative")
	}

	for tier, chain := range c.LLM.Tiers {
		if len(chain) == 0 {
			return fmt.Errorf("llm.tiers.%s is empty", tier)
		}
		for _, ref := range chain {
			if ref.Provider == "" || ref.Model == "" {
				return fmt.Errorf("llm.tiers.%s has a candidate missing provider or model", tier)
			}
			if _, ok := c.LLM.Providers[ref.Provider]; !ok {
				return fmt.Errorf("llm.tiers.%s references unconfigured provider %q", tier, ref.Provider)
			}
		}
	}
	return nil
}
