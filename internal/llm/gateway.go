package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nusantara-labs/oracle/internal/breaker"
	"github.com/nusantara-labs/oracle/internal/observability"
)

// GatewayConfig bounds the fallback cascade and each attempt.
type GatewayConfig struct {
	// MaxFallbackDepth caps the number of candidates attempted for a
	// single top-level query.
	MaxFallbackDepth int

	// MaxFallbackCostUSD caps the accumulated billed cost of a single
	// top-level query's cascade.
	MaxFallbackCostUSD float64

	// RequestTimeout bounds each individual provider attempt. The
	// gateway does not retry a timed-out attempt itself; the cascade
	// simply moves on.
	RequestTimeout time.Duration

	// MaxTokens is the completion budget passed to providers.
	MaxTokens int
}

// DefaultGatewayConfig returns the default cascade bounds.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MaxFallbackDepth:   3,
		MaxFallbackCostUSD: 0.50,
		RequestTimeout:     45 * time.Second,
		MaxTokens:          2048,
	}
}

// Gateway walks tier chains of (provider, model) candidates, skipping
// candidates whose breaker is open and accruing cost into the caller's
// CostTracker. It is safe for concurrent use.
type Gateway struct {
	mu        sync.RWMutex
	providers map[string]Provider
	chains    map[Tier][]Candidate
	toolBlock string

	breakers *breaker.Registry
	cfg      GatewayConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewGateway creates a gateway over the given providers and tier
// chains. The breaker registry is constructor-injected so deployments
// can share breaker state with health reporting.
func NewGateway(providers map[string]Provider, chains map[Tier][]Candidate, breakers *breaker.Registry, cfg GatewayConfig, metrics *observability.Metrics, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if breakers == nil {
		breakers = breaker.NewRegistry(breaker.DefaultConfig(), logger)
	}
	defaults := DefaultGatewayConfig()
	if cfg.MaxFallbackDepth <= 0 {
		cfg.MaxFallbackDepth = defaults.MaxFallbackDepth
	}
	if cfg.MaxFallbackCostUSD <= 0 {
		cfg.MaxFallbackCostUSD = defaults.MaxFallbackCostUSD
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	normalized := make(map[string]Provider, len(providers))
	for name, p := range providers {
		normalized[strings.ToLower(strings.TrimSpace(name))] = p
	}
	return &Gateway{
		providers: normalized,
		chains:    chains,
		breakers:  breakers,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// SetTools advertises tools to the model by rendering them into the
// system prompt block. Malformed descriptors (empty name) are dropped
// silently rather than raising.
func (g *Gateway) SetTools(tools []ToolDescriptor) {
	var b strings.Builder
	for _, tool := range tools {
		if strings.TrimSpace(tool.Name) == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
		if strings.TrimSpace(tool.Schema) != "" {
			fmt.Fprintf(&b, "  arguments schema: %s\n", tool.Schema)
		}
	}
	block := ""
	if b.Len() > 0 {
		block = "Available tools:\n" + b.String()
	}

	g.mu.Lock()
	g.toolBlock = block
	g.mu.Unlock()
}

// SendMessage appends message to the chat, walks the tier's fallback
// chain, and on success appends the assistant reply to the chat.
//
// Budget policy: depth and cost limits are checked before each new
// attempt, never after, so a single attempt that ends up exceeding the
// budget still completes. Cost accrues even from failed attempts when
// the provider billed for them.
func (g *Gateway) SendMessage(ctx context.Context, chat *Chat, message string, tier Tier, costs *CostTracker) (*Result, error) {
	if costs == nil {
		costs = &CostTracker{}
	}

	g.mu.RLock()
	chain := g.chains[tier]
	toolBlock := g.toolBlock
	g.mu.RUnlock()
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoProviders, tier)
	}

	chat.AddUser(message)

	system := chat.System
	if toolBlock != "" {
		system = system + "\n\n" + toolBlock
	}

	// Depth bounds this cascade; the cost budget is cumulative across
	// every cascade sharing the tracker, so a long reasoning run cannot
	// spend the budget one cheap attempt at a time.
	var lastErr error
	attempted := 0
	for _, candidate := range chain {
		// Budget is checked before each new attempt, never after, so an
		// attempt that ends up exceeding it still completes.
		if attempted >= g.cfg.MaxFallbackDepth {
			return nil, fmt.Errorf("%w: fallback depth %d reached", ErrFallbackExhausted, attempted)
		}
		if costs.AccumulatedCostUSD >= g.cfg.MaxFallbackCostUSD {
			return nil, fmt.Errorf("%w: cost budget %.4f USD spent", ErrFallbackExhausted, costs.AccumulatedCostUSD)
		}

		provider, ok := g.providers[candidate.Provider]
		if !ok {
			g.logger.Warn("candidate references unknown provider", "provider", candidate.Provider)
			continue
		}

		cb := g.breakers.Get(candidate.Target())
		if cb.IsOpen() {
			g.logger.Debug("skipping candidate with open breaker", "target", candidate.Target())
			continue
		}

		attempted++
		costs.FallbackDepth++

		resp, err := g.attempt(ctx, provider, candidate, system, chat.Messages)
		if resp != nil {
			costs.AccumulatedCostUSD += resp.Usage.CostUSD
			if g.metrics != nil {
				g.metrics.RecordLLMTokens(candidate.Provider, candidate.Model, resp.Usage)
			}
		}
		if err == nil {
			cb.RecordSuccess()
			chat.AddAssistant(resp.Text)
			return &Result{
				Text:      resp.Text,
				ModelUsed: candidate.Model,
				Raw:       resp.Raw,
				Usage:     resp.Usage,
			}, nil
		}

		cb.RecordFailure()
		classified := wrapProviderError(candidate, err)
		lastErr = classified
		g.logger.Warn("provider attempt failed",
			"target", candidate.Target(),
			"kind", string(classified.Kind),
			"error", err,
		)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrFallbackExhausted, lastErr)
	}
	return nil, fmt.Errorf("%w: all candidates skipped", ErrFallbackExhausted)
}

// attempt performs one bounded provider call and records metrics.
func (g *Gateway) attempt(ctx context.Context, provider Provider, candidate Candidate, system string, messages []Message) (*ChatResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	req := &ChatRequest{
		Model:     candidate.Model,
		System:    system,
		Messages:  messages,
		MaxTokens: g.cfg.MaxTokens,
	}

	start := time.Now()
	resp, err := provider.Send(attemptCtx, req)
	if g.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		g.metrics.RecordLLMAttempt(candidate.Provider, candidate.Model, status, time.Since(start))
	}
	return resp, err
}

// HealthCheck reports the breaker state of every candidate across all
// tier chains.
func (g *Gateway) HealthCheck() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	health := make(map[string]string)
	for _, chain := range g.chains {
		for _, candidate := range chain {
			target := candidate.Target()
			if _, ok := g.providers[candidate.Provider]; !ok {
				health[target] = "unconfigured"
				continue
			}
			health[target] = g.breakers.Get(target).State().String()
		}
	}
	return health
}
