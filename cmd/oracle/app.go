package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nusantara-labs/oracle/internal/agent"
	"github.com/nusantara-labs/oracle/internal/breaker"
	"github.com/nusantara-labs/oracle/internal/config"
	"github.com/nusantara-labs/oracle/internal/llm"
	"github.com/nusantara-labs/oracle/internal/llm/providers"
	"github.com/nusantara-labs/oracle/internal/memory"
	"github.com/nusantara-labs/oracle/internal/memory/postgres"
	"github.com/nusantara-labs/oracle/internal/observability"
	"github.com/nusantara-labs/oracle/internal/routing"
	"github.com/nusantara-labs/oracle/internal/search"
	"github.com/nusantara-labs/oracle/internal/tools/calculator"
	"github.com/nusantara-labs/oracle/internal/tools/pricing"
	"github.com/nusantara-labs/oracle/internal/tools/team"
	"github.com/nusantara-labs/oracle/internal/tools/vectorsearch"
	"github.com/nusantara-labs/oracle/internal/tools/websearch"
	"github.com/nusantara-labs/oracle/pkg/models"
)

// app holds the assembled pipeline for the lifetime of a command.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	registry     *prometheus.Registry
	gateway      *llm.Gateway
	orchestrator *agent.Orchestrator
	memory       *memory.Handler
	store        *postgres.Store
}

// buildApp wires every component from the configuration.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(promReg)

	modelProviders, err := buildProviders(cfg.LLM.Providers)
	if err != nil {
		return nil, err
	}
	chains := make(map[llm.Tier][]llm.Candidate, len(cfg.LLM.Tiers))
	for tierName, refs := range cfg.LLM.Tiers {
		tier := llm.Tier(tierName)
		for _, ref := range refs {
			chains[tier] = append(chains[tier], llm.Candidate{
				Provider: ref.Provider,
				Model:    ref.Model,
				Tier:     tier,
			})
		}
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.Timeout,
	}, logger)
	breakers.OnTransition = func(target string, to breaker.State) {
		metrics.RecordBreakerTransition(target, to.String())
	}

	gateway := llm.NewGateway(modelProviders, chains, breakers, llm.GatewayConfig{
		MaxFallbackDepth:   cfg.LLM.MaxFallbackDepth,
		MaxFallbackCostUSD: cfg.LLM.MaxFallbackCostUSD,
		RequestTimeout:     cfg.LLM.RequestTimeout,
		MaxTokens:          cfg.LLM.MaxTokens,
	}, metrics, logger)

	router := routing.NewRouter(routing.Config{
		DefaultCollection: cfg.Routing.DefaultCollection,
		MaxFallbacks:      cfg.Routing.MaxFallbacks,
	}, logger)

	toolRegistry, err := buildTools(cfg, router, logger)
	if err != nil {
		return nil, err
	}
	executor := agent.NewToolExecutor(toolRegistry, agent.ExecutorConfig{
		MaxExecutions: cfg.Agent.MaxToolExecutions,
		Timeout:       cfg.Agent.ToolTimeout,
	}, metrics, logger)

	engine := agent.NewEngine(gateway, executor, toolRegistry, nil, agent.EngineConfig{
		Tier:             llm.Tier(cfg.Agent.Tier),
		AbstainThreshold: cfg.Agent.AbstainThreshold,
		WarnThreshold:    cfg.Agent.WarnThreshold,
	}, metrics, logger)

	var store *postgres.Store
	var handler *memory.Handler
	var saver agent.MemorySaver
	var userCtx agent.ContextProvider
	if cfg.Database.URL != "" {
		store, err = postgres.Open(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open fact store: %w", err)
		}
		handler = memory.NewHandler(store, memory.Config{
			LockTimeout: cfg.Memory.LockTimeout,
			QueueSize:   cfg.Memory.QueueSize,
			Workers:     cfg.Memory.Workers,
		}, metrics, logger)
		saver = handler
		userCtx = &factContextProvider{store: store}
	}

	orchestrator := agent.NewOrchestrator(router, engine, toolRegistry, gateway, saver, userCtx, agent.OrchestratorConfig{
		Persona:  cfg.Agent.Persona,
		MaxSteps: cfg.Agent.MaxSteps,
	}, metrics, logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		registry:     promReg,
		gateway:      gateway,
		orchestrator: orchestrator,
		memory:       handler,
		store:        store,
	}, nil
}

// Close drains the memory queue and releases the database pool.
func (a *app) Close() {
	if a.memory != nil {
		a.memory.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing fact store", "error", err)
		}
	}
}

func buildProviders(cfgs map[string]config.ProviderConfig) (map[string]llm.Provider, error) {
	built := make(map[string]llm.Provider, len(cfgs))
	for name, pc := range cfgs {
		switch name {
		case "anthropic":
			built[name] = providers.NewAnthropicProvider(pc.APIKey)
		case "openai":
			if pc.BaseURL != "" {
				built[name] = providers.NewOpenAIProviderWithBaseURL(pc.APIKey, pc.BaseURL)
			} else {
				built[name] = providers.NewOpenAIProvider(pc.APIKey)
			}
		default:
			return nil, fmt.Errorf("unknown provider %q in config", name)
		}
	}
	return built, nil
}

func buildTools(cfg *config.Config, router *routing.Router, logger *slog.Logger) (*agent.ToolRegistry, error) {
	registry := agent.NewToolRegistry()

	if cfg.Search.WeaviateHost != "" {
		retriever, err := search.NewWeaviateRetriever(search.WeaviateConfig{
			Host:   cfg.Search.WeaviateHost,
			Scheme: cfg.Search.WeaviateScheme,
			APIKey: cfg.Search.WeaviateAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("weaviate retriever: %w", err)
		}
		registry.Register(vectorsearch.New(retriever, router, logger))
	} else {
		logger.Warn("no weaviate host configured, knowledge-base search disabled")
	}

	registry.Register(calculator.New())
	registry.Register(pricing.New(nil))
	registry.Register(team.New(nil))
	if cfg.Tools.WebSearch.Enabled {
		registry.Register(websearch.New(websearch.Config{}, nil))
	}
	return registry, nil
}

// factContextProvider surfaces stored user facts to the system prompt.
type factContextProvider struct {
	store *postgres.Store
}

func (p *factContextProvider) GetUserContext(ctx context.Context, userID string) (*models.UserContext, error) {
	facts, err := p.store.Facts(ctx, userID, 10)
	if err != nil {
		return nil, err
	}
	return &models.UserContext{Facts: facts}, nil
}
