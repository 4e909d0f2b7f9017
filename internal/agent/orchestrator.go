package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nusantara-labs/oracle/internal/llm"
	"github.com/nusantara-labs/oracle/internal/observability"
	"github.com/nusantara-labs/oracle/internal/routing"
	"github.com/nusantara-labs/oracle/pkg/models"
)

// ContextProvider fetches what is known about a user before a query
// runs. A nil provider or a provider error both degrade to an empty
// context.
type ContextProvider interface {
	GetUserContext(ctx context.Context, userID string) (*models.UserContext, error)
}

// MemorySaver receives fire-and-forget save tasks after each answered
// query.
type MemorySaver interface {
	CreateSaveTask(userID, query, answer string)
}

// OrchestratorConfig tunes the top-level query pipeline.
type OrchestratorConfig struct {
	// Persona overrides the default system persona when non-empty.
	Persona string

	// MaxSteps bounds the reasoning loop per query.
	MaxSteps int
}

// Orchestrator is the single entry point into the core: it routes the
// query, assembles the prompt, runs the reasoning loop, applies the
// final abstention checks, and schedules the memory save.
type Orchestrator struct {
	router   *routing.Router
	engine   *Engine
	registry *ToolRegistry
	memory   MemorySaver
	userCtx  ContextProvider
	cfg      OrchestratorConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewOrchestrator wires the pipeline and advertises the registered
// tools to the gateway. memory and userCtx may be nil.
func NewOrchestrator(router *routing.Router, engine *Engine, registry *ToolRegistry, gateway *llm.Gateway, memory MemorySaver, userCtx ContextProvider, cfg OrchestratorConfig, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 6
	}
	if logger == nil {
		logger = slog.Default()
	}

	descriptors := make([]llm.ToolDescriptor, 0, len(registry.Names()))
	for _, name := range registry.Names() {
		tool, ok := registry.Get(name)
		if !ok {
			continue
		}
		descriptors = append(descriptors, llm.ToolDescriptor{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      string(tool.Schema()),
		})
	}
	gateway.SetTools(descriptors)

	return &Orchestrator{
		router:   router,
		engine:   engine,
		registry: registry,
		memory:   memory,
		userCtx:  userCtx,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// ProcessQuery answers one query end to end.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query, userID string) (*models.CoreResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	requestID := uuid.NewString()
	start := time.Now()
	logger := o.logger.With("request_id", requestID, "user_id", userID)

	if reply, ok := greetingReply(query); ok {
		logger.Info("greeting fastpath", "took", time.Since(start))
		return &models.CoreResult{
			Answer:        reply,
			EvidenceScore: 1.0,
			ModelUsed:     "fastpath",
			RoutingStats:  o.router.Stats(),
		}, nil
	}

	decision := o.router.RouteWithConfidence(query)
	if o.metrics != nil {
		o.metrics.RecordRoute(decision.Collection, confidenceBucket(decision.Confidence))
	}
	logger.Info("query routed",
		"collection", decision.Collection,
		"confidence", decision.Confidence,
	)

	state := NewState(query, o.cfg.MaxSteps)
	modelUsed, err := o.engine.ExecuteReactLoop(ctx, state, o.systemPrompt(ctx, userID, decision))
	if err != nil {
		return nil, err
	}

	o.applyContextCheck(state, logger)

	if o.memory != nil && state.FinalAnswer != AbstentionMessage {
		o.memory.CreateSaveTask(userID, query, state.FinalAnswer)
	}

	logger.Info("query answered",
		"model", modelUsed,
		"evidence_score", state.EvidenceScore,
		"tool_executions", state.ToolExecutions,
		"took", time.Since(start),
	)

	return &models.CoreResult{
		Answer:        state.FinalAnswer,
		Sources:       state.Sources,
		EvidenceScore: state.EvidenceScore,
		ModelUsed:     modelUsed,
		RoutingStats:  o.router.Stats(),
	}, nil
}

// ProcessQueryStream answers one query as a lazy, finite event
// sequence. The channel always ends with exactly one StreamDone event
// carrying the result, then closes; it is not restartable.
func (o *Orchestrator) ProcessQueryStream(ctx context.Context, query, userID string) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent, 16)

	go func() {
		defer close(events)

		emit := func(ev models.StreamEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		query := strings.TrimSpace(query)
		if query == "" {
			emit(models.StreamEvent{Type: models.StreamDone, Result: &models.CoreResult{
				Answer:    AbstentionMessage,
				ModelUsed: "none",
			}})
			return
		}

		if reply, ok := greetingReply(query); ok {
			streamTokens(emit, reply)
			emit(models.StreamEvent{Type: models.StreamDone, Result: &models.CoreResult{
				Answer:        reply,
				EvidenceScore: 1.0,
				ModelUsed:     "fastpath",
				RoutingStats:  o.router.Stats(),
			}})
			return
		}

		decision := o.router.RouteWithConfidence(query)
		if o.metrics != nil {
			o.metrics.RecordRoute(decision.Collection, confidenceBucket(decision.Confidence))
		}

		state := NewState(query, o.cfg.MaxSteps)
		listen := func(ev stepEvent) {
			switch {
			case ev.toolCall != nil:
				emit(models.StreamEvent{Type: models.StreamToolCall, Payload: ev.toolCall.Name})
			case ev.toolResult != nil:
				emit(models.StreamEvent{Type: models.StreamToolResult, Payload: ev.toolResult.Content})
			}
		}

		modelUsed, err := o.engine.run(ctx, state, o.systemPrompt(ctx, userID, decision), listen)
		if err != nil {
			emit(models.StreamEvent{Type: models.StreamDone, Result: &models.CoreResult{
				Answer:    AbstentionMessage,
				ModelUsed: modelUsed,
			}})
			return
		}

		o.applyContextCheck(state, o.logger)
		if o.memory != nil && state.FinalAnswer != AbstentionMessage {
			o.memory.CreateSaveTask(userID, query, state.FinalAnswer)
		}

		streamTokens(emit, state.FinalAnswer)
		emit(models.StreamEvent{Type: models.StreamDone, Result: &models.CoreResult{
			Answer:        state.FinalAnswer,
			Sources:       state.Sources,
			EvidenceScore: state.EvidenceScore,
			ModelUsed:     modelUsed,
			RoutingStats:  o.router.Stats(),
		}})
	}()

	return events
}

// systemPrompt assembles the persona, the user context, and the routing
// hint for this query.
func (o *Orchestrator) systemPrompt(ctx context.Context, userID string, decision models.RoutingDecision) string {
	var userContext *models.UserContext
	if o.userCtx != nil {
		uc, err := o.userCtx.GetUserContext(ctx, userID)
		if err != nil {
			o.logger.Warn("user context lookup failed", "user_id", userID, "error", err)
		} else {
			userContext = uc
		}
	}

	prompt := BuildSystemPrompt(o.cfg.Persona, userContext)
	prompt += fmt.Sprintf("\n\nSearch the %q collection first for this query.", decision.Collection)
	if len(decision.Fallbacks) > 1 {
		prompt += fmt.Sprintf(" If it has nothing relevant, try: %s.", strings.Join(decision.Fallbacks[1:], ", "))
	}
	return prompt
}

// applyContextCheck is the last line of defense: an answer produced
// without a single successful tool observation is never trusted, no
// matter how the evidence scored.
func (o *Orchestrator) applyContextCheck(state *State, logger *slog.Logger) {
	if len(state.ContextGathered) == 0 && state.FinalAnswer != AbstentionMessage {
		logger.Warn("answer produced without gathered context, abstaining")
		state.FinalAnswer = AbstentionMessage
		state.EvidenceScore = 0
		state.Sources = nil
	}
}

// confidenceBucket mirrors the router's stats bands for metric labels.
func confidenceBucket(confidence float64) string {
	switch {
	case confidence >= 0.7:
		return "high"
	case confidence >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

var greetings = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
	"halo", "hai", "selamat pagi", "selamat siang", "selamat sore", "selamat malam",
}

// greetingReply answers bare greetings without spinning up the
// reasoning loop.
func greetingReply(query string) (string, bool) {
	lowered := strings.ToLower(strings.TrimRight(strings.TrimSpace(query), "!.?, "))
	if len(strings.Fields(lowered)) > 4 {
		return "", false
	}
	for _, g := range greetings {
		if lowered == g || strings.HasPrefix(lowered, g+" there") {
			return "Hello! I can help with Indonesian immigration, business, and tax questions. What would you like to know?", true
		}
	}
	return "", false
}

// streamTokens chunks text into whitespace-delimited token events.
func streamTokens(emit func(models.StreamEvent), text string) {
	words := strings.Fields(text)
	for i, word := range words {
		payload := word
		if i < len(words)-1 {
			payload += " "
		}
		emit(models.StreamEvent{Type: models.StreamToken, Payload: payload})
	}
}
