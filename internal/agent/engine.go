package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nusantara-labs/oracle/internal/llm"
	"github.com/nusantara-labs/oracle/internal/observability"
	"github.com/nusantara-labs/oracle/pkg/models"
)

// PostProcessor optionally rewrites the final answer, e.g. to format
// citations through an external pipeline. A failing post-processor is
// replaced by the local citation formatter, never surfaced.
type PostProcessor interface {
	Process(ctx context.Context, answer string, sources []models.Source) (string, error)
}

// EngineConfig tunes the reasoning loop.
type EngineConfig struct {
	// Tier selects the gateway chain the loop reasons on.
	Tier llm.Tier

	// AbstainThreshold and WarnThreshold override the evidence policy
	// cut-offs. Zero values mean the contractual defaults.
	AbstainThreshold float64
	WarnThreshold    float64
}

// Engine runs the Thought -> Action -> Observation loop against the
// gateway and the tool executor.
type Engine struct {
	gateway  *llm.Gateway
	executor *ToolExecutor
	registry *ToolRegistry
	post     PostProcessor
	cfg      EngineConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewEngine creates a reasoning engine. post may be nil.
func NewEngine(gateway *llm.Gateway, executor *ToolExecutor, registry *ToolRegistry, post PostProcessor, cfg EngineConfig, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	if cfg.Tier == "" {
		cfg.Tier = llm.TierPowerful
	}
	if cfg.AbstainThreshold <= 0 {
		cfg.AbstainThreshold = AbstainThreshold
	}
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = WarnThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		gateway:  gateway,
		executor: executor,
		registry: registry,
		post:     post,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// stepEvent reports loop progress to an optional listener, used by the
// streaming variant. Either call or result is set.
type stepEvent struct {
	toolCall   *models.ToolCall
	toolResult *ToolResult
}

// ExecuteReactLoop drives the loop to completion, mutating state in
// place, and returns the model that produced the final turn. The only
// returned error is context cancellation; every internal failure ends
// in the abstention answer instead.
func (e *Engine) ExecuteReactLoop(ctx context.Context, state *State, systemPrompt string) (string, error) {
	return e.run(ctx, state, systemPrompt, nil)
}

func (e *Engine) run(ctx context.Context, state *State, systemPrompt string, listen func(stepEvent)) (string, error) {
	chat := llm.NewChat(systemPrompt)
	costs := &llm.CostTracker{}
	modelUsed := "none"

	message := state.Query
	for step := 0; step < state.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return modelUsed, err
		}

		result, err := e.gateway.SendMessage(ctx, chat, message, e.cfg.Tier, costs)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return modelUsed, ctxErr
			}
			// Cascade exhausted: terminate with the abstention.
			e.logger.Warn("reasoning terminated by gateway failure", "step", step, "error", err)
			state.FinalAnswer = AbstentionMessage
			state.EvidenceScore = 0
			return modelUsed, nil
		}
		modelUsed = result.ModelUsed

		turn := parseTurn(result.Text)
		if turn.ToolCall != nil {
			if listen != nil {
				listen(stepEvent{toolCall: turn.ToolCall})
			}
			observation := e.executeTool(ctx, state, turn)
			if listen != nil {
				listen(stepEvent{toolResult: observation})
			}
			message = "Observation: " + observation.Content
			continue
		}

		state.FinalAnswer = turn.FinalAnswer
		break
	}

	e.finalize(ctx, state, chat, costs)
	if e.metrics != nil {
		e.metrics.RecordEvidenceScore(state.EvidenceScore)
	}
	return modelUsed, nil
}

// executeTool runs one parsed tool call and folds the observation into
// the state. Cap violations become observations like any other tool
// failure; the loop keeps moving toward a final answer.
func (e *Engine) executeTool(ctx context.Context, state *State, turn parsed) *ToolResult {
	call := turn.ToolCall
	result, _, err := e.executor.Execute(ctx, call.Name, call.Arguments, state.ToolExecutions)
	if err != nil {
		if errors.Is(err, ErrRateLimitExceeded) {
			result = &ToolResult{Content: err.Error(), IsError: true}
		} else {
			result = &ToolResult{Content: fmt.Sprintf("tool %s failed: %v", call.Name, err), IsError: true}
		}
	} else {
		state.ToolExecutions++
	}

	trusted := false
	if tool, ok := e.registry.Get(call.Name); ok {
		trusted = isTrusted(tool)
	}
	if trusted && !result.IsError && len(result.Sources) > 0 {
		state.TrustedEvidence = true
	}
	state.AddObservation(turn.Thought, call.Name, result, trusted)
	return result
}

// finalize applies the evidence policy and the optional post-processing
// pipeline to the answer accumulated in state.
func (e *Engine) finalize(ctx context.Context, state *State, chat *llm.Chat, costs *llm.CostTracker) {
	state.EvidenceScore = scoreEvidence(state.Sources, state.TrustedEvidence)

	switch {
	case state.EvidenceScore < e.cfg.AbstainThreshold:
		// Weakly-supported answers are overridden regardless of what
		// the model said.
		state.FinalAnswer = AbstentionMessage
		return
	case state.EvidenceScore < e.cfg.WarnThreshold && state.FinalAnswer != "":
		e.hedgeAnswer(ctx, state, chat, costs)
	}

	if state.FinalAnswer == "" {
		state.FinalAnswer = AbstentionMessage
		return
	}
	state.FinalAnswer = e.postProcess(ctx, state.FinalAnswer, state.Sources)
}

// hedgeAnswer re-queries the model once with an explicit weakness
// warning instead of silently accepting a borderline answer. The
// original answer stands if the re-query fails.
func (e *Engine) hedgeAnswer(ctx context.Context, state *State, chat *llm.Chat, costs *llm.CostTracker) {
	warning := "WARNING: evidence for the answer above is weak. " +
		"Rewrite your final answer so it clearly states what is and is not confirmed by the retrieved sources, " +
		"and recommend verifying with a professional. Reply with only the revised answer."

	result, err := e.gateway.SendMessage(ctx, chat, warning, e.cfg.Tier, costs)
	if err != nil {
		e.logger.Warn("hedged re-query failed, keeping original answer", "error", err)
		return
	}
	// The model may still wrap the revision in ReAct framing; parse it
	// the same way as a loop turn so no marker leaks into the answer.
	if turn := parseTurn(result.Text); turn.IsFinal && strings.TrimSpace(turn.FinalAnswer) != "" {
		state.FinalAnswer = strings.TrimSpace(turn.FinalAnswer)
	}
}

func (e *Engine) postProcess(ctx context.Context, answer string, sources []models.Source) string {
	if e.post != nil {
		processed, err := e.post.Process(ctx, answer, sources)
		if err == nil {
			return processed
		}
		e.logger.Warn("post-processing pipeline failed, using local formatter", "error", err)
	}
	return formatCitations(answer, sources)
}

// formatCitations is the local fallback post-processor: it appends a
// compact source list to the answer.
func formatCitations(answer string, sources []models.Source) string {
	if len(sources) == 0 {
		return answer
	}
	var b strings.Builder
	b.WriteString(answer)
	b.WriteString("\n\nSources:")
	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		if _, dup := seen[src.ID]; dup || src.ID == "" {
			continue
		}
		seen[src.ID] = struct{}{}
		fmt.Fprintf(&b, "\n- %s", src.ID)
	}
	return b.String()
}
