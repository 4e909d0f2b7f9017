package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nusantara-labs/oracle/internal/observability"
)

// ErrRateLimitExceeded indicates the per-run tool execution cap was
// hit. The reasoning loop converts it to an observation and keeps
// going toward a final answer.
var ErrRateLimitExceeded = errors.New("tool execution limit exceeded")

// ExecutorConfig bounds tool execution.
type ExecutorConfig struct {
	// MaxExecutions caps tool calls per reasoning run.
	MaxExecutions int

	// Timeout bounds a single tool execution.
	Timeout time.Duration
}

// DefaultExecutorConfig returns the default execution bounds.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxExecutions: 10,
		Timeout:       30 * time.Second,
	}
}

// ToolExecutor dispatches validated tool calls against a registry.
// Tool failures of any kind (unknown name, bad arguments, execution
// error, panic) become error observations, never Go errors, so one
// failing tool cannot abort a reasoning run.
type ToolExecutor struct {
	registry *ToolRegistry
	cfg      ExecutorConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewToolExecutor creates an executor over the registry.
func NewToolExecutor(registry *ToolRegistry, cfg ExecutorConfig, metrics *observability.Metrics, logger *slog.Logger) *ToolExecutor {
	defaults := DefaultExecutorConfig()
	if cfg.MaxExecutions <= 0 {
		cfg.MaxExecutions = defaults.MaxExecutions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolExecutor{registry: registry, cfg: cfg, metrics: metrics, logger: logger}
}

// Execute runs the named tool. executionCount is the number of tool
// calls already made in the current reasoning run; once it reaches the
// cap, Execute returns ErrRateLimitExceeded without dispatching.
//
// All other failure modes return a ToolResult with IsError set and a
// nil error: the observation is the error channel of the ReAct loop.
func (e *ToolExecutor) Execute(ctx context.Context, name string, args map[string]any, executionCount int) (*ToolResult, time.Duration, error) {
	if executionCount >= e.cfg.MaxExecutions {
		if e.metrics != nil {
			e.metrics.RecordToolExecution(name, "rejected", 0)
		}
		return nil, 0, fmt.Errorf("%w: %d calls already made", ErrRateLimitExceeded, executionCount)
	}

	start := time.Now()
	result := e.dispatch(ctx, name, args)
	elapsed := time.Since(start)

	if e.metrics != nil {
		status := "success"
		if result.IsError {
			status = "error"
		}
		e.metrics.RecordToolExecution(name, status, elapsed)
	}
	return result, elapsed, nil
}

func (e *ToolExecutor) dispatch(ctx context.Context, name string, args map[string]any) (result *ToolResult) {
	// A panicking tool must not take down the reasoning run.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked",
				"tool", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = &ToolResult{
				Content: fmt.Sprintf("tool %s failed: internal error", name),
				IsError: true,
			}
		}
	}()

	tool, ok := e.registry.Get(name)
	if !ok {
		return &ToolResult{
			Content: fmt.Sprintf("tool %q not found; available tools: %v", name, e.registry.Names()),
			IsError: true,
		}
	}

	if err := e.registry.Validate(name, args); err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	res, err := tool.Execute(execCtx, args)
	if err != nil {
		e.logger.Warn("tool execution failed", "tool", name, "error", err)
		return &ToolResult{
			Content: fmt.Sprintf("tool %s failed: %v", name, err),
			IsError: true,
		}
	}
	if res == nil {
		return &ToolResult{Content: "", IsError: false}
	}
	return res
}

// MaxExecutions returns the per-run cap.
func (e *ToolExecutor) MaxExecutions() int {
	return e.cfg.MaxExecutions
}
