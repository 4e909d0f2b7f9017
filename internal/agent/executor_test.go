package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nusantara-labs/oracle/pkg/models"
)

type fakeTool struct {
	name    string
	schema  string
	trusted bool
	result  *ToolResult
	err     error
	panics  bool
	calls   int
}

func (f *fakeTool) Name() string            { return f.name }
func (f *fakeTool) Description() string     { return "test tool" }
func (f *fakeTool) Schema() json.RawMessage { return json.RawMessage(f.schema) }
func (f *fakeTool) Trusted() bool           { return f.trusted }

func (f *fakeTool) Execute(_ context.Context, _ map[string]any) (*ToolResult, error) {
	f.calls++
	if f.panics {
		panic("boom")
	}
	return f.result, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor(t *testing.T, tools ...*fakeTool) (*ToolExecutor, *ToolRegistry) {
	t.Helper()
	registry := NewToolRegistry()
	for _, tool := range tools {
		registry.Register(tool)
	}
	return NewToolExecutor(registry, ExecutorConfig{MaxExecutions: 3}, nil, quietLogger()), registry
}

func TestExecuteEnforcesCap(t *testing.T) {
	tool := &fakeTool{name: "echo", result: &ToolResult{Content: "ok"}}
	executor, _ := newTestExecutor(t, tool)

	_, _, err := executor.Execute(context.Background(), "echo", nil, 3)
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("error = %v, want ErrRateLimitExceeded", err)
	}
	if tool.calls != 0 {
		t.Fatalf("tool dispatched despite the cap")
	}
}

func TestExecuteUnknownToolBecomesObservation(t *testing.T) {
	executor, _ := newTestExecutor(t, &fakeTool{name: "echo", result: &ToolResult{Content: "ok"}})

	result, _, err := executor.Execute(context.Background(), "nope", nil, 0)
	if err != nil {
		t.Fatalf("unknown tool returned a Go error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "not found") {
		t.Fatalf("observation = %+v", result)
	}
	if !strings.Contains(result.Content, "echo") {
		t.Fatalf("observation does not list available tools: %q", result.Content)
	}
}

func TestExecuteValidatesArguments(t *testing.T) {
	tool := &fakeTool{
		name: "search",
		schema: `{
			"type": "object",
			"properties": {"query": {"type": "string"}},
			"required": ["query"]
		}`,
		result: &ToolResult{Content: "found"},
	}
	executor, _ := newTestExecutor(t, tool)

	result, _, err := executor.Execute(context.Background(), "search", map[string]any{"limit": 3}, 0)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "invalid arguments") {
		t.Fatalf("observation = %+v", result)
	}
	if tool.calls != 0 {
		t.Fatalf("tool dispatched with invalid arguments")
	}

	result, _, err = executor.Execute(context.Background(), "search", map[string]any{"query": "kitas"}, 0)
	if err != nil || result.IsError {
		t.Fatalf("valid arguments rejected: result=%+v err=%v", result, err)
	}
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	executor, _ := newTestExecutor(t, &fakeTool{name: "crash", panics: true})

	result, _, err := executor.Execute(context.Background(), "crash", nil, 0)
	if err != nil {
		t.Fatalf("panic leaked as a Go error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "internal error") {
		t.Fatalf("observation = %+v", result)
	}
}

func TestExecuteToolErrorBecomesObservation(t *testing.T) {
	executor, _ := newTestExecutor(t, &fakeTool{name: "flaky", err: errors.New("upstream down")})

	result, _, err := executor.Execute(context.Background(), "flaky", nil, 0)
	if err != nil {
		t.Fatalf("tool error leaked as a Go error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "upstream down") {
		t.Fatalf("observation = %+v", result)
	}
}

func TestExecutePassesSourcesThrough(t *testing.T) {
	tool := &fakeTool{name: "search", trusted: true, result: &ToolResult{
		Content: "passage text",
		Sources: []models.Source{{ID: "doc-1", Score: 0.91}},
	}}
	executor, _ := newTestExecutor(t, tool)

	result, _, err := executor.Execute(context.Background(), "search", nil, 0)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0].ID != "doc-1" {
		t.Fatalf("sources not passed through: %+v", result.Sources)
	}
}
