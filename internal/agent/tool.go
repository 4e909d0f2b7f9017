// Package agent implements the reasoning core: the ReAct loop, tool
// dispatch, evidence scoring, and the top-level orchestrator.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nusantara-labs/oracle/pkg/models"
)

// Tool is the closed capability all executable tools implement.
// Concrete tools register into a ToolRegistry at startup; dispatch is
// by name, never by type.
type Tool interface {
	// Name returns the tool name used in model tool-call directives.
	Name() string

	// Description returns what the tool does, for the model.
	Description() string

	// Schema returns the JSON Schema of the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool. Arguments match Schema. Errors are
	// converted to observations by the executor, never propagated
	// out of the reasoning loop.
	Execute(ctx context.Context, args map[string]any) (*ToolResult, error)
}

// TrustedSource is implemented by tools whose results count as
// verifiable evidence (e.g. the knowledge-base search). Sources from
// untrusted tools are still shown to the model but carry no evidence
// weight.
type TrustedSource interface {
	Trusted() bool
}

// ToolResult is the output of one tool execution.
type ToolResult struct {
	// Content is the observation text fed back to the model.
	Content string

	// IsError marks the observation as an error condition.
	IsError bool

	// Sources lists retrieved passages backing the content, if the
	// tool is an evidence source.
	Sources []models.Source
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// ToolRegistry is a thread-safe name -> tool lookup table. Argument
// schemas are compiled once at registration.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]registeredTool)}
}

// Register adds a tool, replacing any previous tool of the same name.
// A schema that fails to compile is dropped; the tool then runs
// without argument validation.
func (r *ToolRegistry) Register(tool Tool) {
	entry := registeredTool{tool: tool}
	if raw := tool.Schema(); len(raw) > 0 {
		compiler := jsonschema.NewCompiler()
		resource := tool.Name() + ".schema.json"
		if err := compiler.AddResource(resource, strings.NewReader(string(raw))); err == nil {
			if schema, err := compiler.Compile(resource); err == nil {
				entry.schema = schema
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = entry
}

// Get returns the tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

// Names returns the registered tool names, unordered.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Validate checks args against the tool's compiled schema. Tools
// without a schema accept anything.
func (r *ToolRegistry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok || entry.schema == nil {
		return nil
	}
	if err := entry.schema.Validate(anyMap(args)); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return nil
}

// anyMap normalizes args for schema validation; a nil map validates as
// an empty object.
func anyMap(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	return map[string]any(args)
}

// isTrusted reports whether the tool's results count as evidence.
func isTrusted(tool Tool) bool {
	if ts, ok := tool.(TrustedSource); ok {
		return ts.Trusted()
	}
	return false
}
