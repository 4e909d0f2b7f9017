// Package vectorsearch exposes the knowledge-base retriever as a tool.
// It is the trusted evidence source: its passages carry scores that
// feed the evidence policy.
package vectorsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nusantara-labs/oracle/internal/agent"
	"github.com/nusantara-labs/oracle/internal/routing"
	"github.com/nusantara-labs/oracle/internal/search"
	"github.com/nusantara-labs/oracle/pkg/models"
)

const (
	defaultLimit = 5
	maxLimit     = 20
)

// Tool searches the knowledge collections. When the model does not name
// a collection, the router picks one; empty collections fall through
// the routing fallback chain.
type Tool struct {
	retriever search.Retriever
	router    *routing.Router
	logger    *slog.Logger
}

// New creates the tool. router may be nil, in which case an unnamed
// collection is an argument error.
func New(retriever search.Retriever, router *routing.Router, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{retriever: retriever, router: router, logger: logger}
}

func (t *Tool) Name() string { return "vector_search" }

func (t *Tool) Description() string {
	return "Search the curated knowledge base for passages about Indonesian immigration, business, tax, property, or business classification. Returns scored passages."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "What to search for"},
			"collection": {"type": "string", "description": "Collection to search; omit to route automatically"},
			"limit": {"type": "integer", "minimum": 1, "maximum": 20, "description": "Passages to return (default 5)"}
		},
		"required": ["query"]
	}`)
}

// Trusted marks search passages as verifiable evidence.
func (t *Tool) Trusted() bool { return true }

func (t *Tool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}

	limit := defaultLimit
	if v, ok := args["limit"].(float64); ok && v >= 1 {
		limit = int(v)
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	chain := t.collectionChain(args, query)
	var passages []search.Passage
	var served string
	for i, collection := range chain {
		found, err := t.retriever.Search(ctx, query, collection, limit)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", collection, err)
		}
		if len(found) > 0 {
			passages = found
			served = collection
			if i > 0 && t.router != nil {
				t.router.RecordFallbackUse()
			}
			break
		}
	}

	if len(passages) == 0 {
		return &agent.ToolResult{
			Content: fmt.Sprintf("no passages found for %q in %v", query, chain),
			IsError: true,
		}, nil
	}

	var b strings.Builder
	sources := make([]models.Source, 0, len(passages))
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s", p.ID, p.Text)
		sources = append(sources, models.Source{ID: p.ID, Score: p.Score})
	}
	t.logger.Debug("vector search served",
		"collection", served,
		"passages", len(passages),
	)
	return &agent.ToolResult{Content: b.String(), Sources: sources}, nil
}

// collectionChain resolves which collections to try, in order.
func (t *Tool) collectionChain(args map[string]any, query string) []string {
	if collection, ok := args["collection"].(string); ok && strings.TrimSpace(collection) != "" {
		return []string{strings.TrimSpace(collection)}
	}
	if t.router == nil {
		return []string{""}
	}
	decision := t.router.RouteWithConfidence(query)
	if len(decision.Fallbacks) == 0 {
		return []string{decision.Collection}
	}
	return decision.Fallbacks
}
