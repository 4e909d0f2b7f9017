package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	wmodels "github.com/weaviate/weaviate/entities/models"
)

// WeaviateConfig configures the Weaviate retriever.
type WeaviateConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
	APIKey string `yaml:"api_key"`
}

// WeaviateRetriever implements Retriever over a Weaviate instance.
// Collection names map to Weaviate class names (snake_case becomes
// PascalCase, e.g. visa_oracle -> VisaOracle).
type WeaviateRetriever struct {
	client *weaviate.Client
}

// NewWeaviateRetriever connects to the configured Weaviate instance.
func NewWeaviateRetriever(cfg WeaviateConfig) (*WeaviateRetriever, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("weaviate host is required")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	wcfg := weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate client: %w", err)
	}
	return &WeaviateRetriever{client: client}, nil
}

// Search runs a near-text query against the collection's class and
// returns ranked passages, best first.
func (r *WeaviateRetriever) Search(ctx context.Context, query, collection string, limit int) ([]Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if limit <= 0 {
		limit = 5
	}
	className := classNameFor(collection)

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "_additional { id certainty }"},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search: %s", result.Errors[0].Message)
	}

	return parsePassages(result, className), nil
}

func parsePassages(result *wmodels.GraphQLResponse, className string) []Passage {
	data, ok := result.Data["Get"].(map[string]any)
	if !ok {
		return nil
	}
	items, ok := data[className].([]any)
	if !ok {
		return nil
	}

	passages := make([]Passage, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		passage := Passage{}
		if text, ok := obj["text"].(string); ok {
			passage.Text = text
		}
		if additional, ok := obj["_additional"].(map[string]any); ok {
			if id, ok := additional["id"].(string); ok {
				passage.ID = id
			}
			if certainty, ok := additional["certainty"].(float64); ok {
				passage.Score = certainty
			}
		}
		if passage.Text == "" {
			continue
		}
		passages = append(passages, passage)
	}
	return passages
}

// classNameFor converts a collection name to its Weaviate class name.
func classNameFor(collection string) string {
	parts := strings.Split(collection, "_")
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	if b.Len() == 0 {
		return "GeneralLegal"
	}
	return b.String()
}
