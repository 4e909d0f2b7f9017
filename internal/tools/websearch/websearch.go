// Package websearch answers open-web questions through the DuckDuckGo
// instant-answer API. Web results are not curated, so the tool is an
// untrusted source: its passages inform the model but carry no
// evidence weight.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nusantara-labs/oracle/internal/agent"
	"github.com/nusantara-labs/oracle/pkg/models"
)

const (
	defaultResultCount = 5
	maxResultCount     = 10
	defaultCacheTTL    = 5 * time.Minute
	maxCacheEntries    = 500
)

// Config tunes the web search tool.
type Config struct {
	// BaseURL overrides the instant-answer endpoint, for tests.
	BaseURL string

	// ResultCount is the default number of results.
	ResultCount int

	// CacheTTL bounds how long a response is served from cache.
	CacheTTL time.Duration
}

type cacheEntry struct {
	content   string
	sources   []models.Source
	expiresAt time.Time
}

// Tool queries DuckDuckGo instant answers with a small response cache.
type Tool struct {
	cfg    Config
	client *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates the tool. client may be nil.
func New(cfg Config, client *http.Client) *Tool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.duckduckgo.com"
	}
	if cfg.ResultCount <= 0 {
		cfg.ResultCount = defaultResultCount
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Tool{cfg: cfg, client: client, cache: make(map[string]cacheEntry)}
}

func (t *Tool) Name() string { return "web_search" }

func (t *Tool) Description() string {
	return "Search the public web for recent or general information not in the knowledge base. Results are unverified."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The search query"}
		},
		"required": ["query"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}

	if content, sources, ok := t.fromCache(query); ok {
		return &agent.ToolResult{Content: content, Sources: sources}, nil
	}

	content, sources, err := t.search(ctx, query)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("web search failed: %v", err), IsError: true}, nil
	}
	if content == "" {
		return &agent.ToolResult{Content: fmt.Sprintf("no web results for %q", query), IsError: true}, nil
	}

	t.store(query, content, sources)
	return &agent.ToolResult{Content: content, Sources: sources}, nil
}

func (t *Tool) search(ctx context.Context, query string) (string, []models.Source, error) {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1", t.cfg.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; OracleBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}

	var parsed struct {
		Heading       string `json:"Heading"`
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", nil, fmt.Errorf("parse response: %w", err)
	}

	var b strings.Builder
	var sources []models.Source
	if parsed.AbstractText != "" && parsed.AbstractURL != "" {
		fmt.Fprintf(&b, "%s: %s", parsed.Heading, parsed.AbstractText)
		sources = append(sources, models.Source{ID: parsed.AbstractURL})
	}
	for _, topic := range parsed.RelatedTopics {
		if len(sources) >= t.cfg.ResultCount || len(sources) >= maxResultCount {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(topic.Text)
		sources = append(sources, models.Source{ID: topic.FirstURL})
	}
	return b.String(), sources, nil
}

func (t *Tool) fromCache(query string) (string, []models.Source, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.cache[query]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", nil, false
	}
	return entry.content, entry.sources, true
}

func (t *Tool) store(query, content string, sources []models.Source) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for key, entry := range t.cache {
		if now.After(entry.expiresAt) {
			delete(t.cache, key)
		}
	}
	// Crude bound: drop an arbitrary entry rather than grow forever.
	for len(t.cache) >= maxCacheEntries {
		for key := range t.cache {
			delete(t.cache, key)
			break
		}
	}
	t.cache[query] = cacheEntry{content: content, sources: sources, expiresAt: now.Add(t.cfg.CacheTTL)}
}
