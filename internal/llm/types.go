// Package llm provides the tiered LLM gateway: provider abstraction,
// per-candidate circuit breaking, and a cost/depth-bounded fallback
// cascade.
package llm

import (
	"context"

	"github.com/nusantara-labs/oracle/pkg/models"
)

// Tier is a quality/cost class of model, each with its own chain.
type Tier string

const (
	TierFast       Tier = "fast"
	TierPowerful   Tier = "powerful"
	TierLastResort Tier = "last_resort"
)

// Candidate is one (provider, model) pair in a fallback chain.
type Candidate struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Tier     Tier   `yaml:"tier"`
}

// Target returns the breaker key for this candidate.
func (c Candidate) Target() string {
	return c.Provider + ":" + c.Model
}

// Message is one chat turn sent to a provider.
type Message struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// ChatRequest is a provider-agnostic completion request.
type ChatRequest struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// ChatResponse is a provider reply. On failure providers may return a
// non-nil response carrying partial token usage alongside the error,
// since some APIs bill for failed requests.
type ChatResponse struct {
	Text  string
	Raw   any
	Usage models.TokenUsage
}

// Provider is the black-box model callable the gateway drives.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Send performs one completion round trip.
	Send(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the stable lowercase provider identifier.
	Name() string
}

// Chat is a running conversation the gateway appends to. The system
// prompt is held separately from the turns, matching provider APIs.
type Chat struct {
	System   string
	Messages []Message
}

// NewChat constructs a chat session with the given system prompt.
func NewChat(system string) *Chat {
	return &Chat{System: system}
}

// AddUser appends a user turn.
func (c *Chat) AddUser(content string) {
	c.Messages = append(c.Messages, Message{Role: models.RoleUser, Content: content})
}

// AddAssistant appends an assistant turn.
func (c *Chat) AddAssistant(content string) {
	c.Messages = append(c.Messages, Message{Role: models.RoleAssistant, Content: content})
}

// CostTracker carries the per-query fallback budget. It is created per
// top-level query and threaded through that query's cascade only.
type CostTracker struct {
	AccumulatedCostUSD float64
	FallbackDepth      int
}

// ToolDescriptor advertises a tool to the model inside the system
// prompt. Descriptors with an empty name are malformed and dropped
// silently by SetTools.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      string
}

// Result is the gateway's answer for one SendMessage call.
type Result struct {
	Text      string
	ModelUsed string
	Raw       any
	Usage     models.TokenUsage
}
