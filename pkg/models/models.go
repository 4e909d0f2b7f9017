// Package models defines the shared value types exchanged between the
// reasoning core and its callers.
package models

import "time"

// Role indicates the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolCall is a parsed request from the model to execute a named tool.
// It is immutable once constructed.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Source identifies one retrieved passage that backs an answer.
type Source struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// TokenUsage reports the token consumption and billed cost of one
// provider call. Failed calls may still carry partial cost.
type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// RoutingDecision is the outcome of routing a query to a knowledge
// collection. Fallbacks always lists the primary collection first with
// duplicates removed.
type RoutingDecision struct {
	Collection string   `json:"collection"`
	Confidence float64  `json:"confidence"`
	Fallbacks  []string `json:"fallbacks"`
}

// RoutingStats is a snapshot of the router's aggregate counters.
type RoutingStats struct {
	TotalRoutes      int64 `json:"total_routes"`
	HighConfidence   int64 `json:"high_confidence"`
	MediumConfidence int64 `json:"medium_confidence"`
	LowConfidence    int64 `json:"low_confidence"`
	FallbacksUsed    int64 `json:"fallbacks_used"`
}

// CoreResult is the immutable value returned to callers of the core.
type CoreResult struct {
	Answer        string       `json:"answer"`
	Sources       []Source     `json:"sources,omitempty"`
	EvidenceScore float64      `json:"evidence_score"`
	ModelUsed     string       `json:"model_used"`
	RoutingStats  RoutingStats `json:"routing_stats"`
}

// FactReport summarizes one fact extraction and persistence pass.
type FactReport struct {
	FactsExtracted int           `json:"facts_extracted"`
	FactsSaved     int           `json:"facts_saved"`
	ProcessingTime time.Duration `json:"processing_time"`
	Success        bool          `json:"success"`
}

// HistoryTurn is one prior turn of a conversation.
type HistoryTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserContext holds what is known about a user before a query runs.
type UserContext struct {
	Profile string        `json:"profile,omitempty"`
	History []HistoryTurn `json:"history,omitempty"`
	Facts   []string      `json:"facts,omitempty"`
}

// StreamEventType discriminates events on the streaming result channel.
type StreamEventType string

const (
	StreamToken      StreamEventType = "token"
	StreamToolCall   StreamEventType = "tool_call"
	StreamToolResult StreamEventType = "tool_result"
	StreamDone       StreamEventType = "done"
)

// StreamEvent is one element of the lazy, finite, non-restartable event
// sequence produced by the streaming query variant. The Result field is
// populated only on the final StreamDone event.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Payload string          `json:"payload,omitempty"`
	Result  *CoreResult     `json:"result,omitempty"`
}
