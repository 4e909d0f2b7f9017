package agent

import "github.com/nusantara-labs/oracle/pkg/models"

// Step is one completed Thought -> Action -> Observation cycle.
type Step struct {
	Thought     string
	Action      string
	Observation string
}

// State is the working memory of one reasoning invocation. It is owned
// exclusively by the engine call that created it and discarded when
// the call returns; nothing is shared across requests.
type State struct {
	Query    string
	MaxSteps int

	Steps           []Step
	ContextGathered []string
	Sources         []models.Source
	EvidenceScore   float64
	FinalAnswer     string
	ToolExecutions  int

	// TrustedEvidence is set once any trusted tool contributed a
	// successful observation.
	TrustedEvidence bool
}

// NewState creates the state for one reasoning run.
func NewState(query string, maxSteps int) *State {
	if maxSteps <= 0 {
		maxSteps = 6
	}
	return &State{
		Query:    query,
		MaxSteps: maxSteps,
	}
}

// AddObservation folds a tool result into the state. Sources count as
// evidence only when the tool that produced them is trusted; untrusted
// observations still reach the model through ContextGathered.
func (s *State) AddObservation(thought, action string, result *ToolResult, trusted bool) {
	s.Steps = append(s.Steps, Step{
		Thought:     thought,
		Action:      action,
		Observation: result.Content,
	})
	if !result.IsError && result.Content != "" {
		s.ContextGathered = append(s.ContextGathered, result.Content)
	}
	if trusted {
		s.Sources = append(s.Sources, result.Sources...)
	}
}
