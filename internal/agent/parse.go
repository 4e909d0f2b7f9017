package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nusantara-labs/oracle/pkg/models"
)

// parsed is the interpretation of one model turn: exactly one of
// FinalAnswer or ToolCall is meaningful when the corresponding flag
// is set.
type parsed struct {
	Thought     string
	FinalAnswer string
	IsFinal     bool
	ToolCall    *models.ToolCall
}

const finalAnswerMarker = "Final Answer:"

var (
	thoughtRe     = regexp.MustCompile(`(?m)^Thought:\s*(.+)$`)
	actionRe      = regexp.MustCompile(`(?m)^Action:\s*([A-Za-z0-9_\-]+)\s*$`)
	actionInputRe = regexp.MustCompile(`(?ms)^Action Input:\s*(\{.*?\})\s*$`)
	jsonToolRe    = regexp.MustCompile(`(?s)\{\s*"tool"\s*:.*?\}`)
)

// parseTurn interprets one model turn. The model may answer with the
// regex action syntax (Action / Action Input lines), a bare JSON tool
// directive, or a Final Answer marker. Unparseable turns are treated
// as a final answer so the loop always terminates.
func parseTurn(text string) parsed {
	out := parsed{}
	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		out.Thought = strings.TrimSpace(m[1])
	}

	if idx := strings.Index(text, finalAnswerMarker); idx >= 0 {
		out.IsFinal = true
		out.FinalAnswer = strings.TrimSpace(text[idx+len(finalAnswerMarker):])
		return out
	}

	if call := parseActionSyntax(text); call != nil {
		out.ToolCall = call
		return out
	}
	if call := parseJSONDirective(text); call != nil {
		out.ToolCall = call
		return out
	}

	// No directive and no marker: take the whole turn as the answer.
	out.IsFinal = true
	out.FinalAnswer = strings.TrimSpace(text)
	return out
}

// parseActionSyntax matches the two-line ReAct form:
//
//	Action: search_knowledge
//	Action Input: {"query": "..."}
func parseActionSyntax(text string) *models.ToolCall {
	action := actionRe.FindStringSubmatch(text)
	if action == nil {
		return nil
	}
	call := &models.ToolCall{Name: action[1], Arguments: map[string]any{}}

	if input := actionInputRe.FindStringSubmatch(text); input != nil {
		var args map[string]any
		if err := json.Unmarshal([]byte(input[1]), &args); err == nil {
			call.Arguments = args
		}
	}
	return call
}

// parseJSONDirective matches an inline {"tool": ..., "arguments": ...}
// object, tolerating surrounding prose.
func parseJSONDirective(text string) *models.ToolCall {
	candidate := jsonToolRe.FindString(text)
	if candidate == "" {
		return nil
	}
	var directive struct {
		Tool      string         `json:"tool"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(candidate), &directive); err != nil {
		return nil
	}
	if strings.TrimSpace(directive.Tool) == "" {
		return nil
	}
	if directive.Arguments == nil {
		directive.Arguments = map[string]any{}
	}
	return &models.ToolCall{Name: directive.Tool, Arguments: directive.Arguments}
}
