package agent

import (
	"fmt"
	"strings"

	"github.com/nusantara-labs/oracle/pkg/models"
)

// defaultPersona is the assistant identity used when a deployment does
// not override it.
const defaultPersona = "You are Oracle, an assistant for Indonesian immigration, business, and tax questions. " +
	"You answer only from retrieved evidence and you say so when the evidence is insufficient."

// forbiddenPhrases are stock fillers the model is told never to emit.
var forbiddenPhrases = []string{
	"As an AI language model",
	"I cannot provide legal advice, but",
	"It depends",
	"Feel free to ask",
}

// reactProtocol explains the loop format to the model. The parser in
// parse.go accepts exactly these shapes.
const reactProtocol = `Work step by step. On each turn reply with either:

Thought: <your reasoning>
Action: <tool name>
Action Input: <JSON object of arguments>

or, when you can answer from the observations you gathered:

Thought: <your reasoning>
Final Answer: <the answer>

Never invent facts that are not in an observation.`

// BuildSystemPrompt assembles the persona, safety rules, the ReAct
// protocol, and everything known about the user.
func BuildSystemPrompt(persona string, userCtx *models.UserContext) string {
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(reactProtocol)

	b.WriteString("\n\nNever use these phrases: ")
	b.WriteString(strings.Join(forbiddenPhrases, "; "))
	b.WriteString(".")

	if userCtx != nil {
		if len(userCtx.Facts) > 0 {
			b.WriteString("\n\nKnown facts about this user:")
			for _, fact := range userCtx.Facts {
				fmt.Fprintf(&b, "\n- %s", fact)
			}
		}
		if userCtx.Profile != "" {
			b.WriteString("\n\nUser profile: ")
			b.WriteString(userCtx.Profile)
		}
		if len(userCtx.History) > 0 {
			b.WriteString("\n\nRecent conversation:")
			for _, turn := range userCtx.History {
				fmt.Fprintf(&b, "\n%s: %s", turn.Role, turn.Content)
			}
		}
	}
	return b.String()
}
