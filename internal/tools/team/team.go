// Package team answers who-is-who questions from the operator's staff
// directory.
package team

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nusantara-labs/oracle/internal/agent"
	"github.com/nusantara-labs/oracle/pkg/models"
)

// Member is one directory entry.
type Member struct {
	Name      string   `yaml:"name" json:"name"`
	Role      string   `yaml:"role" json:"role"`
	Specialty string   `yaml:"specialty" json:"specialty"`
	Languages []string `yaml:"languages,omitempty" json:"languages,omitempty"`
}

var defaultDirectory = []Member{
	{Name: "Dewi Lestari", Role: "Head of Immigration", Specialty: "KITAS, KITAP, work permits", Languages: []string{"id", "en"}},
	{Name: "Made Wirawan", Role: "Tax Consultant", Specialty: "NPWP, PPh, annual reporting", Languages: []string{"id", "en"}},
	{Name: "Sari Kusuma", Role: "Legal Counsel", Specialty: "PT PMA incorporation, contracts", Languages: []string{"id", "en", "nl"}},
	{Name: "Agus Pratama", Role: "Property Advisor", Specialty: "Leasehold, hak pakai, due diligence", Languages: []string{"id", "en"}},
}

// Tool searches the directory by name, role, or specialty.
type Tool struct {
	directory []Member
}

// New creates the tool over members, falling back to the built-in
// directory when members is empty.
func New(members []Member) *Tool {
	if len(members) == 0 {
		members = defaultDirectory
	}
	return &Tool{directory: members}
}

func (t *Tool) Name() string { return "team_lookup" }

func (t *Tool) Description() string {
	return "Look up team members by name, role, or specialty, or list the whole team."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Name, role, or specialty to match; omit to list everyone"}
		}
	}`)
}

// Trusted marks directory rows as verifiable evidence.
func (t *Tool) Trusted() bool { return true }

func (t *Tool) Execute(_ context.Context, args map[string]any) (*agent.ToolResult, error) {
	query, _ := args["query"].(string)
	query = strings.ToLower(strings.TrimSpace(query))

	var matched []Member
	for _, m := range t.directory {
		if query == "" || matches(m, query) {
			matched = append(matched, m)
		}
	}
	if len(matched) == 0 {
		return &agent.ToolResult{
			Content: fmt.Sprintf("nobody on the team matches %q", query),
			IsError: true,
		}, nil
	}

	var b strings.Builder
	sources := make([]models.Source, 0, len(matched))
	for i, m := range matched {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s, %s. Specialty: %s.", m.Name, m.Role, m.Specialty)
		if len(m.Languages) > 0 {
			fmt.Fprintf(&b, " Languages: %s.", strings.Join(m.Languages, ", "))
		}
		sources = append(sources, models.Source{ID: "team/" + slug(m.Name), Score: 1.0})
	}
	return &agent.ToolResult{Content: b.String(), Sources: sources}, nil
}

func matches(m Member, query string) bool {
	haystack := strings.ToLower(m.Name + " " + m.Role + " " + m.Specialty)
	return strings.Contains(haystack, query)
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}
