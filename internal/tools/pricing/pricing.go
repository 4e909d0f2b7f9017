// Package pricing serves the curated service price book. Prices are
// operator-maintained data, so results count as trusted evidence.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nusantara-labs/oracle/internal/agent"
	"github.com/nusantara-labs/oracle/pkg/models"
)

// Entry is one priced service.
type Entry struct {
	Service     string `yaml:"service" json:"service"`
	Description string `yaml:"description" json:"description"`
	PriceIDR    int64  `yaml:"price_idr" json:"price_idr"`
	Notes       string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// defaultBook is the built-in price book used when a deployment does
// not load its own.
var defaultBook = []Entry{
	{Service: "kitas_investor", Description: "Investor KITAS, 2 years", PriceIDR: 17_000_000},
	{Service: "kitas_work", Description: "Work KITAS, 1 year", PriceIDR: 15_500_000, Notes: "Requires employer sponsor"},
	{Service: "kitas_renewal", Description: "KITAS renewal", PriceIDR: 5_000_000},
	{Service: "kitap", Description: "Permanent stay permit (KITAP)", PriceIDR: 28_000_000},
	{Service: "voa_extension", Description: "Visa on arrival extension", PriceIDR: 900_000},
	{Service: "pt_pma_setup", Description: "PT PMA company incorporation", PriceIDR: 35_000_000},
	{Service: "npwp_registration", Description: "Personal tax number (NPWP) registration", PriceIDR: 1_500_000},
	{Service: "annual_tax_report", Description: "Annual personal tax report (SPT)", PriceIDR: 3_500_000},
}

// Tool looks up services in the price book.
type Tool struct {
	book map[string]Entry
}

// New creates the tool over entries, falling back to the built-in book
// when entries is empty.
func New(entries []Entry) *Tool {
	if len(entries) == 0 {
		entries = defaultBook
	}
	book := make(map[string]Entry, len(entries))
	for _, e := range entries {
		book[strings.ToLower(e.Service)] = e
	}
	return &Tool{book: book}
}

func (t *Tool) Name() string { return "pricing" }

func (t *Tool) Description() string {
	return "Look up the current price of an agency service, or list all priced services. Prices are in Indonesian rupiah."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"service": {"type": "string", "description": "Service key, e.g. kitas_renewal; omit to list everything"}
		}
	}`)
}

// Trusted marks price book rows as verifiable evidence.
func (t *Tool) Trusted() bool { return true }

func (t *Tool) Execute(_ context.Context, args map[string]any) (*agent.ToolResult, error) {
	service, _ := args["service"].(string)
	service = strings.ToLower(strings.TrimSpace(service))

	if service == "" {
		return t.listAll(), nil
	}

	entry, ok := t.book[service]
	if !ok {
		return &agent.ToolResult{
			Content: fmt.Sprintf("no price entry for %q; known services: %s", service, strings.Join(t.services(), ", ")),
			IsError: true,
		}, nil
	}
	return &agent.ToolResult{
		Content: formatEntry(entry),
		Sources: []models.Source{{ID: "pricebook/" + entry.Service, Score: 1.0}},
	}, nil
}

func (t *Tool) listAll() *agent.ToolResult {
	var b strings.Builder
	sources := make([]models.Source, 0, len(t.book))
	for _, key := range t.services() {
		entry := t.book[key]
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatEntry(entry))
		sources = append(sources, models.Source{ID: "pricebook/" + entry.Service, Score: 1.0})
	}
	return &agent.ToolResult{Content: b.String(), Sources: sources}
}

func (t *Tool) services() []string {
	keys := make([]string, 0, len(t.book))
	for key := range t.book {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func formatEntry(e Entry) string {
	line := fmt.Sprintf("%s: %s, IDR %s", e.Service, e.Description, groupDigits(e.PriceIDR))
	if e.Notes != "" {
		line += " (" + e.Notes + ")"
	}
	return line
}

// groupDigits renders 5000000 as 5.000.000, the Indonesian convention.
func groupDigits(v int64) string {
	digits := fmt.Sprintf("%d", v)
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(".")
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
