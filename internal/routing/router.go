// Package routing maps natural-language queries to knowledge collections
// using priority overrides and keyword scoring.
package routing

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/nusantara-labs/oracle/pkg/models"
)

// Collection names recognized by the core. Deployments may extend the
// table through Config, but these are the defaults the keyword rules
// bind to.
const (
	CollectionVisa     = "visa_oracle"
	CollectionTax      = "tax_genius"
	CollectionLegal    = "legal_architect"
	CollectionProperty = "property_sage"
	CollectionKBLI     = "kbli_navigator"
	CollectionTeam     = "team_info"
)

// Override is a priority rule that short-circuits routing when any of
// its substrings appear in the query, regardless of keyword scores.
type Override struct {
	Name       string
	Substrings []string
	Collection string
}

// Config configures a Router.
type Config struct {
	// DefaultCollection receives all-zero-score queries.
	DefaultCollection string

	// MaxFallbacks truncates every fallback chain (primary included).
	MaxFallbacks int

	// Overrides are evaluated in order before any scoring.
	Overrides []Override

	// Keywords maps a collection to the lowercase keywords that vote
	// for it. Nil means the built-in domain table.
	Keywords map[string][]string

	// Neighbors maps a collection to its statically configured
	// fallback collections, tried after the primary.
	Neighbors map[string][]string
}

// DefaultConfig returns the built-in routing tables for the
// immigration / business / tax domains.
func DefaultConfig() Config {
	return Config{
		DefaultCollection: CollectionLegal,
		MaxFallbacks:      3,
		Overrides: []Override{
			{
				Name:       "identity",
				Substrings: []string{"who are you", "what are you", "your name"},
				Collection: CollectionTeam,
			},
			{
				Name:       "team",
				Substrings: []string{"team", "staff", "consultant", "agent in charge"},
				Collection: CollectionTeam,
			},
		},
		Keywords: map[string][]string{
			CollectionVisa: {
				"visa", "kitas", "kitap", "voa", "immigration", "imigrasi",
				"passport", "overstay", "sponsor", "stay permit", "renewal",
				"extension", "exit permit", "merp",
			},
			CollectionTax: {
				"tax", "pajak", "npwp", "pph", "ppn", "vat", "withholding",
				"spt", "coretax", "taxable", "income tax",
			},
			CollectionLegal: {
				"legal", "law", "contract", "agreement", "notary", "pt pma",
				"company", "incorporation", "license", "permit", "compliance",
				"deed", "shareholder",
			},
			CollectionProperty: {
				"property", "land", "villa", "lease", "leasehold", "freehold",
				"hak pakai", "hak milik", "real estate", "rent", "building permit",
			},
			CollectionKBLI: {
				"kbli", "business classification", "business code",
				"oss", "nib", "risk-based", "business field",
			},
			CollectionTeam: {
				"team", "staff", "who works",
			},
		},
		Neighbors: map[string][]string{
			CollectionVisa:     {CollectionLegal, CollectionTax},
			CollectionTax:      {CollectionLegal, CollectionKBLI},
			CollectionLegal:    {CollectionVisa, CollectionTax},
			CollectionProperty: {CollectionLegal, CollectionTax},
			CollectionKBLI:     {CollectionLegal, CollectionTax},
			CollectionTeam:     {},
		},
	}
}

// Router routes queries to collections. Routing itself is a pure
// function of the query and the static tables; the aggregate counters
// are the only mutable state and are updated atomically.
type Router struct {
	cfg    Config
	stats  *Stats
	logger *slog.Logger
}

// NewRouter creates a router from cfg, falling back to the built-in
// tables for any zero-value field.
func NewRouter(cfg Config, logger *slog.Logger) *Router {
	defaults := DefaultConfig()
	if cfg.DefaultCollection == "" {
		cfg.DefaultCollection = defaults.DefaultCollection
	}
	if cfg.MaxFallbacks <= 0 {
		cfg.MaxFallbacks = defaults.MaxFallbacks
	}
	if cfg.Overrides == nil {
		cfg.Overrides = defaults.Overrides
	}
	if cfg.Keywords == nil {
		cfg.Keywords = defaults.Keywords
	}
	if cfg.Neighbors == nil {
		cfg.Neighbors = defaults.Neighbors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{cfg: cfg, stats: &Stats{}, logger: logger}
}

// Route returns the collection for query.
func (r *Router) Route(query string) string {
	return r.RouteWithConfidence(query).Collection
}

// RouteWithConfidence returns the collection, a confidence in [0,1],
// and the fallback chain (primary first, deduplicated).
func (r *Router) RouteWithConfidence(query string) models.RoutingDecision {
	lowered := strings.ToLower(query)

	if collection, ok := r.matchOverride(lowered); ok {
		decision := models.RoutingDecision{
			Collection: collection,
			Confidence: 1.0,
			Fallbacks:  r.fallbacksFor(collection),
		}
		r.stats.record(decision.Confidence)
		return decision
	}

	collection, top, margin := r.scoreDomains(lowered)
	confidence := scoreConfidence(top, margin, len(strings.Fields(query)))

	decision := models.RoutingDecision{
		Collection: collection,
		Confidence: confidence,
		Fallbacks:  r.fallbacksFor(collection),
	}
	r.stats.record(confidence)

	r.logger.Debug("routed query",
		"collection", decision.Collection,
		"confidence", decision.Confidence,
		"top_score", top,
	)
	return decision
}

// RecordFallbackUse bumps the fallback-usage counter. Called by the
// orchestrator when a non-primary collection ends up serving a query.
func (r *Router) RecordFallbackUse() {
	r.stats.recordFallback()
}

// Stats returns a snapshot of the aggregate routing counters.
func (r *Router) Stats() models.RoutingStats {
	return r.stats.snapshot()
}

func (r *Router) matchOverride(lowered string) (string, bool) {
	for _, override := range r.cfg.Overrides {
		for _, substr := range override.Substrings {
			if containsTerm(lowered, substr) {
				return override.Collection, true
			}
		}
	}
	return "", false
}

// containsTerm reports whether term appears in lowered on word
// boundaries, so "team" does not fire inside "steam".
func containsTerm(lowered, term string) bool {
	for start := 0; ; {
		idx := strings.Index(lowered[start:], term)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(term)
		if (idx == 0 || !isWordByte(lowered[idx-1])) &&
			(end == len(lowered) || !isWordByte(lowered[end])) {
			return true
		}
		start = idx + 1
	}
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// scoreDomains counts keyword hits per collection and returns the best
// collection, its score, and the margin over the runner-up. An all-zero
// tie routes to the default collection.
func (r *Router) scoreDomains(lowered string) (collection string, top, margin int) {
	scores := make(map[string]int, len(r.cfg.Keywords))
	for coll, keywords := range r.cfg.Keywords {
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				scores[coll]++
			}
		}
	}

	names := make([]string, 0, len(scores))
	for coll := range scores {
		names = append(names, coll)
	}
	// Deterministic winner on equal scores.
	sort.Slice(names, func(i, j int) bool {
		if scores[names[i]] != scores[names[j]] {
			return scores[names[i]] > scores[names[j]]
		}
		return names[i] < names[j]
	})

	if len(names) == 0 || scores[names[0]] == 0 {
		return r.cfg.DefaultCollection, 0, 0
	}
	top = scores[names[0]]
	if len(names) > 1 {
		margin = top - scores[names[1]]
	} else {
		margin = top
	}
	return names[0], top, margin
}

// fallbacksFor returns the chain for collection: primary first, then
// its static neighbors, deduplicated and truncated to MaxFallbacks.
// Unknown collections yield an empty chain.
func (r *Router) fallbacksFor(collection string) []string {
	neighbors, ok := r.cfg.Neighbors[collection]
	if !ok {
		return []string{}
	}
	chain := make([]string, 0, len(neighbors)+1)
	seen := make(map[string]struct{}, len(neighbors)+1)
	for _, coll := range append([]string{collection}, neighbors...) {
		if _, dup := seen[coll]; dup {
			continue
		}
		seen[coll] = struct{}{}
		chain = append(chain, coll)
		if len(chain) >= r.cfg.MaxFallbacks {
			break
		}
	}
	return chain
}

// scoreConfidence maps (top score, margin, query length) to [0,1].
// It is monotonic in both the top score and the margin.
func scoreConfidence(top, margin, words int) float64 {
	if top == 0 {
		return 0.2
	}
	confidence := 0.4
	confidence += 0.15 * float64(min(top, 3))
	confidence += 0.1 * float64(min(margin, 2))
	if words < 3 {
		confidence -= 0.1
	}
	return clamp01(confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
