package routing

import (
	"sync"
	"testing"
)

func TestRouteKitasQuery(t *testing.T) {
	r := NewRouter(Config{}, nil)

	decision := r.RouteWithConfidence("What is KITAS renewal cost")
	if decision.Collection != CollectionVisa {
		t.Fatalf("collection = %q, want %q", decision.Collection, CollectionVisa)
	}
	if decision.Confidence <= 0.5 {
		t.Fatalf("confidence = %v, want > 0.5", decision.Confidence)
	}
	if len(decision.Fallbacks) == 0 || decision.Fallbacks[0] != CollectionVisa {
		t.Fatalf("fallbacks = %v, want primary first", decision.Fallbacks)
	}
}

func TestRouteIsDeterministic(t *testing.T) {
	r := NewRouter(Config{}, nil)

	queries := []string{
		"How do I register NPWP for income tax",
		"leasehold villa contract in Canggu",
		"what KBLI code covers a coffee shop",
		"random question about the weather",
	}
	for _, q := range queries {
		first := r.Route(q)
		for i := 0; i < 5; i++ {
			if got := r.Route(q); got != first {
				t.Fatalf("Route(%q) not deterministic: %q then %q", q, first, got)
			}
		}
	}
}

func TestPriorityOverrideBeatsScoring(t *testing.T) {
	r := NewRouter(Config{}, nil)

	// Mentions visa keywords but the identity override must win.
	decision := r.RouteWithConfidence("who are you, a visa and tax agent?")
	if decision.Collection != CollectionTeam {
		t.Fatalf("collection = %q, want %q", decision.Collection, CollectionTeam)
	}
	if decision.Confidence != 1.0 {
		t.Fatalf("override confidence = %v, want 1.0", decision.Confidence)
	}
}

func TestOverrideRequiresWordBoundary(t *testing.T) {
	r := NewRouter(Config{}, nil)

	// "team" inside "steam" must not trigger the team override.
	decision := r.RouteWithConfidence("steam cleaning business permit")
	if decision.Collection == CollectionTeam {
		t.Fatalf("embedded substring triggered the team override")
	}
	if decision.Confidence == 1.0 {
		t.Fatalf("confidence = 1.0, want scored routing")
	}

	if got := r.Route("can your team help with this?"); got != CollectionTeam {
		t.Fatalf("whole-word team query routed to %q", got)
	}
}

func TestZeroScoreRoutesToDefault(t *testing.T) {
	r := NewRouter(Config{}, nil)

	decision := r.RouteWithConfidence("tell me a story about dragons")
	if decision.Collection != CollectionLegal {
		t.Fatalf("collection = %q, want default %q", decision.Collection, CollectionLegal)
	}
	if decision.Confidence >= 0.4 {
		t.Fatalf("confidence = %v, want low for zero-score query", decision.Confidence)
	}
}

func TestUnknownCollectionHasEmptyFallbacks(t *testing.T) {
	r := NewRouter(Config{
		Overrides: []Override{{
			Name:       "custom",
			Substrings: []string{"special"},
			Collection: "unlisted_collection",
		}},
	}, nil)

	decision := r.RouteWithConfidence("a special query")
	if decision.Collection != "unlisted_collection" {
		t.Fatalf("collection = %q", decision.Collection)
	}
	if len(decision.Fallbacks) != 0 {
		t.Fatalf("fallbacks = %v, want empty for unknown collection", decision.Fallbacks)
	}
}

func TestFallbackChainDeduplicatedAndBounded(t *testing.T) {
	r := NewRouter(Config{
		MaxFallbacks: 2,
		Neighbors: map[string][]string{
			CollectionVisa: {CollectionVisa, CollectionLegal, CollectionTax},
		},
	}, nil)

	decision := r.RouteWithConfidence("kitas extension")
	if len(decision.Fallbacks) != 2 {
		t.Fatalf("fallbacks = %v, want length 2", decision.Fallbacks)
	}
	if decision.Fallbacks[0] != CollectionVisa || decision.Fallbacks[1] != CollectionLegal {
		t.Fatalf("fallbacks = %v", decision.Fallbacks)
	}
}

func TestStatsCountersUnderConcurrency(t *testing.T) {
	r := NewRouter(Config{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Route("kitas renewal")
			}
		}()
	}
	wg.Wait()

	stats := r.Stats()
	if stats.TotalRoutes != 1000 {
		t.Fatalf("TotalRoutes = %d, want 1000", stats.TotalRoutes)
	}
	sum := stats.HighConfidence + stats.MediumConfidence + stats.LowConfidence
	if sum != stats.TotalRoutes {
		t.Fatalf("bucket sum %d != total %d", sum, stats.TotalRoutes)
	}
}
