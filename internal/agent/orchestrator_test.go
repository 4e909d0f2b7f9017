package agent

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/nusantara-labs/oracle/internal/routing"
	"github.com/nusantara-labs/oracle/pkg/models"
)

type memoryRecorder struct {
	mu    sync.Mutex
	tasks []string
}

func (m *memoryRecorder) CreateSaveTask(userID, query, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, userID+":"+query)
}

func (m *memoryRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

type staticContextProvider struct {
	ctx *models.UserContext
}

func (p *staticContextProvider) GetUserContext(_ context.Context, _ string) (*models.UserContext, error) {
	return p.ctx, nil
}

func newOrchestratorHarness(t *testing.T, provider *scriptedProvider, memory MemorySaver, tools ...*fakeTool) *Orchestrator {
	t.Helper()
	engine, gateway, registry := newEngineHarness(t, provider, tools...)
	router := routing.NewRouter(routing.Config{}, quietLogger())
	userCtx := &staticContextProvider{ctx: &models.UserContext{Facts: []string{"name: Jo"}}}
	return NewOrchestrator(router, engine, registry, gateway, memory, userCtx, OrchestratorConfig{}, nil, quietLogger())
}

func TestProcessQueryGreetingFastpath(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"should never be called"}}
	memory := &memoryRecorder{}
	o := newOrchestratorHarness(t, provider, memory)

	result, err := o.ProcessQuery(context.Background(), "Hello!", "user-1")
	if err != nil {
		t.Fatalf("ProcessQuery() error: %v", err)
	}
	if result.ModelUsed != "fastpath" {
		t.Fatalf("ModelUsed = %q, want fastpath", result.ModelUsed)
	}
	if provider.calls != 0 {
		t.Fatalf("greeting reached the model, calls = %d", provider.calls)
	}
	if result.Answer == "" {
		t.Fatalf("empty greeting reply")
	}
}

func TestProcessQueryRejectsEmptyQuery(t *testing.T) {
	o := newOrchestratorHarness(t, &scriptedProvider{replies: []string{"x"}}, nil)
	if _, err := o.ProcessQuery(context.Background(), "   ", "user-1"); err == nil {
		t.Fatalf("empty query accepted")
	}
}

func TestProcessQueryAnswersAndSchedulesSave(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		searchTurn,
		"Final Answer: Renewal costs about 5 million rupiah.",
	}}
	memory := &memoryRecorder{}
	o := newOrchestratorHarness(t, provider, memory, strongSearchTool())

	result, err := o.ProcessQuery(context.Background(), "What is the KITAS renewal cost?", "user-1")
	if err != nil {
		t.Fatalf("ProcessQuery() error: %v", err)
	}
	if strings.Contains(result.Answer, AbstentionMessage) {
		t.Fatalf("answer abstained unexpectedly: %q", result.Answer)
	}
	if len(result.Sources) == 0 {
		t.Fatalf("answer carries no sources")
	}
	if result.EvidenceScore < WarnThreshold {
		t.Fatalf("EvidenceScore = %v, want >= %v", result.EvidenceScore, WarnThreshold)
	}
	if result.RoutingStats.TotalRoutes != 1 {
		t.Fatalf("TotalRoutes = %d, want 1", result.RoutingStats.TotalRoutes)
	}
	if memory.count() != 1 {
		t.Fatalf("memory save tasks = %d, want 1", memory.count())
	}
}

func TestProcessQueryAbstainsWithoutGatheredContext(t *testing.T) {
	// Sources without any usable observation text must not survive the
	// final context check, even with a high evidence score.
	hollowTool := &fakeTool{
		name:    "search",
		trusted: true,
		result: &ToolResult{
			Content: "",
			Sources: []models.Source{
				{ID: "doc-1", Score: 0.9},
				{ID: "doc-2", Score: 0.9},
				{ID: "doc-3", Score: 0.9},
			},
		},
	}
	provider := &scriptedProvider{replies: []string{
		searchTurn,
		"Final Answer: An answer built from nothing.",
	}}
	memory := &memoryRecorder{}
	o := newOrchestratorHarness(t, provider, memory, hollowTool)

	result, err := o.ProcessQuery(context.Background(), "What is the KITAS renewal cost?", "user-1")
	if err != nil {
		t.Fatalf("ProcessQuery() error: %v", err)
	}
	if result.Answer != AbstentionMessage {
		t.Fatalf("Answer = %q, want the abstention", result.Answer)
	}
	if result.EvidenceScore != 0 || len(result.Sources) != 0 {
		t.Fatalf("abstained result still carries evidence: %+v", result)
	}
	if memory.count() != 0 {
		t.Fatalf("abstention scheduled a memory save")
	}
}

func TestProcessQueryStreamEmitsFullSequence(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		searchTurn,
		"Final Answer: Renewal costs about 5 million rupiah.",
	}}
	o := newOrchestratorHarness(t, provider, &memoryRecorder{}, strongSearchTool())

	var events []models.StreamEvent
	for ev := range o.ProcessQueryStream(context.Background(), "What is the KITAS renewal cost?", "user-1") {
		events = append(events, ev)
	}
	if len(events) == 0 {
		t.Fatalf("no events emitted")
	}

	last := events[len(events)-1]
	if last.Type != models.StreamDone || last.Result == nil {
		t.Fatalf("final event = %+v, want StreamDone with a result", last)
	}

	var sawToolCall, sawToolResult bool
	var tokens strings.Builder
	for _, ev := range events[:len(events)-1] {
		switch ev.Type {
		case models.StreamToolCall:
			sawToolCall = true
		case models.StreamToolResult:
			sawToolResult = true
		case models.StreamToken:
			tokens.WriteString(ev.Payload)
		case models.StreamDone:
			t.Fatalf("StreamDone emitted before the end")
		}
	}
	if !sawToolCall || !sawToolResult {
		t.Fatalf("tool events missing: call=%v result=%v", sawToolCall, sawToolResult)
	}

	// Token payloads reassemble the answer modulo whitespace.
	wantWords := strings.Fields(last.Result.Answer)
	gotWords := strings.Fields(tokens.String())
	if strings.Join(gotWords, " ") != strings.Join(wantWords, " ") {
		t.Fatalf("streamed tokens do not reassemble the answer:\n got %q\nwant %q", tokens.String(), last.Result.Answer)
	}
}

func TestProcessQueryStreamGreeting(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"unused"}}
	o := newOrchestratorHarness(t, provider, nil)

	var last models.StreamEvent
	for ev := range o.ProcessQueryStream(context.Background(), "selamat pagi", "user-1") {
		last = ev
	}
	if last.Type != models.StreamDone || last.Result == nil || last.Result.ModelUsed != "fastpath" {
		t.Fatalf("greeting stream final event = %+v", last)
	}
	if provider.calls != 0 {
		t.Fatalf("greeting stream reached the model")
	}
}
