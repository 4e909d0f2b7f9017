package breaker

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New("test", cfg, nil)
	now := time.Now()
	b.now = func() time.Time { return now }
	b.lastChange = now
	return b, &now
}

func TestOpensAtFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2, SuccessThreshold: 2, Timeout: time.Minute})

	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("state after one failure = %v, want closed", b.State())
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state after two failures = %v, want open", b.State())
	}
	if failures, successes := b.Counts(); failures != 0 || successes != 0 {
		t.Fatalf("counters not reset on transition: failures=%d successes=%d", failures, successes)
	}
}

func TestSuccessResetsFailuresWhileClosed(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, SuccessThreshold: 2, Timeout: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	if failures, _ := b.Counts(); failures != 0 {
		t.Fatalf("failures = %d after success, want 0", failures)
	}
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("breaker opened before threshold after reset")
	}
}

func TestRecordSuccessIdempotentWhileClosed(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	b.RecordSuccess()
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
	if failures, successes := b.Counts(); failures != 0 || successes != 0 {
		t.Fatalf("counters changed: failures=%d successes=%d", failures, successes)
	}
}

func TestTimeoutTransitionsToHalfOpen(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 30 * time.Second})

	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatalf("breaker not open after threshold failures")
	}

	*now = now.Add(10 * time.Second)
	if !b.IsOpen() {
		t.Fatalf("breaker half-opened before timeout elapsed")
	}

	*now = now.Add(25 * time.Second)
	if b.IsOpen() {
		t.Fatalf("breaker still open after timeout elapsed")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second})

	b.RecordFailure()
	*now = now.Add(2 * time.Second)

	b.RecordSuccess()
	if b.State() != StateHalfOpen {
		t.Fatalf("state after one probe success = %v, want half_open", b.State())
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("state after threshold probe successes = %v, want closed", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second})

	b.RecordFailure()
	*now = now.Add(2 * time.Second)

	b.RecordSuccess()
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state after half-open failure = %v, want open", b.State())
	}
}

func TestCallRecordsOutcome(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})

	wantErr := errors.New("provider down")
	if err := b.Call(func() error { return wantErr }, nil); !errors.Is(err, wantErr) {
		t.Fatalf("Call() error = %v, want %v", err, wantErr)
	}
	if err := b.Call(func() error { return wantErr }, nil); !errors.Is(err, wantErr) {
		t.Fatalf("Call() error = %v, want %v", err, wantErr)
	}
	if !b.IsOpen() {
		t.Fatalf("breaker not open after threshold failures via Call")
	}

	if err := b.Call(func() error { return nil }, nil); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Call() on open breaker = %v, want ErrCircuitOpen", err)
	}

	ran := false
	if err := b.Call(func() error { return nil }, func() error { ran = true; return nil }); err != nil {
		t.Fatalf("Call() with fallback error = %v", err)
	}
	if !ran {
		t.Fatalf("fallback did not run on open breaker")
	}

	fbErr := errors.New("fallback failed")
	if err := b.Call(func() error { return nil }, func() error { return fbErr }); !errors.Is(err, fbErr) {
		t.Fatalf("fallback error did not propagate, got %v", err)
	}
}

func TestRegistryLazyCreation(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)

	a := r.Get("anthropic:claude-sonnet")
	b := r.Get("anthropic:claude-sonnet")
	if a != b {
		t.Fatalf("registry returned distinct breakers for the same target")
	}

	r.Get("openai:gpt-4o").RecordFailure()
	states := r.States()
	if len(states) != 2 {
		t.Fatalf("len(States()) = %d, want 2", len(states))
	}
	if states["anthropic:claude-sonnet"] != StateClosed {
		t.Fatalf("unexpected state for untouched breaker: %v", states["anthropic:claude-sonnet"])
	}
}
