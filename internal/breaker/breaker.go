// Package breaker implements a per-target circuit breaker state machine
// used to stop calling failing LLM providers for a cooldown period.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call when the breaker is open and no
// fallback was supplied.
var ErrCircuitOpen = errors.New("circuit open")

// State represents the breaker position.
type State int

const (
	// StateClosed allows all calls through.
	StateClosed State = iota

	// StateOpen rejects calls until the timeout elapses.
	StateOpen

	// StateHalfOpen allows probe calls after the timeout.
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures in the
	// closed state that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in the
	// half-open state that closes the circuit.
	SuccessThreshold int

	// Timeout is how long an open circuit waits before allowing a
	// half-open probe.
	Timeout time.Duration
}

// DefaultConfig returns the default breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = defaults.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return cfg
}

// Breaker is a three-state circuit breaker for a single target.
// The open -> half-open transition is evaluated lazily on IsOpen/Call,
// never by a background timer.
type Breaker struct {
	mu sync.Mutex

	target    string
	cfg       Config
	state     State
	failures  int
	successes int

	lastFailure time.Time
	lastChange  time.Time

	logger       *slog.Logger
	onTransition func(target string, to State)

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a breaker for the named target in the closed state.
func New(target string, cfg Config, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	return &Breaker{
		target:     target,
		cfg:        sanitizeConfig(cfg),
		state:      StateClosed,
		lastChange: now(),
		logger:     logger,
		now:        now,
	}
}

// Target returns the identifier this breaker guards.
func (b *Breaker) Target() string {
	return b.target
}

// State returns the current state, applying the lazy open -> half-open
// timeout check first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// IsOpen reports whether calls should be skipped. An open circuit whose
// timeout has elapsed transitions to half-open and reports false.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// RecordSuccess registers a successful call. In the closed state it
// resets the failure count; in the half-open state it counts toward the
// success threshold and closes the circuit once reached.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	case StateOpen:
		// A success while open can only come from a fallback path;
		// it does not affect the timer.
	}
}

// RecordFailure registers a failed call. Enough consecutive failures in
// the closed state open the circuit; any failure in the half-open state
// reopens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()

	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	case StateOpen:
	}
}

// Call runs fn through the breaker. If the circuit is open and a
// fallback is supplied, the fallback runs instead and its error (if any)
// propagates; with no fallback, ErrCircuitOpen is returned. Otherwise fn
// runs, its outcome is recorded, and its error propagates unchanged.
func (b *Breaker) Call(fn func() error, fallback func() error) error {
	if b.IsOpen() {
		if fallback != nil {
			return fallback()
		}
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Counts returns the current failure and success counters.
func (b *Breaker) Counts() (failures, successes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures, b.successes
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == StateOpen && b.now().Sub(b.lastChange) >= b.cfg.Timeout {
		b.transitionLocked(StateHalfOpen)
	}
}

// transitionLocked moves to the new state, resetting both counters.
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	b.lastChange = b.now()

	b.logger.Info("circuit breaker state change",
		"target", b.target,
		"from", from.String(),
		"to", to.String(),
	)
	if b.onTransition != nil {
		b.onTransition(b.target, to)
	}
}
