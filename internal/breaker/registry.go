package breaker

import (
	"log/slog"
	"sync"
)

// Registry holds one breaker per target, created lazily on first use.
// It is safe for concurrent use and is constructor-injected wherever
// breakers are needed; there is no package-level singleton.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	logger   *slog.Logger

	// OnTransition, if set before first use, is attached to every
	// breaker the registry creates.
	OnTransition func(target string, to State)
}

// NewRegistry creates an empty registry using cfg for every breaker.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      sanitizeConfig(cfg),
		logger:   logger,
	}
}

// Get returns the breaker for target, creating it on first use.
func (r *Registry) Get(target string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[target]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[target]; ok {
		return b
	}
	b = New(target, r.cfg, r.logger)
	b.onTransition = r.OnTransition
	r.breakers[target] = b
	return b
}

// States returns a snapshot of every known breaker's state.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	states := make(map[string]State, len(r.breakers))
	for target, b := range r.breakers {
		states[target] = b.State()
	}
	return states
}
