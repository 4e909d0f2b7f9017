// Package memory persists extracted conversation facts asynchronously,
// serialized per user behind a bounded-wait lock.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nusantara-labs/oracle/internal/observability"
	"github.com/nusantara-labs/oracle/pkg/models"
)

// FactStore is the injected persistence collaborator.
type FactStore interface {
	ExtractAndPersist(ctx context.Context, userID, query, answer string) (*models.FactReport, error)
}

// Config tunes the handler.
type Config struct {
	// LockTimeout bounds the wait for a user's lock. A save that
	// cannot acquire the lock in time is skipped and logged, never
	// blocking the caller.
	LockTimeout time.Duration

	// LockWaitWarn is the contention threshold above which lock wait
	// time is reported to metrics.
	LockWaitWarn time.Duration

	// QueueSize bounds the background save queue.
	QueueSize int

	// Workers is the number of background save workers.
	Workers int
}

// DefaultConfig returns the default handler tuning.
func DefaultConfig() Config {
	return Config{
		LockTimeout:  5 * time.Second,
		LockWaitWarn: 100 * time.Millisecond,
		QueueSize:    256,
		Workers:      2,
	}
}

type saveTask struct {
	userID string
	query  string
	answer string
}

// Handler owns one lazily-created lock per user and a bounded worker
// pool draining save tasks. Saves are fire-and-forget: a failure or a
// lock timeout never reaches the request that produced the task.
type Handler struct {
	store   FactStore
	cfg     Config
	metrics *observability.Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]chan struct{}

	queue  chan saveTask
	wg     sync.WaitGroup
	closed chan struct{}
}

// NewHandler creates a handler and starts its workers.
func NewHandler(store FactStore, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	defaults := DefaultConfig()
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaults.LockTimeout
	}
	if cfg.LockWaitWarn <= 0 {
		cfg.LockWaitWarn = defaults.LockWaitWarn
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		locks:   make(map[string]chan struct{}),
		queue:   make(chan saveTask, cfg.QueueSize),
		closed:  make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		h.wg.Add(1)
		go h.worker()
	}
	return h
}

// CreateSaveTask enqueues a background save. It never blocks: when the
// queue is full the save is dropped with a log line.
func (h *Handler) CreateSaveTask(userID, query, answer string) {
	if isAnonymous(userID) {
		return
	}
	select {
	case h.queue <- saveTask{userID: userID, query: query, answer: answer}:
	default:
		h.logger.Warn("memory save queue full, dropping save", "user_id", userID)
	}
}

// Close drains pending saves and stops the workers.
func (h *Handler) Close() {
	close(h.closed)
	close(h.queue)
	h.wg.Wait()
}

func (h *Handler) worker() {
	defer h.wg.Done()
	for task := range h.queue {
		h.SaveConversationMemory(context.Background(), task.userID, task.query, task.answer)
	}
}

// SaveConversationMemory extracts and persists facts for one exchange,
// holding the user's lock for the duration. Every failure mode is
// handled here: a lock timeout or store error is logged and swallowed.
func (h *Handler) SaveConversationMemory(ctx context.Context, userID, query, answer string) {
	if isAnonymous(userID) {
		return
	}

	lock := h.userLock(userID)
	waitStart := time.Now()
	select {
	case lock <- struct{}{}:
	case <-time.After(h.cfg.LockTimeout):
		h.logger.Warn("memory lock timeout, skipping save",
			"user_id", userID,
			"waited", time.Since(waitStart),
		)
		if h.metrics != nil {
			h.metrics.RecordMemoryLockTimeout()
		}
		return
	case <-ctx.Done():
		return
	}
	// Guaranteed release no matter how the store behaves.
	defer func() { <-lock }()

	waited := time.Since(waitStart)
	if h.metrics != nil && waited >= h.cfg.LockWaitWarn {
		h.metrics.RecordMemoryLockWait(waited)
	}

	report, err := h.store.ExtractAndPersist(ctx, userID, query, answer)
	if err != nil {
		h.logger.Warn("fact persistence failed", "user_id", userID, "error", err)
		return
	}
	h.logger.Debug("conversation memory saved",
		"user_id", userID,
		"facts_extracted", report.FactsExtracted,
		"facts_saved", report.FactsSaved,
		"took", report.ProcessingTime,
	)
}

// userLock returns the buffered-channel lock for userID, creating it
// race-free on first use.
func (h *Handler) userLock(userID string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.locks[userID]
	if !ok {
		lock = make(chan struct{}, 1)
		h.locks[userID] = lock
	}
	return lock
}

func isAnonymous(userID string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(userID))
	return trimmed == "" || trimmed == "anonymous"
}
