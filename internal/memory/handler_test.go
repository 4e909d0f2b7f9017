package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nusantara-labs/oracle/pkg/models"
)

type recordingStore struct {
	mu       sync.Mutex
	calls    []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (s *recordingStore) ExtractAndPersist(_ context.Context, userID, query, _ string) (*models.FactReport, error) {
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		max := s.maxSeen.Load()
		if current <= max || s.maxSeen.CompareAndSwap(max, current) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.calls = append(s.calls, userID+":"+query)
	s.mu.Unlock()
	return &models.FactReport{FactsExtracted: 1, FactsSaved: 1, Success: true}, nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestAnonymousUsersAreNoOp(t *testing.T) {
	store := &recordingStore{}
	h := NewHandler(store, Config{}, nil, nil)
	defer h.Close()

	h.SaveConversationMemory(context.Background(), "", "q", "a")
	h.SaveConversationMemory(context.Background(), "anonymous", "q", "a")
	h.SaveConversationMemory(context.Background(), "  Anonymous ", "q", "a")

	if store.count() != 0 {
		t.Fatalf("store called %d times for anonymous users", store.count())
	}
}

func TestSameUserSavesSerialized(t *testing.T) {
	store := &recordingStore{delay: 20 * time.Millisecond}
	h := NewHandler(store, Config{Workers: 4}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.SaveConversationMemory(context.Background(), "user-1", "q", "a")
		}()
	}
	wg.Wait()
	h.Close()

	if got := store.maxSeen.Load(); got != 1 {
		t.Fatalf("max concurrent saves for one user = %d, want 1", got)
	}
	if store.count() != 8 {
		t.Fatalf("saves completed = %d, want 8", store.count())
	}
}

func TestLockTimeoutSkipsSaveWithoutBlocking(t *testing.T) {
	store := &recordingStore{}
	h := NewHandler(store, Config{LockTimeout: 30 * time.Millisecond}, nil, nil)
	defer h.Close()

	// Hold the user's lock so the save cannot acquire it.
	lock := h.userLock("user-1")
	lock <- struct{}{}
	defer func() { <-lock }()

	done := make(chan struct{})
	go func() {
		h.SaveConversationMemory(context.Background(), "user-1", "q", "a")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("save blocked past the lock timeout")
	}
	if store.count() != 0 {
		t.Fatalf("save ran despite held lock")
	}
}

func TestCreateSaveTaskIsFireAndForget(t *testing.T) {
	store := &recordingStore{}
	h := NewHandler(store, Config{}, nil, nil)

	h.CreateSaveTask("user-2", "what is a KITAS", "a stay permit")
	h.Close() // drains the queue

	if store.count() != 1 {
		t.Fatalf("background save did not run, count = %d", store.count())
	}
}
