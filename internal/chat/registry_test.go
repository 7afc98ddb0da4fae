package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memHandleStore is an in-memory HandleStore for tests.
type memHandleStore struct {
	mu      sync.Mutex
	handles map[string]ConversationHandle
	loadErr error
}

func newMemHandleStore() *memHandleStore {
	return &memHandleStore{handles: make(map[string]ConversationHandle)}
}

func (s *memHandleStore) LoadHandle(fingerprint, userID string) (ConversationHandle, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return ConversationHandle{}, false, s.loadErr
	}
	handle, ok := s.handles[fingerprint+"/"+userID]
	return handle, ok, nil
}

func (s *memHandleStore) SaveHandle(fingerprint string, handle ConversationHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[fingerprint+"/"+handle.UserID] = handle
	return nil
}

func TestRegistry_ReusesHandle(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	registry := NewConversationRegistry(backend, "fp", nil, nil)
	ctx := context.Background()

	first, err := registry.GetOrCreate(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := registry.GetOrCreate(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first != second {
		t.Fatalf("handles differ: %+v vs %+v", first, second)
	}
	if create, _, _, _ := backend.counts(); create != 1 {
		t.Fatalf("CreateConversation called %d times, want 1", create)
	}
}

func TestRegistry_DistinctUsers(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	registry := NewConversationRegistry(backend, "fp", nil, nil)
	ctx := context.Background()

	a, err := registry.GetOrCreate(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, err := registry.GetOrCreate(ctx, "user_2")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a.ConversationID == b.ConversationID {
		t.Fatalf("users share conversation %q", a.ConversationID)
	}
}

func TestRegistry_InvalidateAll(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	registry := NewConversationRegistry(backend, "fp", nil, nil)
	ctx := context.Background()

	first, _ := registry.GetOrCreate(ctx, "user_1")
	registry.InvalidateAll()
	second, err := registry.GetOrCreate(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first.ConversationID == second.ConversationID {
		t.Fatalf("expected a fresh conversation after invalidation")
	}
	if create, _, _, _ := backend.counts(); create != 2 {
		t.Fatalf("CreateConversation called %d times, want 2", create)
	}
}

func TestRegistry_SingleFlight(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{createDelay: 10 * time.Millisecond}
	registry := NewConversationRegistry(backend, "fp", nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	handles := make([]ConversationHandle, 10)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle, err := registry.GetOrCreate(ctx, "user_1")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			handles[i] = handle
		}(i)
	}
	wg.Wait()

	if create, _, _, _ := backend.counts(); create != 1 {
		t.Fatalf("CreateConversation called %d times, want 1", create)
	}
	for i := 1; i < len(handles); i++ {
		if handles[i] != handles[0] {
			t.Fatalf("handle %d differs: %+v vs %+v", i, handles[i], handles[0])
		}
	}
}

func TestRegistry_PersistsAndReloadsHandles(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	store := newMemHandleStore()
	ctx := context.Background()

	first := NewConversationRegistry(backend, "fp", store, nil)
	created, err := first.GetOrCreate(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// A new registry with the same fingerprint simulates a restart.
	second := NewConversationRegistry(backend, "fp", store, nil)
	loaded, err := second.GetOrCreate(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if loaded != created {
		t.Fatalf("loaded %+v, want %+v", loaded, created)
	}
	if create, _, _, _ := backend.counts(); create != 1 {
		t.Fatalf("CreateConversation called %d times, want 1", create)
	}

	// A different fingerprint never sees the persisted handle.
	other := NewConversationRegistry(backend, "fp2", store, nil)
	fresh, err := other.GetOrCreate(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if fresh.ConversationID == created.ConversationID {
		t.Fatalf("fingerprint change reused conversation %q", fresh.ConversationID)
	}
}

func TestRegistry_StoreLoadFailureFallsBackToCreate(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	store := newMemHandleStore()
	store.loadErr = errors.New("db closed")
	registry := NewConversationRegistry(backend, "fp", store, nil)

	handle, err := registry.GetOrCreate(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if handle.ConversationID == "" {
		t.Fatalf("expected a created conversation")
	}
	if create, _, _, _ := backend.counts(); create != 1 {
		t.Fatalf("CreateConversation called %d times, want 1", create)
	}
}

func TestRegistry_CreateFailureNotCached(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{createErr: errors.New("backend down")}
	registry := NewConversationRegistry(backend, "fp", nil, nil)
	ctx := context.Background()

	if _, err := registry.GetOrCreate(ctx, "user_1"); err == nil {
		t.Fatalf("expected error")
	}

	backend.mu.Lock()
	backend.createErr = nil
	backend.mu.Unlock()

	handle, err := registry.GetOrCreate(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetOrCreate after recovery: %v", err)
	}
	if handle.ConversationID == "" {
		t.Fatalf("expected a created conversation")
	}
}
