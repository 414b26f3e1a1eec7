package chat

import (
	"sync"
	"time"

	"github.com/spherical-ai/bess-advisor/internal/domain"
)

// Thread is the state of one conversation.
type Thread struct {
	ID          string                   `json:"id"`
	History     []domain.ChatMessage     `json:"history"`
	Requirement domain.RequirementRecord `json:"requirement"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// ThreadStore persists conversation state between turns.
type ThreadStore interface {
	Load(id string) (Thread, bool)
	Save(t Thread)
	Delete(id string)
}

// MemoryThreadStore keeps threads in process memory.
type MemoryThreadStore struct {
	mu      sync.RWMutex
	threads map[string]Thread
}

// NewMemoryThreadStore creates an empty store.
func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{threads: make(map[string]Thread)}
}

// Load returns a copy of the thread, so callers may append to its history
// without touching the stored state.
func (s *MemoryThreadStore) Load(id string) (Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return Thread{}, false
	}
	t.History = append([]domain.ChatMessage(nil), t.History...)
	return t, true
}

// Save stores a copy of t, replacing any thread with the same ID.
func (s *MemoryThreadStore) Save(t Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.History = append([]domain.ChatMessage(nil), t.History...)
	s.threads[t.ID] = t
}

// Delete removes the thread. Unknown IDs are ignored.
func (s *MemoryThreadStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, id)
}

// Len returns the number of stored threads.
func (s *MemoryThreadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

// keyedMutex serializes work per key. Entries are dropped once no caller
// holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
