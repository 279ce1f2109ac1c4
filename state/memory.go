package state

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore is the in-process conversation state store: a map behind a
// mutex with a periodic expiry sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a MemoryStore and starts its sweep goroutine.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
	}
	go s.sweep(defaultSweepInterval)
	return s
}

// Get returns the state for a conversation if present and unexpired.
func (s *MemoryStore) Get(ctx context.Context, conversationID string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[Key(conversationID)]
	if !ok || time.Now().After(e.expiresAt) {
		return Entry{}, false, nil
	}
	return e.entry, true, nil
}

// Set stores the state for a conversation. Zero ttl means DefaultTTL.
func (s *MemoryStore) Set(ctx context.Context, conversationID string, e Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[Key(conversationID)] = memoryEntry{entry: e, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Close stops the sweep goroutine and drops all entries.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
