package cache

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is the in-process fallback cache: a map behind a mutex with a
// periodic sweep removing expired entries.
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

// Get returns the value for key if present and unexpired.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value under key for ttl. A zero ttl falls back to DefaultTTL.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
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

// Len returns the number of live entries. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
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
