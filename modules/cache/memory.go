package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value      []byte
	created    time.Time
	lastAccess time.Time
	policy     Policy
}

// MemoryStore keeps entries in a bounded in-process LRU.
type MemoryStore struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *memoryEntry]
	now     func() time.Time
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding at most size entries.
func NewMemoryStore(size int) (*MemoryStore, error) {
	entries, err := lru.New[string, *memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &MemoryStore{entries: entries, now: time.Now}, nil
}

// SetClock replaces the time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns a live entry and slides its window forward.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	now := s.now()
	if e.policy.expired(e.created, e.lastAccess, now) {
		s.entries.Remove(key)
		return nil, false, nil
	}
	e.lastAccess = now
	return e.value, true, nil
}

// Set stores value under key, replacing any previous entry.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, p Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries.Add(key, &memoryEntry{
		value:      value,
		created:    now,
		lastAccess: now,
		policy:     p,
	})
	return nil
}

// Len returns the number of entries, including ones not yet evicted after expiring.
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close drops every entry.
func (s *MemoryStore) Close() error {
	s.entries.Purge()
	return nil
}
