package core

import (
	"context"
	"sync"
	"time"
)

// DefaultSessionTTL applies when Set is called with a non-positive ttl.
const DefaultSessionTTL = time.Hour

// SessionData is the opaque per-session payload kept by a SessionStore.
type SessionData map[string]any

// SessionStore is a key/value store with per-entry expiry.
// Get returns nil, nil for missing or expired entries. Delete never fails on a missing id.
type SessionStore interface {
	Get(ctx context.Context, id string) (SessionData, error)
	Set(ctx context.Context, id string, data SessionData, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	data      SessionData
	expiresAt time.Time
}

// MemorySessionStore is a process-local SessionStore. Expired entries are
// removed lazily when read.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemorySessionStore returns an empty store using the wall clock.
func NewMemorySessionStore() *MemorySessionStore {
	return NewMemorySessionStoreWithClock(time.Now)
}

// NewMemorySessionStoreWithClock returns an empty store reading time from now.
func NewMemorySessionStoreWithClock(now func() time.Time) *MemorySessionStore {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionStore{entries: make(map[string]memoryEntry), now: now}
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (SessionData, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if e.expiresAt.Before(s.now()) {
		s.mu.Lock()
		// re-check under the write lock; a concurrent Set may have replaced it
		if cur, ok := s.entries[id]; ok && cur.expiresAt.Before(s.now()) {
			delete(s.entries, id)
		}
		s.mu.Unlock()
		return nil, nil
	}
	return cloneData(e.data), nil
}

func (s *MemorySessionStore) Set(_ context.Context, id string, data SessionData, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = memoryEntry{data: cloneData(data), expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Len reports entries currently held, including expired ones not yet read.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// cloneData makes a shallow copy so callers cannot mutate stored maps.
func cloneData(d SessionData) SessionData {
	if d == nil {
		return SessionData{}
	}
	out := make(SessionData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
