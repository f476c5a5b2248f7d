package core

import (
	"context"
	"time"
)

// SessionManager forwards raw session data calls to a SessionStore.
type SessionManager struct {
	store SessionStore
}

// NewSessionManager wraps store, or a fresh MemorySessionStore when store is nil.
func NewSessionManager(store SessionStore) *SessionManager {
	if store == nil {
		store = NewMemorySessionStore()
	}
	return &SessionManager{store: store}
}

func (m *SessionManager) Get(ctx context.Context, id string) (SessionData, error) {
	return m.store.Get(ctx, id)
}

// Set stores data for ttl; ttl <= 0 means DefaultSessionTTL.
func (m *SessionManager) Set(ctx context.Context, id string, data SessionData, ttl time.Duration) error {
	return m.store.Set(ctx, id, data, ttl)
}

func (m *SessionManager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}
