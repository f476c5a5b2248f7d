package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ExpiredRetention is how long StoreSessionTable keeps a session in the backing
// store after it expires. Within that window a validate reports SessionExpired;
// after it the backend has dropped the entry and the token reads as invalid.
// MemorySessionTable has no such bound.
const ExpiredRetention = time.Hour

// SessionTable maps issued tokens to sessions. Lookup returns nil, nil when the
// token is absent. Insert never overwrites an existing token.
type SessionTable interface {
	Insert(ctx context.Context, s AuthSession) (bool, error)
	Lookup(ctx context.Context, token string) (*AuthSession, error)
	Remove(ctx context.Context, token string) (bool, error)
}

// MemorySessionTable is the default process-local table.
type MemorySessionTable struct {
	mu       sync.RWMutex
	sessions map[string]AuthSession
}

func NewMemorySessionTable() *MemorySessionTable {
	return &MemorySessionTable{sessions: make(map[string]AuthSession)}
}

func (t *MemorySessionTable) Insert(_ context.Context, s AuthSession) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[s.Token]; exists {
		return false, nil
	}
	t.sessions[s.Token] = s
	return true, nil
}

func (t *MemorySessionTable) Lookup(_ context.Context, token string) (*AuthSession, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[token]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (t *MemorySessionTable) Remove(_ context.Context, token string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[token]; !ok {
		return false, nil
	}
	delete(t.sessions, token)
	return true, nil
}

// Len counts held sessions, expired-but-unvalidated ones included.
func (t *MemorySessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

const storeTableKeyPrefix = "auth:"

// StoreSessionTable keeps sessions in any SessionStore, which lets the provider
// run on Redis or Postgres without changing its state machine. Insert and
// Remove are read-then-write; the provider serializes calls. Expired sessions
// are only distinguishable from unknown tokens for ExpiredRetention.
type StoreSessionTable struct {
	store     SessionStore
	retention time.Duration
	now       func() time.Time
}

func NewStoreSessionTable(store SessionStore) *StoreSessionTable {
	return &StoreSessionTable{store: store, retention: ExpiredRetention, now: time.Now}
}

func (t *StoreSessionTable) Insert(ctx context.Context, s AuthSession) (bool, error) {
	existing, err := t.store.Get(ctx, storeTableKeyPrefix+s.Token)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	ttl := s.ExpiresAt.Sub(t.now()) + t.retention
	if err := t.store.Set(ctx, storeTableKeyPrefix+s.Token, encodeAuthSession(s), ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (t *StoreSessionTable) Lookup(ctx context.Context, token string) (*AuthSession, error) {
	data, err := t.store.Get(ctx, storeTableKeyPrefix+token)
	if err != nil || data == nil {
		return nil, err
	}
	s, err := decodeAuthSession(token, data)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *StoreSessionTable) Remove(ctx context.Context, token string) (bool, error) {
	data, err := t.store.Get(ctx, storeTableKeyPrefix+token)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := t.store.Delete(ctx, storeTableKeyPrefix+token); err != nil {
		return false, err
	}
	return true, nil
}

func encodeAuthSession(s AuthSession) SessionData {
	return SessionData{
		"userId":    s.User.ID,
		"email":     s.User.Email,
		"name":      s.User.Name,
		"expiresAt": s.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeAuthSession(token string, d SessionData) (AuthSession, error) {
	str := func(k string) string {
		v, _ := d[k].(string)
		return v
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, str("expiresAt"))
	if err != nil {
		return AuthSession{}, fmt.Errorf("session: bad expiresAt for stored session: %w", err)
	}
	return AuthSession{
		Token:     token,
		User:      AuthUser{ID: str("userId"), Email: str("email"), Name: str("name")},
		ExpiresAt: expiresAt,
	}, nil
}
