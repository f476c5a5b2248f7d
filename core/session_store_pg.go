package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const sessionDataSchema = `CREATE TABLE IF NOT EXISTS auth_session_data (
	id         TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// pgQuerier is the subset of *pgxpool.Pool used by PgSessionStore.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgSessionStore implements SessionStore on a PostgreSQL table.
// Expired rows are deleted when read; nothing sweeps them in the background.
type PgSessionStore struct {
	db  pgQuerier
	now func() time.Time
}

func NewPgSessionStore(db pgQuerier) *PgSessionStore {
	return &PgSessionStore{db: db, now: time.Now}
}

// EnsureSchema creates the backing table when missing.
func (s *PgSessionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, sessionDataSchema); err != nil {
		return fmt.Errorf("%w: create schema: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PgSessionStore) Get(ctx context.Context, id string) (SessionData, error) {
	const q = `SELECT data, expires_at FROM auth_session_data WHERE id=$1`
	var (
		raw       []byte
		expiresAt time.Time
	)
	if err := s.db.QueryRow(ctx, q, id).Scan(&raw, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: select session data: %v", ErrStoreUnavailable, err)
	}

	now := s.now()
	if expiresAt.Before(now) {
		const del = `DELETE FROM auth_session_data WHERE id=$1 AND expires_at < $2`
		if _, err := s.db.Exec(ctx, del, id, now); err != nil {
			return nil, fmt.Errorf("%w: evict session data: %v", ErrStoreUnavailable, err)
		}
		return nil, nil
	}

	var data SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal %s: %w", id, err)
	}
	return data, nil
}

func (s *PgSessionStore) Set(ctx context.Context, id string, data SessionData, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if data == nil {
		data = SessionData{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session: failed to marshal %s: %w", id, err)
	}
	const q = `INSERT INTO auth_session_data (id, data, expires_at) VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data, expires_at=EXCLUDED.expires_at`
	if _, err := s.db.Exec(ctx, q, id, string(raw), s.now().Add(ttl)); err != nil {
		return fmt.Errorf("%w: upsert session data: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PgSessionStore) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM auth_session_data WHERE id=$1`
	if _, err := s.db.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("%w: delete session data: %v", ErrStoreUnavailable, err)
	}
	return nil
}
