package core

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisTablePrefix = "authsession:"
	redisDataPrefix  = "sessiondata:"
	connectTimeout   = 5 * time.Second
)

// SessionBackend is the storage selected by Config.SessionBackend: the
// provider's session table plus the store behind SessionManager.
type SessionBackend struct {
	Name  string
	Table SessionTable
	Data  SessionStore
	// counter and pinger are set when the table's store can count or ping itself.
	counter interface {
		Count(ctx context.Context) (int, error)
	}
	pinger interface {
		Ping(ctx context.Context) error
	}
	closers []func()
}

// Close releases connections opened by OpenSessionBackend.
func (b *SessionBackend) Close() {
	for _, c := range b.closers {
		c()
	}
}

// OpenSessionBackend connects the configured backend. Memory needs no I/O.
func OpenSessionBackend(ctx context.Context, cfg Config, log *zap.Logger) (*SessionBackend, error) {
	switch cfg.SessionBackend {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "redis":
		client, err := NewRedisClient(cfg.RedisURL, cfg.RedisPoolSize, connectTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: connect redis: %v", ErrStoreUnavailable, err)
		}
		b := NewRedisBackend(client)
		b.closers = append(b.closers, func() { _ = client.Close() })
		log.Info("session backend ready", zap.String("backend", "redis"))
		return b, nil
	case "postgres":
		pool, err := Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, connectTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: connect postgres: %v", ErrStoreUnavailable, err)
		}
		store := NewPgSessionStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("session backend ready", zap.String("backend", "postgres"))
		return &SessionBackend{
			Name:    "postgres",
			Table:   NewStoreSessionTable(store),
			Data:    store,
			closers: []func(){pool.Close},
		}, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

func NewMemoryBackend() *SessionBackend {
	return &SessionBackend{
		Name:  "memory",
		Table: NewMemorySessionTable(),
		Data:  NewMemorySessionStore(),
	}
}

// NewRedisBackend keeps auth sessions and raw session data under separate prefixes.
func NewRedisBackend(client redis.Cmdable) *SessionBackend {
	tableStore := NewRedisSessionStore(client, redisTablePrefix)
	return &SessionBackend{
		Name:    "redis",
		Table:   NewStoreSessionTable(tableStore),
		Data:    NewRedisSessionStore(client, redisDataPrefix),
		counter: tableStore,
		pinger:  tableStore,
	}
}

// NewTokenCodec returns the codec named by cfg.TokenCodec.
func NewTokenCodec(cfg Config) (TokenCodec, error) {
	switch cfg.TokenCodec {
	case "", "opaque":
		return OpaqueTokenCodec{}, nil
	case "signed":
		return NewSignedTokenCodec([]byte(cfg.TokenSecret))
	default:
		return nil, fmt.Errorf("unknown token codec %q", cfg.TokenCodec)
	}
}
