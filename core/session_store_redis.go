package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisSessionPrefix = "session:"

// RedisSessionStore keeps SessionData as JSON strings; Redis enforces the TTL.
// Numbers come back as float64 after the round trip.
type RedisSessionStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisSessionStore wraps a go-redis client. An empty prefix uses "session:".
func NewRedisSessionStore(client redis.Cmdable, prefix string) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: firstNonEmpty(prefix, defaultRedisSessionPrefix),
	}
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (SessionData, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get: %v", ErrStoreUnavailable, err)
	}
	var data SessionData
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal %s: %w", id, err)
	}
	return data, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, id string, data SessionData, ttl time.Duration) error {
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
	if err := s.client.Set(ctx, s.key(id), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: redis del: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Count scans the keyspace for live entries under the store prefix.
func (s *RedisSessionStore) Count(ctx context.Context) (int, error) {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	n := 0
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("%w: redis scan: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", ErrStoreUnavailable, err)
	}
	return nil
}
