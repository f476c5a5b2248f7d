package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionRedisOptions parses redisURL (e.g. redis://localhost:6379/0). A
// positive poolSize overrides the go-redis default. Deadlines come from the
// caller's context.
func sessionRedisOptions(redisURL string, poolSize int) (*redis.Options, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	opts.ContextTimeoutEnabled = true
	return opts, nil
}

// NewRedisClient returns a client for the session stores after a ping bounded by timeout.
func NewRedisClient(redisURL string, poolSize int, timeout time.Duration) (*redis.Client, error) {
	opts, err := sessionRedisOptions(redisURL, poolSize)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
