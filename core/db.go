package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultDatabaseMaxConns = 8

// sessionPoolConfig sizes a pool for short single-row session queries.
func sessionPoolConfig(dsn string, maxConns int) (*pgxpool.Config, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = defaultDatabaseMaxConns
	}
	config.MaxConns = int32(maxConns)
	config.MinConns = 1
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second
	return config, nil
}

// Connect opens the session store pool and pings it within timeout.
func Connect(ctx context.Context, dsn string, maxConns int, timeout time.Duration) (*pgxpool.Pool, error) {
	config, err := sessionPoolConfig(dsn, maxConns)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
