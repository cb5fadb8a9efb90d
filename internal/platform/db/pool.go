package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSettings sizes the connection pool from service configuration. The
// workload is bursty: a sync or usage rebuild fans out over many measures
// at once, then the pool sits idle, so idle connections are recycled
// fairly aggressively.
type PoolSettings struct {
	MaxConns          int32
	MinConns          int32
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

func (s PoolSettings) withDefaults() PoolSettings {
	if s.MaxConns <= 0 {
		s.MaxConns = 20
	}
	if s.MinConns < 0 {
		s.MinConns = 0
	}
	if s.MaxConnIdleTime <= 0 {
		s.MaxConnIdleTime = 5 * time.Minute
	}
	if s.HealthCheckPeriod <= 0 {
		s.HealthCheckPeriod = time.Minute
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = 10 * time.Second
	}
	return s
}

// PoolConfig parses the database URL and applies the pool settings. Split
// out of NewPool so the settings-to-config mapping is checkable without a
// live database.
func PoolConfig(databaseURL string, settings PoolSettings) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	s := settings.withDefaults()
	cfg.MaxConns = s.MaxConns
	cfg.MinConns = s.MinConns
	cfg.MaxConnIdleTime = s.MaxConnIdleTime
	cfg.HealthCheckPeriod = s.HealthCheckPeriod
	cfg.ConnConfig.ConnectTimeout = s.ConnectTimeout
	return cfg, nil
}

// NewPool opens the pool and verifies connectivity before the server takes
// traffic, so a bad DATABASE_URL fails at startup instead of on the first
// request.
func NewPool(ctx context.Context, databaseURL string, settings PoolSettings) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(databaseURL, settings)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnConfig.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
