package db

import (
	"testing"
	"time"
)

func TestPoolConfigAppliesSettings(t *testing.T) {
	cfg, err := PoolConfig("postgres://localhost:5432/measurekit", PoolSettings{
		MaxConns:          8,
		MinConns:          2,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("PoolConfig: %v", err)
	}
	if cfg.MaxConns != 8 || cfg.MinConns != 2 {
		t.Errorf("conns = %d/%d, want 8/2", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.MaxConnIdleTime != time.Minute {
		t.Errorf("idle time = %s", cfg.MaxConnIdleTime)
	}
	if cfg.HealthCheckPeriod != 30*time.Second {
		t.Errorf("health check period = %s", cfg.HealthCheckPeriod)
	}
	if cfg.ConnConfig.ConnectTimeout != 5*time.Second {
		t.Errorf("connect timeout = %s", cfg.ConnConfig.ConnectTimeout)
	}
}

func TestPoolConfigDefaults(t *testing.T) {
	cfg, err := PoolConfig("postgres://localhost:5432/measurekit", PoolSettings{})
	if err != nil {
		t.Fatalf("PoolConfig: %v", err)
	}
	if cfg.MaxConns != 20 {
		t.Errorf("default max conns = %d, want 20", cfg.MaxConns)
	}
	if cfg.MaxConnIdleTime != 5*time.Minute {
		t.Errorf("default idle time = %s, want 5m", cfg.MaxConnIdleTime)
	}
	if cfg.ConnConfig.ConnectTimeout != 10*time.Second {
		t.Errorf("default connect timeout = %s, want 10s", cfg.ConnConfig.ConnectTimeout)
	}
}

func TestPoolConfigRejectsBadURL(t *testing.T) {
	if _, err := PoolConfig("://not-a-url", PoolSettings{}); err == nil {
		t.Errorf("malformed database url accepted")
	}
}
