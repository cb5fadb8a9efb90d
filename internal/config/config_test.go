package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/measurekit_test")
	t.Setenv("ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("pool sizes = %d/%d, want 20/5", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.MigrationsDir != "migrations" {
		t.Errorf("MigrationsDir = %q", cfg.MigrationsDir)
	}
	if !cfg.IsDev() {
		t.Errorf("ENV=development should report IsDev")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Errorf("Load without DATABASE_URL should fail")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/measurekit_test")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://a.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestResolvedAuthMode(t *testing.T) {
	cases := []struct {
		env, mode, want string
	}{
		{"development", "", "development"},
		{"production", "", "jwt"},
		{"staging", "", "jwt"},
		{"production", "development", "development"}, // explicit wins
		{"development", "jwt", "jwt"},
	}
	for _, tc := range cases {
		c := Config{Env: tc.env, AuthMode: tc.mode}
		if got := c.ResolvedAuthMode(); got != tc.want {
			t.Errorf("ENV=%s AUTH_MODE=%s: mode = %q, want %q", tc.env, tc.mode, got, tc.want)
		}
	}
}

func TestValidateJWTNeedsSecret(t *testing.T) {
	c := Config{Env: "production"}
	if err := c.Validate(); err == nil {
		t.Errorf("jwt mode without AUTH_SECRET should fail validation")
	}

	c.AuthSecret = "test-secret"
	if err := c.Validate(); err != nil {
		t.Errorf("jwt mode with secret: %v", err)
	}

	dev := Config{Env: "development"}
	if err := dev.Validate(); err != nil {
		t.Errorf("development mode needs no secret: %v", err)
	}

	bad := Config{Env: "production", AuthMode: "oauth"}
	if err := bad.Validate(); err == nil {
		t.Errorf("unknown auth mode accepted")
	}
}
