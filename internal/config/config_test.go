package config

import "testing"

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("LITECAST_DB_DSN", "file:litecast.db")
	t.Setenv("LITECAST_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("LITECAST_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.QuotaSampleSeconds != 5 {
		t.Fatalf("unexpected default quota sample granularity: %d", cfg.QuotaSampleSeconds)
	}
}

func TestLoadRejectsUnknownDatabaseBackend(t *testing.T) {
	t.Setenv("LITECAST_DB_DSN", "file:litecast.db")
	t.Setenv("LITECAST_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("LITECAST_DB_BACKEND", "mongodb")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail for unsupported backend")
	}
}

func TestLoadProductionRequiresStrongSigningKey(t *testing.T) {
	t.Setenv("LITECAST_DB_DSN", "file:litecast.db")
	t.Setenv("LITECAST_JWT_SIGNING_KEY", "short")
	t.Setenv("LITECAST_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail with a short signing key")
	}

	t.Setenv("LITECAST_JWT_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with a strong key to succeed: %v", err)
	}
}
