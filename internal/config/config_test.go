package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != ":3000" {
		t.Errorf("expected default listen addr :3000, got %q", cfg.ListenAddr)
	}
	if cfg.TokenTTL != 360*time.Hour {
		t.Errorf("expected default token TTL 360h, got %s", cfg.TokenTTL)
	}
	if cfg.MongoDB != "parley" {
		t.Errorf("expected default database name, got %q", cfg.MongoDB)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("WS_READ_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("expected overridden listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.WSReadTimeout != 30*time.Second {
		t.Errorf("expected 30s read timeout, got %s", cfg.WSReadTimeout)
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}
