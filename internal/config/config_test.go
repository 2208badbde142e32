package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("QUIZ_JWT_SECRET", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
sqlite:
  path: attempts.db
attempt:
  reshuffle_on_load: true
  tick: 500ms
  auto_submit_grace: 10s
auth:
  jwt_secret: ${QUIZ_JWT_SECRET}
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.SQLite.Path != "attempts.db" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Attempt.ReshuffleOnLoad {
		t.Fatalf("expected reshuffle_on_load")
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("expected secret from env, got %q", cfg.Auth.JWTSecret)
	}
	if got := TTLDuration(cfg.Attempt.Tick, time.Second); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms tick, got %v", got)
	}
	if got := TTLDuration(cfg.Attempt.AutoSubmitGrace, 0); got != 10*time.Second {
		t.Fatalf("expected 10s grace, got %v", got)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for empty, got %v", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for garbage, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
