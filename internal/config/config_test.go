package config

import (
	"strings"
	"testing"
)

func TestLoadRejectsShortAuthSecret(t *testing.T) {
	t.Setenv("AUTH_SECRET", "too-short")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for short AUTH_SECRET")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", strings.Repeat("s", 32))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.MaxUploadBytes != 5242880 {
		t.Fatalf("unexpected upload limit %d", cfg.MaxUploadBytes)
	}
}
