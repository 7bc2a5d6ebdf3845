package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMustLoadServerFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ENV", "prod")
	t.Setenv("HTTP_ADDRESS", ":9090")

	cfg := MustLoadServer()
	if cfg.Env != "prod" {
		t.Errorf("Env=%q, want prod", cfg.Env)
	}
	if cfg.HTTP.Address != ":9090" {
		t.Errorf("Address=%q, want :9090", cfg.HTTP.Address)
	}
}

func TestMustLoadServerDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ENV", "")
	t.Setenv("HTTP_ADDRESS", "")
	os.Unsetenv("ENV")
	os.Unsetenv("HTTP_ADDRESS")

	cfg := MustLoadServer()
	if cfg.Env != "local" {
		t.Errorf("Env=%q, want local", cfg.Env)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Errorf("Address=%q, want :8080", cfg.HTTP.Address)
	}
}

func TestMustLoadServerFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "env: dev\nhttp:\n  address: \":7070\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg := MustLoadServer()
	if cfg.Env != "dev" {
		t.Errorf("Env=%q, want dev", cfg.Env)
	}
	if cfg.HTTP.Address != ":7070" {
		t.Errorf("Address=%q, want :7070", cfg.HTTP.Address)
	}
}

func TestMustLoadServerMissingFilePanics(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing config file")
		}
	}()
	MustLoadServer()
}
