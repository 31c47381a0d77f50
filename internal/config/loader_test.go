package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999
	},
	"tasks": {
		"default_timeout": "30s",
		"retention": {
			"enabled": true,
			"max_age": "2h"
		}
	},
	"registry": {
		"seed_file": "${{ .Env.TASKGATE_SEED }}"
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TASKGATE_SEED", "/tmp/users.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("Gateway.Host = %q, want %q", cfg.Gateway.Host, "0.0.0.0")
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("Gateway.Port = %d, want 9999", cfg.Gateway.Port)
	}
	if cfg.Tasks.DefaultTimeout.Duration() != 30*time.Second {
		t.Errorf("Tasks.DefaultTimeout = %s, want 30s", cfg.Tasks.DefaultTimeout.Duration())
	}
	if cfg.Tasks.Retention.MaxAge.Duration() != 2*time.Hour {
		t.Errorf("Retention.MaxAge = %s, want 2h", cfg.Tasks.Retention.MaxAge.Duration())
	}
	if cfg.Registry.SeedFile != "/tmp/users.yaml" {
		t.Errorf("Registry.SeedFile = %q, want env-expanded path", cfg.Registry.SeedFile)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("default host = %q, want 127.0.0.1", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 18520 {
		t.Errorf("default port = %d, want 18520", cfg.Gateway.Port)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("default buffer size = %d, want 1024", cfg.Events.BufferSize)
	}
	// Retention stays disabled unless explicitly enabled.
	if cfg.Tasks.Retention.Enabled {
		t.Error("retention should default to disabled")
	}
}

func TestLoadRetentionDefaults(t *testing.T) {
	content := `{"tasks": {"retention": {"enabled": true}}}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Tasks.Retention.Schedule == "" {
		t.Error("expected default retention schedule")
	}
	if cfg.Tasks.Retention.MaxAge.Duration() != time.Hour {
		t.Errorf("default retention max_age = %s, want 1h", cfg.Tasks.Retention.MaxAge.Duration())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.jsonc")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
