package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "huntd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	// WHAT: An empty file yields a fully defaulted configuration.
	cfg, err := LoadFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.DBPath != "huntd.db" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
	if cfg.Fetch.Timeout != Duration(30*time.Second) {
		t.Errorf("Fetch.Timeout: got %v", cfg.Fetch.Timeout)
	}
	if cfg.Scheduler.Interval != Duration(5*time.Minute) {
		t.Errorf("Scheduler.Interval: got %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Concurrency != 4 {
		t.Errorf("Scheduler.Concurrency: got %d", cfg.Scheduler.Concurrency)
	}
	if cfg.Notify.Kind != "stdout" {
		t.Errorf("Notify.Kind: got %q", cfg.Notify.Kind)
	}
	if cfg.API.Addr != ":8080" {
		t.Errorf("API.Addr: got %q", cfg.API.Addr)
	}
}

func TestLoadFile_Overrides(t *testing.T) {
	// WHAT: Explicit values survive default application.
	cfg, err := LoadFile(writeConfig(t, `
db_path: /var/lib/huntd/huntd.db
fetch:
  timeout: 10s
  cache_ttl: 1m
scheduler:
  interval: 30s
  concurrency: 8
notify:
  kind: webhook
  url: https://hooks.example/huntd
  retries: 2
api:
  addr: 127.0.0.1:9000
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.DBPath != "/var/lib/huntd/huntd.db" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
	if cfg.Fetch.Timeout != Duration(10*time.Second) {
		t.Errorf("Fetch.Timeout: got %v", cfg.Fetch.Timeout)
	}
	if cfg.Scheduler.Concurrency != 8 {
		t.Errorf("Scheduler.Concurrency: got %d", cfg.Scheduler.Concurrency)
	}
	if cfg.Notify.URL != "https://hooks.example/huntd" {
		t.Errorf("Notify.URL: got %q", cfg.Notify.URL)
	}
}

func TestLoadFile_WebhookRequiresURL(t *testing.T) {
	// WHY: A webhook notifier without a destination would silently drop
	// every notification.
	_, err := LoadFile(writeConfig(t, "notify:\n  kind: webhook\n"))
	if err == nil {
		t.Fatal("expected error for webhook without url")
	}
}

func TestLoadFile_UnknownNotifyKind(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "notify:\n  kind: carrier-pigeon\n"))
	if err == nil {
		t.Fatal("expected error for unknown notify kind")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
