package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: ./data/remibot.db
dispatcher:
  interval: "30s"
  timezone: America/Argentina/Buenos_Aires
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Dispatcher.Interval != "30s" || cfg.Dispatcher.Timezone != "America/Argentina/Buenos_Aires" {
		t.Fatalf("dispatcher = %+v", cfg.Dispatcher)
	}
	if !cfg.Dispatcher.IsEnabled() {
		t.Fatal("omitted enabled flag must default to on")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram":{"token":"t"},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"storage":{"path":"x"},"dispatcher":{},"surprise":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown top-level field accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("dispatcher.interval", "", time.Minute)
	if err != nil || d != time.Minute {
		t.Fatalf("empty duration = (%v, %v), want default minute", d, err)
	}
	if _, err := ParseDurationField("dispatcher.interval", "banana"); err == nil {
		t.Fatal("invalid duration accepted")
	}
	if _, err := ParseDurationField("dispatcher.interval", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}
