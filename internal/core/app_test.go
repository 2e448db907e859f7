package core

import (
	"strings"
	"testing"
	"time"

	"remibot/internal/config"
)

func validBase() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{Token: "123:abc"},
		Storage:  config.StorageConfig{Path: "/tmp/remibot.db"},
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"minimal ok", func(*config.Config) {}, ""},
		{"missing token", func(c *config.Config) { c.Telegram.Token = " " }, "telegram.token"},
		{"missing storage path", func(c *config.Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad interval", func(c *config.Config) { c.Dispatcher.Interval = "soon" }, "dispatcher.interval"},
		{"bad timezone", func(c *config.Config) { c.Dispatcher.Timezone = "Mars/Olympus" }, "dispatcher.timezone"},
		{"bad prune schedule", func(c *config.Config) { c.Dispatcher.PruneSchedule = "whenever" }, "prune_schedule"},
		{"email enabled without host", func(c *config.Config) { c.Email.Enabled = true }, "email.host"},
		{"valid full", func(c *config.Config) {
			c.Dispatcher.Interval = "30s"
			c.Dispatcher.Timezone = "America/Argentina/Buenos_Aires"
			c.Dispatcher.PruneSchedule = "0 4 * * *"
			c.Dispatcher.DeliveryRetention = "168h"
		}, ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validBase()
			tc.mutate(cfg)
			err := validateConfig(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("validateConfig() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("validateConfig() = %v, want error mentioning %q", err, tc.wantErr)
			}
		})
	}
}

func TestMapDispatchConfigDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapDispatchConfig(validBase())
	if err != nil {
		t.Fatalf("mapDispatchConfig: %v", err)
	}
	if !got.Enabled {
		t.Fatal("dispatcher defaults to disabled")
	}
	if got.Interval != 60*time.Second {
		t.Fatalf("interval = %v, want 60s", got.Interval)
	}
	if got.DeliveryRetention != 30*24*time.Hour {
		t.Fatalf("retention = %v, want 720h", got.DeliveryRetention)
	}
}

func TestMapDispatchConfigRespectsDisable(t *testing.T) {
	t.Parallel()
	cfg := validBase()
	off := false
	cfg.Dispatcher.Enabled = &off
	got, err := mapDispatchConfig(cfg)
	if err != nil {
		t.Fatalf("mapDispatchConfig: %v", err)
	}
	if got.Enabled {
		t.Fatal("explicit enabled=false ignored")
	}
}
