// Package config loads, validates and hot-reloads the bot configuration.
package config

import "encoding/json"

type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Email      EmailConfig      `json:"email,omitempty"`
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound messages per second.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type EmailConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	FromName string `json:"from_name,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
	UseSSL   bool   `json:"use_ssl,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy handler).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DispatcherConfig controls the reminder dispatch loop.
//
// Defaults (when fields are omitted/zero):
//   - interval: "60s"
//   - timezone: "UTC"
//   - prune_schedule: "" (pruning disabled)
//   - delivery_retention: "720h" (30 days)
type DispatcherConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	// Interval between ticks, a Go duration string.
	Interval string `json:"interval,omitempty"`
	// Timezone for interpreting user-typed dates, e.g. "America/Argentina/Buenos_Aires".
	Timezone string `json:"timezone,omitempty"`
	// PruneSchedule is a standard 5-field cron spec for delivery-log pruning.
	PruneSchedule string `json:"prune_schedule,omitempty"`
	// DeliveryRetention is how long delivery records are kept, a Go duration string.
	DeliveryRetention string `json:"delivery_retention,omitempty"`
}

// Enabled treats an omitted flag as on: a reminder bot without its dispatch
// loop only ever collects reminders.
func (d DispatcherConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var cp Config
	if err := json.Unmarshal(b, &cp); err != nil {
		return nil
	}
	return &cp
}
