// Package dispatch runs the periodic loop that resolves due reminders,
// delivers them, records the outcome and advances recurrences.
package dispatch

import (
	"context"
	"time"

	"remibot/internal/remind"
)

// Store is the slice of persistence the dispatcher needs.
type Store interface {
	ListActiveDueBy(ctx context.Context, due time.Time) ([]remind.Reminder, error)
	HasSent(ctx context.Context, reminderID string, occurrence time.Time) (bool, error)
	AppendDelivery(ctx context.Context, rec remind.DeliveryRecord) error
	AdvanceReminder(ctx context.Context, id string, prev, next time.Time, active bool) (bool, error)
	PruneDeliveries(ctx context.Context, before time.Time) (int64, error)
}

// ChatSender delivers one Telegram message.
type ChatSender interface {
	Send(ctx context.Context, chatID int64, html string) error
}

// MailSender delivers one email.
type MailSender interface {
	Enabled() bool
	Send(ctx context.Context, to, subject, body string) error
}

type Config struct {
	Enabled  bool
	Interval time.Duration
	// Timezone reminders are rendered and resolved in.
	Timezone string
	// PruneSchedule is a 5-field cron spec; empty disables pruning.
	PruneSchedule string
	// DeliveryRetention bounds how long delivery records are kept.
	DeliveryRetention time.Duration
}

// Due pairs a reminder with the occurrence instant that made it due.
type Due struct {
	Reminder remind.Reminder
	At       time.Time
}
