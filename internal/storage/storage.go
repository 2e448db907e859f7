// Package storage persists reminder configuration and the delivery log.
package storage

import (
	"context"
	"errors"
	"time"

	"remibot/internal/remind"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures the sqlite backend.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Store is the persistence API used by the bot and the dispatcher.
//
// Reminders are mutated only through InsertReminder, DeactivateOwned and
// AdvanceReminder; delivery records are append-only.
type Store interface {
	InsertReminder(ctx context.Context, r remind.Reminder) error
	GetReminder(ctx context.Context, id string) (remind.Reminder, error)

	// ListActiveDueBy returns active reminders with fire_at <= due.
	ListActiveDueBy(ctx context.Context, due time.Time) ([]remind.Reminder, error)
	// ListActiveByOwner returns the owner's active reminders ordered by fire_at.
	ListActiveByOwner(ctx context.Context, owner int64, limit int) ([]remind.Reminder, error)
	// DeactivateOwned cancels a reminder if it belongs to owner and is active.
	DeactivateOwned(ctx context.Context, id string, owner int64) (bool, error)

	// AdvanceReminder moves a reminder past a fired occurrence. The update is
	// conditional on fire_at still being prev; ok=false means another writer
	// advanced it first and the caller must skip, not retry.
	// active=false retires the reminder instead of rescheduling it.
	AdvanceReminder(ctx context.Context, id string, prev, next time.Time, active bool) (bool, error)

	// HasSent reports whether a sent delivery record exists for the given
	// occurrence. This is the dedup gate.
	HasSent(ctx context.Context, reminderID string, occurrence time.Time) (bool, error)
	AppendDelivery(ctx context.Context, rec remind.DeliveryRecord) error
	// PruneDeliveries deletes delivery records fired before the given instant.
	PruneDeliveries(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
