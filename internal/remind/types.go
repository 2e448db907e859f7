package remind

import "time"

// Channel selects where a reminder is delivered.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelBoth     Channel = "both"
)

// Outcome is the result of one delivery attempt.
type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeFailed Outcome = "failed"
)

// Reminder is one scheduled reminder.
//
// Invariant: Active implies FireAt is the next unfired occurrence. After a
// firing the record is either advanced (FireAt moves forward, still active)
// or deactivated.
type Reminder struct {
	ID        string
	OwnerID   int64
	ChatID    int64
	Email     string
	Message   string
	FireAt    time.Time
	Pattern   Pattern
	Channel   Channel
	Active    bool
	CreatedAt time.Time
}

// DeliveryRecord is one append-only entry in the delivery log.
//
// ScheduledFor carries the FireAt value of the occurrence being delivered, so
// the dedup gate can tell occurrence N from occurrence N+1 even when both
// fired within the same tick window.
type DeliveryRecord struct {
	ReminderID   string
	ScheduledFor time.Time
	FiredAt      time.Time
	Channel      Channel
	Outcome      Outcome
	ErrorDetail  string
}
