package dispatch

import (
	"context"
	"fmt"
	"time"
)

// ResolveDue computes the set of reminders that must fire now: every active
// reminder whose fire_at has arrived, minus those the delivery log already
// shows as sent for the current occurrence (the dedup gate). Overlapping
// ticks and restarts therefore cannot double-send.
//
// A reminder overdue by many periods appears once; catch-up happens at
// advancement time, never by backfilling old occurrences.
func (s *Service) ResolveDue(ctx context.Context, now time.Time) ([]Due, error) {
	reminders, err := s.store.ListActiveDueBy(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}

	due := make([]Due, 0, len(reminders))
	for _, r := range reminders {
		sent, err := s.store.HasSent(ctx, r.ID, r.FireAt)
		if err != nil {
			return nil, fmt.Errorf("dedup check for %s: %w", r.ID, err)
		}
		if sent {
			continue
		}
		due = append(due, Due{Reminder: r, At: r.FireAt})
	}
	return due, nil
}
