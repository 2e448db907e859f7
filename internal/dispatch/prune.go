package dispatch

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	logx "remibot/pkg/logx"
)

// recheckIdle is how often the prune loop re-reads its schedule while
// pruning is disabled, so enabling it via config reload takes effect.
const recheckIdle = time.Hour

// pruneLoop deletes old delivery records on the configured cron schedule.
// The log is append-only by design, so retention is the only thing keeping
// the database from growing without bound.
func (s *Service) pruneLoop(ctx context.Context) {
	for {
		sched := s.pruneSchedule()

		wait := recheckIdle
		if sched != nil {
			wait = sched.Next(s.clk.Now()).Sub(s.clk.Now())
			if wait < time.Second {
				wait = time.Second
			}
		}

		t := s.clk.Timer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			if sched == nil {
				continue
			}
			s.pruneOnce(context.WithoutCancel(ctx))
		}
	}
}

func (s *Service) pruneSchedule() cron.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneSched
}

func (s *Service) retention() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.DeliveryRetention
}

func (s *Service) pruneOnce(ctx context.Context) {
	cutoff := s.clk.Now().Add(-s.retention())
	n, err := s.store.PruneDeliveries(ctx, cutoff)
	if err != nil {
		s.log.Error("delivery log prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("delivery log pruned", logx.Any("removed", n), logx.Time("cutoff", cutoff))
	}
}
