package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"remibot/internal/remind"
	logx "remibot/pkg/logx"
)

// Deps are the injected collaborators. Clock defaults to the wall clock; the
// tests drive ticks through a mock.
type Deps struct {
	Store Store
	Chat  ChatSender
	Mail  MailSender
	Clock clock.Clock
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	loc *time.Location
	// pruneSched is the parsed PruneSchedule, nil when pruning is off.
	pruneSched cron.Schedule

	log   logx.Logger
	store Store
	chat  ChatSender
	mail  MailSender
	clk   clock.Clock

	// tickBusy enforces a single tick in flight; an overlapping trigger is
	// skipped, never queued.
	tickBusy atomic.Bool

	running   bool
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log,
		store: deps.Store,
		chat:  deps.Chat,
		mail:  deps.Mail,
		clk:   deps.Clock,
	}
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
	return s
}

// Apply swaps the runtime config (interval, timezone, prune schedule). The
// loop picks the new interval up on its next arming.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.DeliveryRetention <= 0 {
		cfg.DeliveryRetention = 30 * 24 * time.Hour
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			s.log.Warn("invalid timezone, using UTC", logx.String("tz", cfg.Timezone), logx.Err(err))
		}
	}

	s.pruneSched = nil
	if cfg.PruneSchedule != "" {
		if sched, err := cron.ParseStandard(cfg.PruneSchedule); err == nil {
			s.pruneSched = sched
		} else {
			s.log.Warn("invalid prune schedule, pruning disabled", logx.String("spec", cfg.PruneSchedule), logx.Err(err))
		}
	}

	s.cfg = cfg
	s.loc = loc
}

func (s *Service) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Interval
}

func (s *Service) location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running || !s.cfg.Enabled {
		enabled := s.cfg.Enabled
		s.mu.Unlock()
		if !enabled {
			s.log.Info("dispatcher disabled")
		}
		return
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	interval := s.cfg.Interval
	s.mu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.loop(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.pruneLoop(runCtx)
	}()

	s.log.Info("dispatcher started", logx.Duration("interval", interval))
}

// Stop cancels the loop and waits for an in-flight tick to finish, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) loop(ctx context.Context) {
	for {
		// One-shot timer per iteration so Apply() can change the interval
		// without restarting the loop.
		t := s.clk.Timer(s.interval())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			// Let an in-flight tick finish its writes even when the app is
			// shutting down; Stop() bounds the wait.
			s.TickNow(context.WithoutCancel(ctx))
		}
	}
}

// TickNow runs one dispatch tick: resolve the due set, deliver, record,
// advance. If a tick is already running the call is a no-op (never two
// concurrent ticks against the same store).
func (s *Service) TickNow(ctx context.Context) {
	if !s.tickBusy.CompareAndSwap(false, true) {
		s.log.Warn("tick still running, skipping")
		return
	}
	defer s.tickBusy.Store(false)

	now := s.clk.Now().In(s.location())

	due, err := s.ResolveDue(ctx, now)
	if err != nil {
		// Storage trouble aborts this tick only; the next one starts fresh.
		s.log.Error("due-set resolution failed", logx.Err(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Info("reminders due", logx.Int("count", len(due)))

	for _, d := range due {
		s.processOne(ctx, d, now)
	}
}

// processOne delivers a single due reminder and advances or retires it.
// Failures here are contained: one broken reminder never aborts the tick.
func (s *Service) processOne(ctx context.Context, d Due, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic processing reminder",
				logx.String("reminder", d.Reminder.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	s.deliver(ctx, d)
	s.advance(ctx, d.Reminder, now)
}

// advance moves the reminder past the fired occurrence. A recurring reminder
// overdue by many periods catches up to the first occurrence in the future:
// it fired once this tick and must not fire again on the next one.
func (s *Service) advance(ctx context.Context, r remind.Reminder, now time.Time) {
	next, ok := remind.Advance(r.FireAt, r.Pattern)
	if ok {
		for i := 0; !next.After(now) && i < maxCatchUpSteps; i++ {
			n, stillOK := remind.Advance(next, r.Pattern)
			if !stillOK {
				break
			}
			next = n
		}
	}

	advanced, err := s.store.AdvanceReminder(ctx, r.ID, r.FireAt, next, ok)
	if err != nil {
		s.log.Error("reminder update failed", logx.String("reminder", r.ID), logx.Err(err))
		return
	}
	if !advanced {
		// Another writer won the conditional update; skipping preserves the
		// single-advance-per-occurrence invariant.
		s.log.Warn("reminder advanced elsewhere, skipping", logx.String("reminder", r.ID))
		return
	}
	if ok {
		s.log.Debug("reminder rescheduled", logx.String("reminder", r.ID), logx.Time("next", next))
	} else {
		s.log.Debug("reminder retired", logx.String("reminder", r.ID))
	}
}

const maxCatchUpSteps = 10000
