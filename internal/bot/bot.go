// Package bot consumes inbound Telegram updates and turns them into
// reminder mutations: free text goes through the parser, commands manage
// the user's active reminders.
package bot

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"remibot/internal/parse"
	"remibot/internal/remind"
	"remibot/internal/transport"
	logx "remibot/pkg/logx"
)

// listLimit caps /mis_recordatorios and the /cancelar index space.
const listLimit = 20

// Store is the slice of the persistence API the bot needs.
type Store interface {
	InsertReminder(ctx context.Context, r remind.Reminder) error
	ListActiveByOwner(ctx context.Context, owner int64, limit int) ([]remind.Reminder, error)
	DeactivateOwned(ctx context.Context, id string, owner int64) (bool, error)
}

type Config struct {
	Timezone string
}

type Deps struct {
	Store   Store
	Chat    transport.Chat
	Clock   clock.Clock
	Updates <-chan transport.Update
}

type Service struct {
	mu  sync.Mutex
	loc *time.Location

	log     logx.Logger
	store   Store
	chat    transport.Chat
	clk     clock.Clock
	updates <-chan transport.Update

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
		log:     log,
		store:   deps.Store,
		chat:    deps.Chat,
		clk:     deps.Clock,
		updates: deps.Updates,
	}
	s.Apply(cfg)
	return s
}

// Apply swaps the runtime config. Only the timezone matters here; it affects
// both parsing ("mañana" is local) and how listings are rendered.
func (s *Service) Apply(cfg Config) {
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			s.log.Warn("invalid timezone, using UTC", logx.String("tz", cfg.Timezone), logx.Err(err))
		}
	}
	s.mu.Lock()
	s.loc = loc
	s.mu.Unlock()
}

func (s *Service) location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(runCtx)
	}()
	s.log.Info("bot started")
}

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
		s.log.Info("bot stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-s.updates:
			if !ok {
				return
			}
			if u.Message == nil {
				continue
			}
			s.handle(ctx, u.Message)
		}
	}
}

// handle processes one inbound message. A panic in a handler is contained to
// that message.
func (s *Service) handle(ctx context.Context, msg *transport.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic handling message",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		s.handleCommand(ctx, msg, text)
		return
	}
	s.handleFreeText(ctx, msg, text)
}

func (s *Service) handleCommand(ctx context.Context, msg *transport.Message, text string) {
	fields := strings.Fields(text)
	// "/cancelar@somebot 2" is the same command as "/cancelar 2".
	cmd, _, _ := strings.Cut(fields[0], "@")

	switch cmd {
	case "/start", "/help", "/ayuda":
		s.reply(ctx, msg.ChatID, helpHTML)
	case "/mis_recordatorios":
		s.handleList(ctx, msg)
	case "/cancelar":
		s.handleCancel(ctx, msg, fields[1:])
	default:
		s.reply(ctx, msg.ChatID, "Comando desconocido. /ayuda para ver lo que entiendo.")
	}
}

func (s *Service) handleFreeText(ctx context.Context, msg *transport.Message, text string) {
	loc := s.location()
	now := s.clk.Now().In(loc)

	parsed := parse.Parse(text, now, loc)
	if parsed == nil {
		s.reply(ctx, msg.ChatID, usageHTML)
		return
	}

	fireAt := parsed.FireAt()
	// A one-shot reminder resolved to the past means the user said a time
	// that already went by today: assume they mean tomorrow.
	if parsed.Pattern.IsZero() && !fireAt.After(now) {
		fireAt = fireAt.Add(24 * time.Hour)
	}

	r := remind.Reminder{
		ID:        uuid.NewString(),
		OwnerID:   msg.FromID,
		ChatID:    msg.ChatID,
		Message:   parsed.Message,
		FireAt:    fireAt,
		Pattern:   parsed.Pattern,
		Channel:   remind.ChannelTelegram,
		Active:    true,
		CreatedAt: now,
	}
	if err := s.store.InsertReminder(ctx, r); err != nil {
		s.log.Error("reminder insert failed", logx.Err(err))
		s.reply(ctx, msg.ChatID, "No pude guardar el recordatorio, intentá de nuevo en un rato.")
		return
	}

	s.log.Info("reminder created",
		logx.String("reminder", r.ID),
		logx.Time("fire_at", r.FireAt),
		logx.String("pattern", r.Pattern.String()))
	s.reply(ctx, msg.ChatID, confirmationHTML(r, loc))
}

func (s *Service) handleList(ctx context.Context, msg *transport.Message) {
	rs, err := s.store.ListActiveByOwner(ctx, msg.FromID, listLimit)
	if err != nil {
		s.log.Error("reminder listing failed", logx.Err(err))
		s.reply(ctx, msg.ChatID, "No pude leer tus recordatorios, intentá de nuevo.")
		return
	}
	s.reply(ctx, msg.ChatID, listHTML(rs, s.location()))
}

// handleCancel deactivates the n-th reminder of the sender's current listing.
// The index is resolved against a fresh listing, so it matches what
// /mis_recordatorios just showed.
func (s *Service) handleCancel(ctx context.Context, msg *transport.Message, args []string) {
	if len(args) != 1 {
		s.reply(ctx, msg.ChatID, "Uso: /cancelar &lt;número&gt; (el número de /mis_recordatorios)")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > listLimit {
		s.reply(ctx, msg.ChatID, "Uso: /cancelar &lt;número&gt; (el número de /mis_recordatorios)")
		return
	}

	rs, err := s.store.ListActiveByOwner(ctx, msg.FromID, listLimit)
	if err != nil {
		s.log.Error("reminder listing failed", logx.Err(err))
		s.reply(ctx, msg.ChatID, "No pude leer tus recordatorios, intentá de nuevo.")
		return
	}
	if n > len(rs) {
		s.reply(ctx, msg.ChatID, "No existe ese número en tu lista.")
		return
	}

	r := rs[n-1]
	ok, err := s.store.DeactivateOwned(ctx, r.ID, msg.FromID)
	if err != nil {
		s.log.Error("reminder cancel failed", logx.String("reminder", r.ID), logx.Err(err))
		s.reply(ctx, msg.ChatID, "No pude cancelar ese recordatorio, intentá de nuevo.")
		return
	}
	if !ok {
		// Fired or cancelled between the listing and this command.
		s.reply(ctx, msg.ChatID, "Ese recordatorio ya no está activo.")
		return
	}

	s.log.Info("reminder cancelled", logx.String("reminder", r.ID))
	s.reply(ctx, msg.ChatID, "🗑 Listo, cancelé: "+htmlEscaper.Replace(r.Message))
}

func (s *Service) reply(ctx context.Context, chatID int64, html string) {
	if err := s.chat.Send(ctx, chatID, html); err != nil {
		s.log.Warn("reply send failed", logx.Err(err))
	}
}
