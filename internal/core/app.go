// Package core wires configuration, storage, transports and services into
// one application with a start/stop lifecycle.
package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remibot/internal/bot"
	"remibot/internal/config"
	"remibot/internal/dispatch"
	"remibot/internal/storage"
	"remibot/internal/transport"
	"remibot/internal/transport/email"
	"remibot/internal/transport/telegram"
	logx "remibot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	adapter *telegram.Adapter
	mail    *email.Sender
	disp    *dispatch.Service
	bot     *bot.Service

	updates chan transport.Update

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return validateConfig(c)
	})

	store, err := storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	tgCfg, err := mapTelegramConfig(cfg)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	adapter, err := telegram.New(tgCfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}

	mail := email.New(mapEmailConfig(cfg), log.With(logx.String("comp", "email")))

	dispCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	disp := dispatch.New(dispCfg, dispatch.Deps{
		Store: store,
		Chat:  adapter,
		Mail:  mail,
	}, log.With(logx.String("comp", "dispatch")))

	updates := make(chan transport.Update, 256)
	botSvc := bot.New(bot.Config{Timezone: cfg.Dispatcher.Timezone}, bot.Deps{
		Store:   store,
		Chat:    adapter,
		Updates: updates,
	}, log.With(logx.String("comp", "bot")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: adapter,
		mail:    mail,
		disp:    disp,
		bot:     botSvc,
		updates: updates,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}
	a.bot.Start(runCtx)
	a.disp.Start(runCtx)

	// Hot reload fan-out: the watcher publishes validated configs, this loop
	// applies them to the live services.
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("config watcher exited", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	prevDispEnabled := a.cfgm.Get().Dispatcher.IsEnabled()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
					continue
				default:
				}
				break
			}

			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.mail.Apply(mapEmailConfig(cfg))
			a.bot.Apply(bot.Config{Timezone: cfg.Dispatcher.Timezone})

			dispCfg, err := mapDispatchConfig(cfg)
			if err != nil {
				// The validator should have rejected this; keep the old config.
				a.log.Warn("invalid dispatcher config, keeping previous", logx.Err(err))
			} else {
				a.disp.Apply(dispCfg)
				if prevDispEnabled && !dispCfg.Enabled {
					a.log.Info("dispatcher disabled via config")
					stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
					_ = a.disp.Stop(stopCtx)
					cancel()
				} else if !prevDispEnabled && dispCfg.Enabled {
					a.log.Info("dispatcher enabled via config")
					a.disp.Start(ctx)
				}
				prevDispEnabled = dispCfg.Enabled
			}

			a.log.Info("config reloaded")
		}
	}
}

// Stop shuts the services down in reverse start order. Each step gets its own
// bound so one stuck component cannot stall the whole shutdown.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.runCancel != nil {
		a.runCancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("dispatch", 5*time.Second, a.disp.Stop)
	step("bot", 2*time.Second, a.bot.Stop)
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("watchers", 2*time.Second, func(c context.Context) error {
		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

// validateConfig rejects configs that must not be committed, at load time and
// again on every hot reload.
func validateConfig(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("dispatcher.interval", cfg.Dispatcher.Interval); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("dispatcher.delivery_retention", cfg.Dispatcher.DeliveryRetention); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Dispatcher.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("dispatcher.timezone: invalid %q: %w", tz, err)
		}
	}
	if spec := strings.TrimSpace(cfg.Dispatcher.PruneSchedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("dispatcher.prune_schedule: invalid %q: %w", spec, err)
		}
	}
	if cfg.Email.Enabled {
		if strings.TrimSpace(cfg.Email.Host) == "" || strings.TrimSpace(cfg.Email.Username) == "" {
			return fmt.Errorf("email.host and email.username are required when email is enabled")
		}
	}
	return nil
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	return storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, nil
}

func mapEmailConfig(cfg *config.Config) email.Config {
	return email.Config{
		Enabled:  cfg.Email.Enabled,
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		FromName: cfg.Email.FromName,
		ReplyTo:  cfg.Email.ReplyTo,
		UseSSL:   cfg.Email.UseSSL,
	}
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	interval, err := config.ParseDurationOrDefault("dispatcher.interval", cfg.Dispatcher.Interval, 60*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	retention, err := config.ParseDurationOrDefault("dispatcher.delivery_retention", cfg.Dispatcher.DeliveryRetention, 30*24*time.Hour)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Enabled:           cfg.Dispatcher.IsEnabled(),
		Interval:          interval,
		Timezone:          cfg.Dispatcher.Timezone,
		PruneSchedule:     cfg.Dispatcher.PruneSchedule,
		DeliveryRetention: retention,
	}, nil
}
