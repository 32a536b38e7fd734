// Package app wires config, storage, the scheduler and its surfaces into one
// process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"cronkeep/internal/adapters/telegram"
	"cronkeep/internal/api"
	"cronkeep/internal/clock"
	"cronkeep/internal/config"
	"cronkeep/internal/eventbus"
	"cronkeep/internal/notifier"
	rtsup "cronkeep/internal/runtime/supervisor"
	"cronkeep/internal/storage"
	"cronkeep/internal/task/dispatch"
	"cronkeep/internal/task/scheduler"
	"cronkeep/internal/tools"
	logx "cronkeep/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.Store
	sched  *scheduler.Scheduler
	driver *scheduler.Driver
	tools  *tools.Registry
	api    *api.Server
	notif  *notifier.Service

	apiEnabled bool
	started    time.Time
}

// New loads the config at cfgPath and builds every component without
// starting background work. Commands that only call tools use New and Close.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg))
	a := &App{cfgm: cfgm, logs: logs, log: log.With(logx.String("comp", "app")), bus: eventbus.New()}
	if err := a.build(cfg, log); err != nil {
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	sc, err := mapStorage(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(sc, clock.Real{}, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	dc, err := mapDispatch(cfg)
	if err != nil {
		return a.closeOnErr(err)
	}
	disp, err := dispatch.New(dc, clock.Real{}, log)
	if err != nil {
		return a.closeOnErr(fmt.Errorf("dispatcher: %w", err))
	}

	opt, _ := mapSchedulerOptions(cfg)
	a.sched = scheduler.New(store, disp, clock.Real{}, log, a.bus, opt)
	drv, _ := mapDriver(cfg)
	a.driver = scheduler.NewDriver(a.sched, drv, log)

	reg, err := tools.NewRegistry(tools.Builtins(store, a.sched, a.bus)...)
	if err != nil {
		return a.closeOnErr(err)
	}
	a.tools = reg

	ac, _ := mapAPI(cfg)
	a.apiEnabled = cfg.API.Enabled
	a.api = api.New(ac, api.Deps{Store: store, Tools: reg, Scheduler: a.sched, Driver: a.driver, Started: time.Now()}, log)

	var sender notifier.Sender
	if cfg.Telegram.Enabled() {
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID})
		if err != nil {
			return a.closeOnErr(fmt.Errorf("telegram: %w", err))
		}
		sender = tg
	}
	a.notif = notifier.New(mapNotifier(cfg), sender, log, a.bus)
	if sender != nil {
		a.logs.SetNotifier(a.notif)
	}

	a.log.Info("app built",
		logx.String("storage", sc.Driver),
		logx.String("dispatcher", dc.Kind),
		logx.Bool("scheduler", cfg.Scheduler.Enabled),
		logx.Bool("api", cfg.API.Enabled),
		logx.Bool("telegram", sender != nil),
	)
	return nil
}

func (a *App) closeOnErr(err error) error {
	_ = a.store.Close()
	return err
}

func (a *App) Tools() *tools.Registry { return a.tools }

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app stops on its own (a component failed for good).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the driver, the HTTP API, the notifier and config hot
// reload, then reports readiness to systemd.
func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	runCtx := a.sup.Context()
	a.notif.Start(runCtx)
	if a.apiEnabled {
		if err := a.api.Start(runCtx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}
	if err := a.driver.Start(runCtx); err != nil {
		return fmt.Errorf("driver: %w", err)
	}

	events, unsubscribe := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsubscribe()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })
	a.sup.Go("systemd.watchdog", a.watchdogLoop)

	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)

	a.logs.Apply(mapLogging(next))
	if opt, err := mapSchedulerOptions(next); err == nil {
		a.sched.Apply(opt)
	}
	if drv, err := mapDriver(next); err == nil {
		if err := a.driver.Apply(ctx, drv); err != nil {
			a.log.Warn("driver config not applied", logx.Err(err))
		}
	}
	a.notif.Apply(mapNotifier(next))
	if prev.Telegram.Token != next.Telegram.Token || prev.Telegram.ChatID != next.Telegram.ChatID || prev.Telegram.ThreadID != next.Telegram.ThreadID {
		restart = true
	}
	if restart {
		a.log.Warn("some config changes need a restart to take effect", logx.String("changed", strings.Join(sections, ",")))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigApplied, Time: time.Now(), Data: sections})
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in reverse start order. Each step is bounded so
// one slow component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	step := func(name string, limit time.Duration, fn func(context.Context)) {
		c, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		start := time.Now()
		fn(c)
		if c.Err() != nil {
			a.log.Warn("stop step deadline reached", logx.String("name", name), logx.Duration("took", time.Since(start)))
		}
	}

	step("driver", 10*time.Second, a.driver.Stop)
	step("api", 5*time.Second, a.api.Stop)
	step("notifier", 3*time.Second, a.notif.Stop)
	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) { _ = a.sup.Wait(c) })

	a.log.Info("stopped", logx.Duration("uptime", time.Since(a.started).Round(time.Second)))
	return a.Close()
}

// Close releases the store and the log sinks.
func (a *App) Close() error {
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
