// Package app wires the bot together: config, logging, storage, the
// telegram transport, the dispatch pipeline and the housekeeping jobs.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quipbot/internal/audit"
	"quipbot/internal/bot"
	"quipbot/internal/eventbus"
	"quipbot/internal/maintenance"
	"quipbot/internal/storage"
	kit "quipbot/internal/transport"
	telegram "quipbot/internal/transport/telegram"
	logx "quipbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *Manager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	responder *bot.Responder
	handler   *bot.Handler
	dispatch  *bot.Dispatcher
	recorder  *audit.Recorder
	maint     *maintenance.Service

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New() applies the config immediately, and Apply() warns when
	// Telegram logging is enabled without a target. Bootstrap with the sink
	// disabled, set the target, then apply the real config.
	baseLogCfg := mapLogConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	logSvc.SetTelegramTarget(cfg.Log.Telegram.ChatID)
	logSvc.Apply(mapLogConfig(cfg))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	responder := bot.NewResponder(ad, log, cfg.Bot.ReplyRatePerSec, cfg.Bot.ReplyBurst)
	handler := bot.NewHandler(store, responder, bus, log, cfg.Telegram.OwnerUserIDs)

	botOpts, err := mapBotOptions(cfg)
	if err != nil {
		return nil, err
	}
	dispatch := bot.NewDispatcher(handler, responder, log, botOpts)

	recorder := audit.NewRecorder(store, log)

	mcfg, err := mapMaintenanceConfig(cfg)
	if err != nil {
		return nil, err
	}
	maint := maintenance.New(mcfg, store, responder, log)

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		responder: responder,
		handler:   handler,
		dispatch:  dispatch,
		recorder:  recorder,
		maint:     maint,
		updates:   make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish so a bad
	// edit never reaches the running components.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required")
		}
		if _, err := parseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if cfg.Bot.ReplyRatePerSec < 0 {
			return fmt.Errorf("bot.reply_rate_per_sec must be >= 0")
		}
		if cfg.Bot.ReplyBurst < 0 {
			return fmt.Errorf("bot.reply_burst must be >= 0")
		}
		if _, err := mapBotOptions(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapMaintenanceConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	// Persist command events published by the handler.
	auditSub := a.bus.Subscribe(128)
	a.sup.Go0("audit.record", func(c context.Context) {
		defer auditSub.Close()
		a.recorder.Run(c, auditSub)
	})

	// Debug feed of everything crossing the bus.
	busSub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer busSub.Close()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-busSub.C:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if err := a.maint.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.dispatch.DispatchLoop(c, a.updates)
	})

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.startWatchdog()
	notifyReady(a.log)
	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated config into the running components. The
// transport, store and worker pool are built once at startup; changes there
// are surfaced as restart-required warnings instead of being half-applied.
func (a *App) applyConfig(prev, next *Config) {
	if prev == nil {
		prev = &Config{}
	}

	sections, attrs := SummarizeConfigChange(prev, next)
	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Debug("config change summary", fields...)
	} else {
		a.log.Debug("config reload received, but no effective changes detected")
	}

	// The diff never logs the token value, so compare it here.
	if prev.Telegram.Token != next.Telegram.Token ||
		strings.TrimSpace(prev.Telegram.PollTimeout) != strings.TrimSpace(next.Telegram.PollTimeout) {
		a.log.Warn("telegram transport config changed; restart required for changes to take effect")
	}
	for _, s := range sections {
		switch s {
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		case "bot":
			a.log.Warn("bot pipeline config changed; restart required for changes to take effect")
		}
	}

	// Log target first so Apply() doesn't warn when Telegram logging is on.
	a.logs.SetTelegramTarget(next.Log.Telegram.ChatID)
	a.logs.Apply(mapLogConfig(next))

	// Owner list gates the management commands; applies to the next message.
	a.handler.SetOwners(next.Telegram.OwnerUserIDs)

	if mcfg, err := mapMaintenanceConfig(next); err != nil {
		a.log.Warn("invalid maintenance config; keeping previous", logx.Any("err", err))
	} else {
		a.maint.Apply(mcfg)
	}

	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifyStopping(a.log)

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it
			// doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	step("maintenance", 2*time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })

	// Dispatcher workers may still be draining jobs that touch storage, so
	// wait for supervised goroutines before closing the store.
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
