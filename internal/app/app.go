// Package app assembles the bot from config and runs it until stopped.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"drumbot/internal/announce"
	"drumbot/internal/commands"
	"drumbot/internal/config"
	"drumbot/internal/detector"
	"drumbot/internal/domain"
	"drumbot/internal/eventbus"
	"drumbot/internal/feed"
	"drumbot/internal/runtime/supervisor"
	"drumbot/internal/schedule"
	"drumbot/internal/storage"
	"drumbot/internal/task/scheduler"
	kit "drumbot/internal/transport"
	telegram "drumbot/internal/transport/telegram/adapter"
	"drumbot/internal/transport/telegram/router"
	"drumbot/internal/wizard"
	logx "drumbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	feed    *feed.Client
	disp    *announce.Dispatcher
	sched   *scheduler.Service
	coord   *schedule.Coordinator
	det     *detector.Detector
	wiz     *wizard.Wizard
	router  *router.Router

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	config.LoadDotEnv(cfgPath)
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(mapTelegramConfig(cfg), bootLog)
	if err != nil {
		return nil, err
	}

	// Start with the Telegram sink off so Apply does not warn about a
	// missing target, then enable it once the target is set.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(cfg.GroupLogID(), cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	sc := mapStorageConfig(cfg)
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	fc, err := feed.New(mapFeedConfig(cfg), log.With(logx.String("comp", "feed")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	sched := scheduler.New(scheduler.Config{Location: cfg.Location()}, log.With(logx.String("comp", "scheduler")))
	disp := announce.New(mapAnnounceConfig(cfg), fc, store, ad, log.With(logx.String("comp", "announce")))
	coord := schedule.New(sched, store, disp,
		config.Dur(cfg.Scheduler.PostTimeout, time.Minute), log.With(logx.String("comp", "daily")))

	detLog := log.With(logx.String("comp", "detector"))
	det, err := detector.New(mapDetectorConfig(cfg), fc, sched, func(ctx context.Context, tr domain.Transition) {
		bus.Publish(eventbus.Event{Type: eventbus.ShowDetected, Time: tr.DetectedAt, Data: tr.Track})
		rep, err := disp.Broadcast(ctx, tr)
		if err != nil {
			detLog.Warn("broadcast aborted", logx.String("file", tr.Track.FilePath), logx.Err(err))
			return
		}
		bus.Publish(eventbus.Event{Type: eventbus.BroadcastDone, Data: rep})
		detLog.Info("show announced",
			logx.String("title", tr.Track.Title),
			logx.Int("considered", rep.Considered),
			logx.Int("sent", rep.Sent),
			logx.Int("failed", rep.Failed),
		)
	}, detLog)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	wiz := wizard.New(wizard.Deps{Chat: ad, Store: store, Timers: coord, Poster: disp},
		log.With(logx.String("comp", "wizard")))

	rt := router.New(log.With(logx.String("comp", "router")), ad, router.Options{})
	commands.New(commands.Deps{Wizard: wiz, Store: store, Timers: coord, Announcer: disp, Bus: bus},
		log.With(logx.String("comp", "commands"))).Install(rt)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		feed:    fc,
		disp:    disp,
		sched:   sched,
		coord:   coord,
		det:     det,
		wiz:     wiz,
		router:  rt,
		updates: make(chan kit.Update, 256),
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
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := feed.New(mapFeedConfig(cfg), logx.Nop()); err != nil {
			return fmt.Errorf("feed: %w", err)
		}
		return nil
	})

	if err := a.disp.LoadDedup(ctx); err != nil {
		a.log.Warn("announced markers not loaded", logx.Err(err))
	}
	n, err := a.coord.Load(ctx)
	if err != nil {
		return fmt.Errorf("load daily timers: %w", err)
	}
	a.log.Info("daily timers loaded", logx.Int("count", n))

	a.sched.Start(a.sup.Context())
	if err := a.det.Start(); err != nil {
		return err
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.router.PublishMenu(ctx)
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.startEventLog()
	a.startConfigReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sdNotify(a.log, "READY=1")
	a.log.Info("app started")
	return nil
}

// startEventLog writes bus events to the debug log.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})
}

// startConfigReload applies logging changes live. Other sections are only
// reported; they take effect after a restart.
func (a *App) startConfigReload() {
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
				// keep only the latest of a burst
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.SetTelegramTarget(next.GroupLogID(), next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	if !config.OnlyLogging(sections) {
		a.log.Warn("config changed outside logging; restart required for it to take effect", fields...)
		return
	}
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, "STOPPING=1")
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// cancel first so background loops start unwinding
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
			max = time.Until(dl)
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
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
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("detector", time.Second, func(context.Context) error { a.det.Stop(); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
