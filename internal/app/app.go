// Package app wires the display, animation scheduler, triggers and
// transports together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"marquee/internal/animation"
	"marquee/internal/config"
	"marquee/internal/display"
	"marquee/internal/eventbus"
	"marquee/internal/inbox"
	"marquee/internal/observability/statsview"
	rtsup "marquee/internal/runtime/supervisor"
	"marquee/internal/storage"
	"marquee/internal/task/engine"
	"marquee/internal/task/scheduler"
	"marquee/internal/transport/httpapi"
	"marquee/internal/transport/telegram"
	"marquee/internal/trigger"
	"marquee/internal/tune"
	logx "marquee/pkg/logx"
	"marquee/pkg/systemd"
)

type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopRestart    StopReason = "restart"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	canvas *display.Canvas
	tune   *tune.Set
	inbox  *inbox.Inbox
	feed   *feedSource
	deps   *animation.Deps

	engine *engine.Service
	sched  *scheduler.Service
	ctl    *trigger.Controller
	http   *httpapi.Server
	bot    *telegram.Bot
	stats  *statsview.Service

	startup string
	restart atomic.Bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	sink, err := display.NewSink(cfg.Display.Sink)
	if err != nil {
		return nil, err
	}
	copts := []display.Option{display.WithLogger(log.With(logx.String("comp", "display")))}
	if sink != nil {
		copts = append(copts, display.WithSinks(sink))
	}
	canvas := display.New(cfg.Display.Width, cfg.Display.Height, copts...)

	tunables := tune.New()
	if err := applyTunables(tunables, cfg.Animation); err != nil {
		return nil, err
	}
	canvas.SetBrightness(tunables.Float(tune.Brightness))
	tunables.OnChange(func(name string, v any) {
		if name == tune.Brightness {
			if b, ok := v.(float64); ok {
				canvas.SetBrightness(b)
			}
		}
	})

	feedTimeout, err := config.ParseDurationField("feed.timeout", cfg.Feed.Timeout)
	if err != nil {
		return nil, err
	}
	feedRetry, err := config.ParseDurationField("feed.retry", cfg.Feed.Retry)
	if err != nil {
		return nil, err
	}
	feedLog := log.With(logx.String("comp", "feed"))
	missions := newFeedSource(cfg.Feed.URL, feedTimeout, feedLog)

	box := inbox.New(cfg.Inbox.Max)
	deps := &animation.Deps{
		Canvas:    canvas,
		Tune:      tunables,
		Inbox:     box,
		Missions:  missions,
		Log:       log.With(logx.String("comp", "animation")),
		FeedRetry: feedRetry,
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, log.With(logx.String("comp", "engine")), bus,
		engine.WithPeriod(tunables.FrameDelay),
		engine.WithLateFrame(func(*engine.Frame) {
			if tunables.Bool(tune.LateFrameEnable) {
				canvas.Border(display.Red)
				canvas.Update()
			}
		}),
	)
	deps.Scheduler = eng

	tops := []trigger.Option{
		trigger.WithBus(bus),
		trigger.WithLogger(log.With(logx.String("comp", "trigger"))),
		trigger.WithTuning(allowTune(cfg.Animation)),
	}
	if store != nil {
		tops = append(tops, trigger.WithStore(store))
	}
	ctl := trigger.New(deps, eng, tops...)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")), bus)

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		canvas:  canvas,
		tune:    tunables,
		inbox:   box,
		feed:    missions,
		deps:    deps,
		engine:  eng,
		sched:   sched,
		ctl:     ctl,
		startup: strings.TrimSpace(cfg.Animation.Startup),
	}

	httpCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.http = httpapi.New(httpCfg, ctl,
		httpapi.WithFrames(canvas),
		httpapi.WithRestart(a.Restart),
		httpapi.WithLogger(log.With(logx.String("comp", "http"))),
	)

	if tc, enabled, err := mapTelegramConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		bot, err := telegram.New(tc, ctl, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.bot = bot
	}

	if sv, enabled, err := mapStatsviewConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		a.stats = statsview.New(sv, log.With(logx.String("comp", "statsview")))
	}

	return a, nil
}

// Controller is the trigger entry point shared by every transport.
func (a *App) Controller() *trigger.Controller { return a.ctl }

// Done is closed when the app supervisor context is cancelled (fatal error,
// restart request or Stop).
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

// Restart asks the process to restart itself; see RestartRequested.
func (a *App) Restart() {
	a.log.Info("restart requested")
	a.restart.Store(true)
	if a.sup != nil {
		a.sup.Cancel()
	}
}

// RestartRequested reports whether the app stopped to be restarted.
func (a *App) RestartRequested() bool { return a.restart.Load() }

func (a *App) validate(_ context.Context, cfg *config.Config) error {
	_, err1 := mapEngineConfig(cfg)
	_, err2 := mapSchedulerConfig(cfg)
	_, err3 := mapHTTPConfig(cfg)
	_, _, err4 := mapTelegramConfig(cfg)
	_, _, err5 := mapStorageConfig(cfg)
	_, _, err6 := mapStatsviewConfig(cfg)
	err7 := applyTunables(tune.New(), cfg.Animation)
	return errors.Join(err1, err2, err3, err4, err5, err6, err7)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	a.engine.Start(c)

	startup := a.startup
	if startup == "" {
		startup = "idle"
	}
	if err := runAction(c, a.ctl, trigger.Startup, config.ScheduleEntry{Action: startup}, time.Now()); err != nil {
		a.log.Warn("startup action failed", logx.String("action", startup), logx.Err(err))
	}

	cfg := a.cfgm.Get()
	applySchedules(a.sched, a.ctl, cfg.Scheduler.Schedules, time.Now, a.log)
	if a.sched.Enabled() {
		a.sched.Start(c)
	}

	if hc, err := mapHTTPConfig(cfg); err == nil {
		a.http.Reconfigure(c, hc)
	}

	if a.bot != nil {
		if err := a.bot.Start(c); err != nil {
			return err
		}
	}
	if a.stats != nil {
		a.stats.Start(a.sup)
	}

	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	var lastFrames atomic.Uint64
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, func() bool {
			// A running animation must be producing frames.
			n := a.canvas.Frames()
			prev := lastFrames.Swap(n)
			return n != prev || !a.engine.Snapshot().Running
		})
	})
	if _, err := systemd.Ready(); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	}

	a.log.Info("app started",
		logx.Int("width", a.canvas.Width()),
		logx.Int("height", a.canvas.Height()),
		logx.String("startup", startup),
		logx.Int("pid", os.Getpid()),
	)
	return nil
}

// logEvents logs bus traffic at debug level.
func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if a.log.Enabled(logx.LevelDebug) {
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	}
}

func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
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
			// Coalesce bursts: keep only the latest config in the channel.
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
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(next))

	if err := applyTunables(a.tune, next.Animation); err != nil {
		a.log.Warn("invalid animation config; keeping previous", logx.Err(err))
	}
	a.ctl.SetTuning(allowTune(next.Animation))

	if ec, err := mapEngineConfig(next); err == nil {
		a.engine.Apply(ec)
	}
	a.inbox.SetMax(next.Inbox.Max)

	// feed.retry is read by running animations and takes effect on restart.
	if next.Feed.URL != prev.Feed.URL || next.Feed.Timeout != prev.Feed.Timeout {
		timeout, _ := config.ParseDurationField("feed.timeout", next.Feed.Timeout)
		a.feed.set(next.Feed.URL, timeout, a.log.With(logx.String("comp", "feed")))
	}

	if sc, err := mapSchedulerConfig(next); err == nil {
		wasEnabled := a.sched.Enabled()
		a.sched.Apply(sc)
		applySchedules(a.sched, a.ctl, next.Scheduler.Schedules, time.Now, a.log)
		switch {
		case wasEnabled && !sc.Enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		case !wasEnabled && sc.Enabled:
			a.log.Info("scheduler enabled via config")
			a.sched.Start(c)
		}
	}

	if hc, err := mapHTTPConfig(next); err == nil {
		a.http.Reconfigure(c, hc)
	}

	if a.bus != nil {
		a.bus.Publish(eventbus.Event{Type: eventbus.ConfigApplied, Time: time.Now(), Data: sections})
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				max = min(max, time.Until(dl))
			}
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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("telegram", 2*time.Second, func(c context.Context) error {
		if a.bot != nil {
			return a.bot.Stop(c)
		}
		return nil
	})
	step("statsview", time.Second, func(context.Context) error {
		if a.stats != nil {
			a.stats.Stop()
		}
		return nil
	})
	step("engine", 2*time.Second, a.engine.Stop)
	step("display", time.Second, func(context.Context) error {
		a.canvas.Clear()
		a.canvas.Update()
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (config watch/reload, event log, etc.)
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
