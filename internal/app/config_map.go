package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"marquee/internal/config"
	"marquee/internal/observability/statsview"
	"marquee/internal/storage"
	"marquee/internal/task/engine"
	"marquee/internal/task/scheduler"
	"marquee/internal/transport/httpapi"
	"marquee/internal/transport/telegram"
	"marquee/internal/tune"
	logx "marquee/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	delay, err := config.ParseDurationOrDefault("animation.frame_delay", cfg.Animation.FrameDelay, 24*time.Millisecond)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		MaxQueue:    cfg.Engine.MaxQueue,
		HistorySize: cfg.Engine.HistorySize,
		FrameDelay:  delay,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	timeout, err := config.ParseDurationField("scheduler.timeout", cfg.Scheduler.Timeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: strings.TrimSpace(cfg.Scheduler.Timezone),
		Timeout:  timeout,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	h := cfg.HTTP
	rt, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	// pprof profiles run for 30s by default.
	wt, err := config.ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 60*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	it, err := config.ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Enabled:      h.Enabled,
		Addr:         strings.TrimSpace(h.Addr),
		Token:        strings.TrimSpace(h.Token),
		RatePerSec:   h.RatePerSec,
		Burst:        h.Burst,
		Pprof:        h.Pprof,
		PNGScale:     h.PNGScale,
		ReadTimeout:  rt,
		WriteTimeout: wt,
		IdleTimeout:  it,
	}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, bool, error) {
	t := cfg.Telegram
	if t == nil || !t.Enabled {
		return telegram.Config{}, false, nil
	}
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", t.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, false, err
	}
	return telegram.Config{
		Token:        strings.TrimSpace(t.Token),
		OwnerUserIDs: append([]int64(nil), t.OwnerUserIDs...),
		PollTimeout:  poll,
	}, true, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path, Keep: sc.Keep}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, Keep: sc.Keep}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapStatsviewConfig(cfg *config.Config) (statsview.Config, bool, error) {
	s := cfg.Statsview
	if s == nil || !s.Enabled {
		return statsview.Config{}, false, nil
	}
	every, err := config.ParseDurationField("statsview.interval", s.Interval)
	if err != nil {
		return statsview.Config{}, false, err
	}
	return statsview.Config{Addr: strings.TrimSpace(s.Addr), Interval: every}, true, nil
}

// applyTunables copies the animation section into the live tunables. Fields
// left out of the config keep their current value.
func applyTunables(set *tune.Set, a config.AnimationConfig) error {
	var errs []error
	put := func(name string, v any) {
		if err := set.SetValue(name, v); err != nil {
			errs = append(errs, err)
		}
	}
	if strings.TrimSpace(a.FrameDelay) != "" {
		d, err := config.ParseDurationField("animation.frame_delay", a.FrameDelay)
		if err != nil {
			return err
		}
		put(tune.FrameDelayMs, max(1, int(d/time.Millisecond)))
	}
	if a.HoldEnable != nil {
		put(tune.HoldEnable, *a.HoldEnable)
	}
	if a.HoldTime > 0 {
		put(tune.HoldTime, a.HoldTime)
	}
	if a.RainbowTimerThreshold > 0 {
		put(tune.RainbowTimerThreshold, a.RainbowTimerThreshold)
	}
	if a.RainbowFrameMultiplier > 0 {
		put(tune.RainbowFrameMultiplier, a.RainbowFrameMultiplier)
	}
	if a.LateFrameEnable != nil {
		put(tune.LateFrameEnable, *a.LateFrameEnable)
	}
	if a.ClockRainbowHoldTime > 0 {
		put(tune.ClockRainbowHoldTime, a.ClockRainbowHoldTime)
	}
	if a.Brightness != nil {
		put(tune.Brightness, *a.Brightness)
	}
	return errors.Join(errs...)
}

func allowTune(a config.AnimationConfig) bool { return a.AllowTune == nil || *a.AllowTune }
