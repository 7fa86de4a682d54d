package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"marquee/internal/task/scheduler"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// startupActions take no arguments, so they can run at startup.
var startupActions = []string{"idle", "clock", "feed", "test", "stop"}

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if cfg.Display.Width < 0 || cfg.Display.Width > 1024 || cfg.Display.Height < 0 || cfg.Display.Height > 1024 {
		add(fmt.Errorf("display: size %dx%d out of range", cfg.Display.Width, cfg.Display.Height))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Display.Sink)) {
	case "", "auto", "terminal", "none":
	default:
		add(fmt.Errorf("display.sink: unknown sink %q", cfg.Display.Sink))
	}

	a := cfg.Animation
	dur("animation.frame_delay", a.FrameDelay)
	if a.Brightness != nil && (*a.Brightness < 0 || *a.Brightness > 1) {
		add(fmt.Errorf("animation.brightness: %v not in [0,1]", *a.Brightness))
	}
	if a.HoldTime < 0 || a.RainbowTimerThreshold < 0 || a.RainbowFrameMultiplier < 0 || a.ClockRainbowHoldTime < 0 {
		add(errors.New("animation: counts must be >= 0"))
	}
	if s := strings.TrimSpace(a.Startup); s != "" && !slices.Contains(startupActions, s) {
		add(fmt.Errorf("animation.startup: %q is not one of %s", s, strings.Join(startupActions, ", ")))
	}

	if cfg.Engine.MaxQueue < 0 || cfg.Engine.HistorySize < 0 || cfg.Inbox.Max < 0 {
		add(errors.New("engine/inbox: sizes must be >= 0"))
	}

	dur("feed.timeout", cfg.Feed.Timeout)
	dur("feed.retry", cfg.Feed.Retry)

	dur("scheduler.timeout", cfg.Scheduler.Timeout)
	seen := map[string]bool{}
	for i, e := range cfg.Scheduler.Schedules {
		add(validateSchedule(i, e, seen))
	}

	h := cfg.HTTP
	if h.RatePerSec < 0 || h.Burst < 0 || h.PNGScale < 0 {
		add(errors.New("http: rate_per_sec, burst and png_scale must be >= 0"))
	}
	dur("http.read_timeout", h.ReadTimeout)
	dur("http.write_timeout", h.WriteTimeout)
	dur("http.idle_timeout", h.IdleTimeout)

	if t := cfg.Telegram; t != nil && t.Enabled {
		if strings.TrimSpace(t.Token) == "" {
			add(errors.New("telegram.token: required when enabled"))
		}
		if len(t.OwnerUserIDs) == 0 {
			add(errors.New("telegram.owner_user_ids: at least one owner required"))
		}
		dur("telegram.poll_timeout", t.PollTimeout)
	}
	if s := cfg.Storage; s != nil {
		dur("storage.busy_timeout", s.BusyTimeout)
	}
	if s := cfg.Statsview; s != nil {
		dur("statsview.interval", s.Interval)
	}

	return errors.Join(errs...)
}

func validateSchedule(i int, e ScheduleEntry, seen map[string]bool) error {
	name := strings.TrimSpace(e.Name)
	path := fmt.Sprintf("scheduler.schedules[%d]", i)
	if name == "" {
		return fmt.Errorf("%s.name: required", path)
	}
	path = fmt.Sprintf("scheduler.schedules[%s]", name)
	if seen[name] {
		return fmt.Errorf("%s: duplicate name", path)
	}
	seen[name] = true
	if _, err := scheduler.ParseSchedule(e.Schedule); err != nil {
		return fmt.Errorf("%s.schedule: %w", path, err)
	}
	if !slices.Contains(Actions, e.Action) {
		return fmt.Errorf("%s.action: unknown action %q", path, e.Action)
	}
	switch e.Action {
	case "countdown":
		if e.Seconds <= 0 {
			return fmt.Errorf("%s.seconds: must be > 0", path)
		}
	case "message":
		if strings.TrimSpace(e.Text) == "" {
			return fmt.Errorf("%s.text: required", path)
		}
	}
	return nil
}
