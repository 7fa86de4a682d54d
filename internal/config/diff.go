package config

import (
	"reflect"
	"strings"

	logx "marquee/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the changed sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)
	var restart []string

	if oldCfg.Display != newCfg.Display {
		changed = append(changed, "display")
		restart = append(restart, "display")
		attrs = append(attrs,
			logx.Int("display.width", newCfg.Display.Width),
			logx.Int("display.height", newCfg.Display.Height),
			logx.String("display.sink", newCfg.Display.Sink),
		)
	}

	if !reflect.DeepEqual(oldCfg.Animation, newCfg.Animation) {
		changed = append(changed, "animation")
		attrs = append(attrs,
			logx.String("animation.frame_delay", strings.TrimSpace(newCfg.Animation.FrameDelay)),
			logx.String("animation.startup", strings.TrimSpace(newCfg.Animation.Startup)),
		)
	}

	if oldCfg.Engine != newCfg.Engine || oldCfg.Inbox != newCfg.Inbox {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.max_queue", newCfg.Engine.MaxQueue),
			logx.Int("engine.history_size", newCfg.Engine.HistorySize),
			logx.Int("inbox.max", newCfg.Inbox.Max),
		)
	}

	if oldCfg.Feed != newCfg.Feed {
		changed = append(changed, "feed")
		attrs = append(attrs,
			logx.Bool("feed.url_set", strings.TrimSpace(newCfg.Feed.URL) != ""),
			logx.String("feed.retry", strings.TrimSpace(newCfg.Feed.Retry)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.schedules", len(newCfg.Scheduler.Schedules)),
		)
	}

	// HTTP (never log token)
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
			logx.Float64("http.rate_per_sec", newCfg.HTTP.RatePerSec),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Telegram (never log token)
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		restart = append(restart, "telegram")
		if t := newCfg.Telegram; t != nil {
			attrs = append(attrs,
				logx.Bool("telegram.enabled", t.Enabled),
				logx.String("telegram.poll_timeout", strings.TrimSpace(t.PollTimeout)),
				logx.Int("telegram.owner_count", len(t.OwnerUserIDs)),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs, logx.String("storage.driver", s.Driver))
		}
	}

	if !reflect.DeepEqual(oldCfg.Statsview, newCfg.Statsview) {
		changed = append(changed, "statsview")
		restart = append(restart, "statsview")
	}

	return changed, attrs, restart
}
