package config

// Config is the daemon configuration, loaded from JSON or YAML.
//
// Sections marked "restart" are read once at startup; everything else is
// applied on hot reload.
type Config struct {
	Display   DisplayConfig   `json:"display"` // restart (size, sink)
	Animation AnimationConfig `json:"animation"`
	Engine    EngineConfig    `json:"engine"`
	Inbox     InboxConfig     `json:"inbox"`
	Feed      FeedConfig      `json:"feed"`
	Scheduler SchedulerConfig `json:"scheduler"`
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`

	Telegram  *TelegramConfig  `json:"telegram,omitempty"`  // restart
	Storage   *StorageConfig   `json:"storage,omitempty"`   // restart
	Statsview *StatsviewConfig `json:"statsview,omitempty"` // restart
}

// DisplayConfig describes the panel.
//
// Sink values: "auto" (terminal when stdout is a TTY), "terminal", "none".
type DisplayConfig struct {
	Width  int    `json:"width,omitempty"`  // default 53
	Height int    `json:"height,omitempty"` // default 11
	Sink   string `json:"sink,omitempty"`
}

// AnimationConfig seeds the live tunables. Values changed at runtime via
// /tune are overwritten by the next reload of this section.
type AnimationConfig struct {
	// FrameDelay is a Go duration string; default "24ms".
	FrameDelay             string   `json:"frame_delay,omitempty"`
	HoldEnable             *bool    `json:"hold_enable,omitempty"`
	HoldTime               int      `json:"hold_time,omitempty"`
	RainbowTimerThreshold  int      `json:"rainbow_timer_threshold,omitempty"`
	RainbowFrameMultiplier int      `json:"rainbow_frame_multiplier,omitempty"`
	LateFrameEnable        *bool    `json:"late_frame_enable,omitempty"`
	ClockRainbowHoldTime   int      `json:"clock_rainbow_hold_time,omitempty"`
	Brightness             *float64 `json:"brightness,omitempty"`

	// AllowTune enables the tune trigger; default true.
	AllowTune *bool `json:"allow_tune,omitempty"`

	// Startup is the action queued when the daemon starts; default "idle".
	Startup string `json:"startup,omitempty"`
}

// EngineConfig controls the animation scheduler.
type EngineConfig struct {
	MaxQueue    int `json:"max_queue,omitempty"`    // default 64
	HistorySize int `json:"history_size,omitempty"` // default 100
}

type InboxConfig struct {
	Max int `json:"max,omitempty"` // default 32
}

// FeedConfig points at the launch countdown feed.
type FeedConfig struct {
	URL     string `json:"url,omitempty"`
	Timeout string `json:"timeout,omitempty"` // default "8s"
	Retry   string `json:"retry,omitempty"`   // delay after a failed first fetch; default "10s"
}

// HTTPConfig controls the trigger API.
//
// Security:
//   - Prefer binding to localhost or a trusted LAN.
//   - If Token is set, every route but / requires it (Bearer or ?token=).
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8080"
	Token   string `json:"token,omitempty"`

	// RatePerSec and Burst limit trigger routes; 0 disables limiting.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`

	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`

	// PNGScale is the pixel size of /frame.png; default 8.
	PNGScale int `json:"png_scale,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls scheduled triggers.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
	// Timeout bounds one scheduled trigger; default "10s".
	Timeout   string          `json:"timeout,omitempty"`
	Schedules []ScheduleEntry `json:"schedules,omitempty"`
}

// ScheduleEntry fires Action on Schedule.
//
// Schedule accepts cron ("*/5 * * * *", "@hourly"), Go durations ("55m") or
// HH:MM intervals ("01:30"). Action is one of the Actions.
type ScheduleEntry struct {
	Name     string   `json:"name"`
	Schedule string   `json:"schedule"`
	Action   string   `json:"action"`
	Seconds  int      `json:"seconds,omitempty"` // countdown
	Text     string   `json:"text,omitempty"`    // message
	Effects  []string `json:"effects,omitempty"` // message
	Read     bool     `json:"read,omitempty"`    // message
}

// Actions a schedule (or the startup hook) may fire.
var Actions = []string{"idle", "clock", "countdown", "message", "feed", "stop", "clear_inbox", "read_inbox", "test"}

// StorageConfig controls the optional trigger audit log.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./marquee_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Keep        int    `json:"keep,omitempty"`
}

// StatsviewConfig serves the go-echarts runtime dashboard.
type StatsviewConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr,omitempty"`     // default "localhost:12600"
	Interval string `json:"interval,omitempty"` // sampling interval; default "2s"
}
