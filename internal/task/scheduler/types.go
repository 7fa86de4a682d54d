package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"marquee/internal/eventbus"
	logx "marquee/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Enabled  bool
	Timezone string        // IANA TZ, e.g. "Europe/Berlin"
	Timeout  time.Duration // per job; 0 means 10s
}

// Job is what a schedule fires.
type Job func(ctx context.Context) error

type scheduleDef struct {
	id            string
	name          string
	spec          string // cron spec or @every
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration // initial random delay for @every schedules

	// guarded by Service.statMu; jobs must never take Service.mu, Stop
	// waits for them while holding it.
	runs  uint64
	fails uint64
	last  error
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	timeoutNs atomic.Int64
	statMu    sync.Mutex

	// Job error throttling: key is schedule name.
	errMu       sync.Mutex
	lastErrWarn map[string]time.Time
}

type ScheduleInfo struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Spec      string        `json:"spec"`
	Spread    time.Duration `json:"spread,omitempty"`
	Next      time.Time     `json:"next"`
	Prev      time.Time     `json:"prev"`
	Runs      uint64        `json:"runs"`
	Fails     uint64        `json:"fails"`
	LastError string        `json:"last_error,omitempty"`
}

type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}
