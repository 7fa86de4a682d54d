package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file, no dependencies
//   - "sqlite": SQLite database file (build tag sqlite)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Keep        int           // entries retained for RecentAudit; 0 means 500
}

func (c Config) keep() int {
	if c.Keep <= 0 {
		return 500
	}
	return c.Keep
}

// AuditEntry records one trigger.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Source   string    `json:"source"` // http, telegram, schedule, startup
	Actor    string    `json:"actor,omitempty"`
	Action   string    `json:"action"`
	Target   string    `json:"target,omitempty"`
	Priority int       `json:"priority"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}
