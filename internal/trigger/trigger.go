// Package trigger maps external requests to animations and priorities.
//
// HTTP handlers, the Telegram bot and schedules all go through a Controller,
// so every transport queues the same animation at the same priority for the
// same request. Each call is audited when a store is configured.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"marquee/internal/animation"
	"marquee/internal/eventbus"
	"marquee/internal/inbox"
	"marquee/internal/storage"
	"marquee/internal/task/engine"
	"marquee/internal/tune"
	logx "marquee/pkg/logx"
)

var (
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMessageTooLong = fmt.Errorf("message text is longer than %d characters", MaxMessageLen)
	ErrTuneDisabled   = errors.New("tuning is disabled")
)

// MaxMessageLen caps message text so a scroll stays within the canvas
// coordinate range.
const MaxMessageLen = 1024

// Source identifies who fired a trigger.
type Source struct {
	Kind  string // http, telegram, schedule, startup
	Actor string
}

var Startup = Source{Kind: "startup"}

// Engine is the part of the scheduler the controller needs.
type Engine interface {
	Enqueue(t engine.Task, p engine.Priority) error
	Snapshot() engine.Snapshot
}

type Controller struct {
	deps  *animation.Deps
	eng   Engine
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time

	tuneEnabled atomic.Bool
}

type Option func(*Controller)

func WithStore(s storage.Store) Option   { return func(c *Controller) { c.store = s } }
func WithBus(b eventbus.Bus) Option      { return func(c *Controller) { c.bus = b } }
func WithLogger(l logx.Logger) Option    { return func(c *Controller) { c.log = l } }
func WithTuning(enabled bool) Option     { return func(c *Controller) { c.tuneEnabled.Store(enabled) } }
func WithNow(fn func() time.Time) Option { return func(c *Controller) { c.now = fn } }

func New(deps *animation.Deps, eng Engine, opts ...Option) *Controller {
	c := &Controller{deps: deps, eng: eng, now: time.Now}
	c.tuneEnabled.Store(true)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fired is the payload of eventbus.TriggerFired.
type Fired struct {
	Source   Source
	Action   string
	Target   string
	Priority engine.Priority
	Error    string
}

func (c *Controller) fire(ctx context.Context, src Source, action, target string, p engine.Priority, fn func() error) error {
	start := c.now()
	err := fn()

	ev := Fired{Source: src, Action: action, Target: target, Priority: p}
	if err != nil {
		ev.Error = err.Error()
		c.log.Warn("trigger failed", logx.String("action", action), logx.String("source", src.Kind), logx.Err(err))
	} else {
		c.log.Debug("trigger", logx.String("action", action), logx.String("source", src.Kind), logx.String("actor", src.Actor), logx.Int("priority", int(p)))
	}
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.TriggerFired, Time: start, Data: ev})
	}
	if c.store != nil {
		ae := storage.AuditEntry{
			At:       start,
			Source:   src.Kind,
			Actor:    src.Actor,
			Action:   action,
			Target:   target,
			Priority: int(p),
			Error:    ev.Error,
			TookMS:   c.now().Sub(start).Milliseconds(),
		}
		if aerr := c.store.AppendAudit(ctx, ae); aerr != nil {
			c.log.Debug("audit append failed", logx.Err(aerr))
		}
	}
	return err
}

func (c *Controller) inboxChanged() {
	if c.bus != nil && c.deps.Inbox != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.InboxChanged, Time: c.now(), Data: c.deps.Inbox.Len()})
	}
}

// Stop discards everything queued and ends the running animation.
func (c *Controller) Stop(ctx context.Context, src Source) error {
	return c.fire(ctx, src, "stop", "", animation.PriorityStop, func() error {
		return c.eng.Enqueue(c.deps.Stop(), animation.PriorityStop)
	})
}

// Countdown starts an mm:ss countdown of the given length.
func (c *Controller) Countdown(ctx context.Context, src Source, seconds int) error {
	return c.fire(ctx, src, "countdown", fmt.Sprint(seconds), animation.PriorityUrgent, func() error {
		return c.eng.Enqueue(c.deps.Countdown(seconds), animation.PriorityUrgent)
	})
}

// Test runs the demo count.
func (c *Controller) Test(ctx context.Context, src Source) error {
	return c.fire(ctx, src, "test", "", animation.PriorityMessage, func() error {
		return c.eng.Enqueue(c.deps.Demo(), animation.PriorityMessage)
	})
}

// Deliver shows a message. Unread messages end up in the inbox once shown.
func (c *Controller) Deliver(ctx context.Context, src Source, text string, effects []string, read bool) (inbox.Message, error) {
	var m inbox.Message
	err := c.fire(ctx, src, "message", text, animation.PriorityMessage, func() error {
		if strings.TrimSpace(text) == "" {
			return ErrEmptyMessage
		}
		if utf8.RuneCountInString(text) > MaxMessageLen {
			return ErrMessageTooLong
		}
		m = inbox.NewMessage(text, effects, read)
		m.ReceivedAt = c.now()
		return c.eng.Enqueue(c.deps.Message(m), animation.PriorityMessage)
	})
	return m, err
}

// ClearInbox drops all unread messages and shows the (now empty) idle view.
func (c *Controller) ClearInbox(ctx context.Context, src Source) (int, error) {
	var n int
	err := c.fire(ctx, src, "clear_inbox", "", animation.PriorityUrgent, func() error {
		if c.deps.Inbox != nil {
			n = c.deps.Inbox.Clear()
			c.inboxChanged()
		}
		return c.eng.Enqueue(c.deps.Idle(), animation.PriorityUrgent)
	})
	return n, err
}

// ReadInbox replays every unread message as read, then returns to idle.
func (c *Controller) ReadInbox(ctx context.Context, src Source) (int, error) {
	var n int
	err := c.fire(ctx, src, "read_inbox", "", animation.PriorityMessage, func() error {
		var msgs []inbox.Message
		if c.deps.Inbox != nil {
			msgs = c.deps.Inbox.TakeAll()
		}
		n = len(msgs)
		if n > 0 {
			c.inboxChanged()
		}
		var errs []error
		for _, m := range msgs {
			if err := c.eng.Enqueue(c.deps.Message(m), animation.PriorityMessage); err != nil {
				errs = append(errs, err)
			}
		}
		if err := c.eng.Enqueue(c.deps.Idle(), animation.PriorityIdle); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
	return n, err
}

// StartClock starts the clock from start, a local-time epoch.
func (c *Controller) StartClock(ctx context.Context, src Source, start int64) error {
	return c.fire(ctx, src, "clock", fmt.Sprint(start), animation.PriorityClock, func() error {
		return c.eng.Enqueue(c.deps.Clock(start), animation.PriorityClock)
	})
}

// Feed starts the launch countdown.
func (c *Controller) Feed(ctx context.Context, src Source) error {
	return c.fire(ctx, src, "feed", "", animation.PriorityUrgent, func() error {
		return c.eng.Enqueue(c.deps.Feed(), animation.PriorityUrgent)
	})
}

// Idle shows the inbox snake.
func (c *Controller) Idle(ctx context.Context, src Source) error {
	return c.fire(ctx, src, "idle", "", animation.PriorityIdle, func() error {
		return c.eng.Enqueue(c.deps.Idle(), animation.PriorityIdle)
	})
}

// Tune changes a tunable. typ is one of int, float, str or bool.
func (c *Controller) Tune(ctx context.Context, src Source, name, typ, raw string) error {
	return c.fire(ctx, src, "tune", name+"="+raw, 0, func() error {
		if !c.tuneEnabled.Load() {
			return ErrTuneDisabled
		}
		return c.deps.Tune.Set(name, typ, raw)
	})
}

// Status is what /status and the bot report.
type Status struct {
	Scheduler engine.Snapshot `json:"scheduler"`
	Inbox     int             `json:"inbox"`
	Tunables  []tune.Entry    `json:"tunables"`
	Frames    uint64          `json:"frames"`
}

func (c *Controller) Status() Status {
	st := Status{Scheduler: c.eng.Snapshot(), Tunables: c.deps.Tune.Snapshot()}
	if c.deps.Inbox != nil {
		st.Inbox = c.deps.Inbox.Len()
	}
	if c.deps.Canvas != nil {
		st.Frames = c.deps.Canvas.Frames()
	}
	return st
}

// Inbox lists unread messages.
func (c *Controller) Inbox() []inbox.Message {
	if c.deps.Inbox == nil {
		return nil
	}
	return c.deps.Inbox.List()
}

// Audit returns recent triggers, newest first.
func (c *Controller) Audit(ctx context.Context, limit int) ([]storage.AuditEntry, error) {
	if c.store == nil {
		return nil, storage.ErrDisabled
	}
	return c.store.RecentAudit(ctx, limit)
}

// Tuning reports whether Tune is allowed.
func (c *Controller) Tuning() bool { return c.tuneEnabled.Load() }

// SetTuning toggles Tune on config reload.
func (c *Controller) SetTuning(enabled bool) { c.tuneEnabled.Store(enabled) }
