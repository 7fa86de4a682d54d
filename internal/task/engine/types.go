package engine

import (
	"context"
	"time"
)

// Priority orders animations. Lower values are more urgent: an entry with
// priority 1 runs before one with priority 3, and a newly queued entry
// preempts the running animation only when its priority is strictly lower.
// Negative priorities are reserved for stop-class animations and bypass the
// queue cap.
type Priority int

// Config controls the animation scheduler.
type Config struct {
	// MaxQueue caps pending entries. Stop-class entries are always accepted.
	MaxQueue int

	HistorySize int

	// FrameDelay is the default frame period when no period source is set.
	FrameDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxQueue <= 0 {
		c.MaxQueue = 64
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	if c.FrameDelay <= 0 {
		c.FrameDelay = 24 * time.Millisecond
	}
	return c
}

// Task is one animation. Run owns the display until it returns.
//
// Run must call f.Next between frames; that is the only point where the
// scheduler can preempt it. Returning ErrInterrupted or ErrClear (or an error
// wrapping them) is the normal way to yield to a more urgent animation.
type Task interface {
	Name() string
	Run(ctx context.Context, f *Frame) error
}

// Func adapts a function to a Task.
func Func(name string, run func(ctx context.Context, f *Frame) error) Task {
	return funcTask{name: name, run: run}
}

type funcTask struct {
	name string
	run  func(ctx context.Context, f *Frame) error
}

func (t funcTask) Name() string                            { return t.name }
func (t funcTask) Run(ctx context.Context, f *Frame) error { return t.run(ctx, f) }

// Outcome records how an animation left the display.
type Outcome string

const (
	OutcomeFinished    Outcome = "finished"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeCleared     Outcome = "cleared"
	OutcomeFailed      Outcome = "failed"
	OutcomeCancelled   Outcome = "cancelled"
)

type HistoryItem struct {
	Seq        uint64        `json:"seq"`
	Name       string        `json:"name"`
	Priority   Priority      `json:"priority"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Frames     int           `json:"frames"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
}

// AnimationEvent is published on the event bus for lifecycle changes.
type AnimationEvent struct {
	Seq        uint64        `json:"seq"`
	Name       string        `json:"name"`
	Priority   Priority      `json:"priority"`
	QueueDelay time.Duration `json:"queue_delay,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Discarded  int           `json:"discarded,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type QueuedItem struct {
	Seq        uint64    `json:"seq"`
	Name       string    `json:"name"`
	Priority   Priority  `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Snapshot is a point-in-time view for /status.
type Snapshot struct {
	Running            bool          `json:"running"`
	Current            string        `json:"current,omitempty"`
	CurrentPriority    *Priority     `json:"current_priority,omitempty"`
	InterruptRequested bool          `json:"interrupt_requested"`
	QueueLen           int           `json:"queue_len"`
	QueueCap           int           `json:"queue_cap"`
	Queued             []QueuedItem  `json:"queued"`
	Sequence           uint64        `json:"sequence"`
	Interrupts         uint64        `json:"interrupts"`
	Dropped            uint64        `json:"dropped"`
	LateFrames         uint64        `json:"late_frames"`
	History            []HistoryItem `json:"history"`
}
