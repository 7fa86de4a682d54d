// Package animation contains the animations shown on the panel.
//
// Every animation is an engine.Task. Animations draw only between calls to
// Frame.Next and return the error Next gives them, so a more urgent request
// can take over the panel at the next frame.
package animation

import (
	"context"
	"image/color"
	"math/rand/v2"
	"sync"
	"time"

	"marquee/internal/display"
	"marquee/internal/feed"
	"marquee/internal/inbox"
	"marquee/internal/task/engine"
	"marquee/internal/tune"
	logx "marquee/pkg/logx"
)

// Scheduler accepts animations.
type Scheduler interface {
	Enqueue(t engine.Task, p engine.Priority) error
}

// MissionSource provides the launch feed.
type MissionSource interface {
	Next(ctx context.Context) (feed.Mission, error)
	Mission(ctx context.Context, id string) (feed.Mission, error)
}

// Deps is what animations draw with and talk to. It builds the tasks.
type Deps struct {
	Canvas    *display.Canvas
	Tune      *tune.Set
	Inbox     *inbox.Inbox
	Scheduler Scheduler
	Missions  MissionSource
	Log       logx.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// FeedRetry is the delay before retrying a failed first feed fetch.
	FeedRetry time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Seed makes the idle animation deterministic.
func (d *Deps) Seed(a, b uint64) {
	d.rngMu.Lock()
	d.rng = rand.New(rand.NewPCG(a, b))
	d.rngMu.Unlock()
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) intN(n int) int {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	if d.rng == nil {
		d.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return d.rng.IntN(n)
}

// enqueue logs instead of failing: a follow-up animation that cannot be
// queued must not turn a finished animation into a fault.
func (d *Deps) enqueue(t engine.Task, p engine.Priority) {
	if d.Scheduler == nil {
		return
	}
	if err := d.Scheduler.Enqueue(t, p); err != nil {
		d.Log.Warn("follow-up animation not queued", logx.String("animation", t.Name()), logx.Int("priority", int(p)), logx.Err(err))
	}
}

// rainbow applies the rainbow effect with the tuned multiplier.
func (d *Deps) rainbow(frame int) {
	d.Canvas.Rainbow(frame, d.Tune.Int(tune.RainbowFrameMultiplier))
}

// beside centres text in the area right of a 10 pixel icon.
func (d *Deps) beside(s string) int {
	w := float64(d.Canvas.MeasureText(s))
	return int(10 + float64(d.Canvas.Width()-10)/2 - w/2 + 1)
}

// centred centres text on the whole panel.
func (d *Deps) centred(s string) int {
	w := float64(d.Canvas.MeasureText(s))
	return int(float64(d.Canvas.Width())/2 - w/2 + 1)
}

// Stop clears the queue.
func (d *Deps) Stop() engine.Task {
	return engine.Func("stop", func(ctx context.Context, f *engine.Frame) error {
		return engine.ErrClear
	})
}

// Blank clears the panel and ends.
func (d *Deps) Blank() engine.Task {
	return engine.Func("blank", func(ctx context.Context, f *engine.Frame) error {
		d.Canvas.Blank()
		d.Canvas.Update()
		return nil
	})
}

// Status lights the top-left pixel, used while the daemon boots.
func (d *Deps) Status(c color.RGBA) {
	d.Canvas.SetPixel(0, 0, c)
	d.Canvas.Update()
}
