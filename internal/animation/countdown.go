package animation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marquee/internal/display"
	"marquee/internal/task/engine"
	"marquee/internal/tune"
)

// MaxCountdown is the longest countdown the mm:ss display can show.
const MaxCountdown = 3599 * time.Second

// Countdown shows mm:ss until Target, then slides away five seconds after
// reaching zero and hands over to the idle animation. When preempted it
// queues itself again with the same Target.
type Countdown struct {
	d      *Deps
	Target time.Time
}

func (d *Deps) Countdown(seconds int) *Countdown {
	seconds = min(max(seconds, 0), int(MaxCountdown/time.Second))
	return &Countdown{d: d, Target: d.now().Add(time.Duration(seconds) * time.Second)}
}

func (c *Countdown) Name() string { return "countdown" }

func (c *Countdown) Run(ctx context.Context, f *engine.Frame) error {
	err := c.run(f)
	if errors.Is(err, engine.ErrInterrupted) {
		c.d.enqueue(c, PriorityUrgent)
	}
	return err
}

func (c *Countdown) run(f *engine.Frame) error {
	d := c.d
	remaining := min(max(c.Target.Sub(d.now()), 0), MaxCountdown)
	target := d.now().Add(remaining)

	sc := scene{y: entryY, place: d.beside, icon: &display.Calendar}
	prev := ""
	for {
		if err := f.Next(); err != nil {
			return err
		}
		if sc.y < restY {
			sc.y++
		}

		diff := target.Sub(d.now()).Seconds()
		if diff < -5 {
			if sc.y >= d.Canvas.Height()-2 {
				break
			}
			sc.y++
		}

		timer := max(0, diff)
		text := fmt.Sprintf("%02d:%02d", int(timer/60)%60, int(timer)%60)
		sc.rainbow = timer < float64(d.Tune.Int(tune.RainbowTimerThreshold))

		if err := d.show(f, sc, prev, text); err != nil {
			return err
		}
		prev = text
	}

	d.enqueue(d.Idle(), PriorityIdle)
	return nil
}
