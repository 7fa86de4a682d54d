package animation

import (
	"context"
	"fmt"
	"time"

	"marquee/internal/display"
	"marquee/internal/task/engine"
	"marquee/internal/tune"
)

// Clock shows a 12-hour hh:mm clock counting from Start, an epoch in the
// viewer's local time. It runs until preempted.
type Clock struct {
	d     *Deps
	Start int64
}

func (d *Deps) Clock(start int64) *Clock { return &Clock{d: d, Start: start} }

// LocalEpoch shifts t's Unix time by its zone offset, the form Clock expects.
func LocalEpoch(t time.Time) int64 {
	_, off := t.Zone()
	return t.Unix() + int64(off)
}

func (c *Clock) Name() string { return "clock" }

func (c *Clock) Run(ctx context.Context, f *engine.Frame) error {
	d := c.d
	started := d.now()

	sc := scene{y: entryY, place: d.beside, icon: &display.ClockFace}
	prev := ""
	for {
		if err := f.Next(); err != nil {
			return err
		}
		if sc.y < restY {
			sc.y++
		}

		ts := c.Start + int64(d.now().Sub(started)/time.Second)
		hours := (ts / 3600) % 12
		minutes := (ts / 60) % 60
		seconds := ts % 60
		text := fmt.Sprintf("%02d:%02d", hours, minutes)

		// The rainbow marks the top of the hour: briefly while at rest,
		// and for the whole roll into :00.
		if prev == "" || prev == text || sc.y != restY {
			sc.rainbow = minutes == 0 && seconds < int64(d.Tune.Int(tune.ClockRainbowHoldTime))
		} else {
			sc.rainbow = minutes == 0
		}
		if err := d.show(f, sc, prev, text); err != nil {
			return err
		}
		prev = text
	}
}
