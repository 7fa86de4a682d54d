package animation

import (
	"context"
	"fmt"

	"marquee/internal/task/engine"
)

// DemoFrom is where the demo count starts.
const DemoFrom = 20

// Demo counts down from DemoFrom to 00, holding each value for 20 frames and
// rolling between them. It exercises the transition and the frame pacing.
type Demo struct{ d *Deps }

func (d *Deps) Demo() *Demo { return &Demo{d: d} }

func (m *Demo) Name() string { return "demo" }

func (m *Demo) Run(ctx context.Context, f *engine.Frame) error {
	d := m.d
	sc := scene{y: restY, place: func(string) int { return 0 }}

	for n := DemoFrom; ; n-- {
		text := fmt.Sprintf("%02d", n)
		d.still(f, sc, text)
		if err := f.Skip(20); err != nil {
			return err
		}
		if n == 0 {
			break
		}
		if err := d.roll(f, sc, text, fmt.Sprintf("%02d", n-1)); err != nil {
			return err
		}
	}

	d.enqueue(d.Idle(), PriorityIdle)
	return nil
}
