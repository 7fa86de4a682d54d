package animation

import (
	"marquee/internal/display"
	"marquee/internal/task/engine"
	"marquee/internal/transition"
)

// scene is the layout shared by the text animations: one line of text at y,
// an optional icon at the left edge and an optional rainbow.
type scene struct {
	y       int
	place   func(string) int
	icon    *display.Icon
	rainbow bool
	overlay func()
}

func (d *Deps) begin(sc scene) {
	d.Canvas.Blank()
	if sc.icon != nil {
		d.Canvas.Icon(*sc.icon, 0, sc.y)
	}
}

func (d *Deps) finish(f *engine.Frame, sc scene) {
	if sc.rainbow {
		d.rainbow(f.Index())
	}
	if sc.overlay != nil {
		sc.overlay()
	}
	d.Canvas.Update()
}

// still draws text without motion.
func (d *Deps) still(f *engine.Frame, sc scene, text string) {
	d.begin(sc)
	d.Canvas.Text(text, sc.place(text), sc.y)
	d.finish(f, sc)
}

// roll plays the transition from prev to next, one step per frame.
func (d *Deps) roll(f *engine.Frame, sc scene, prev, next string) error {
	tr := transition.New(prev, next)
	for step := 1; step <= tr.Frames(); step++ {
		if err := f.Next(); err != nil {
			return err
		}
		d.begin(sc)
		tr.Draw(d.Canvas, step, sc.place, sc.y)
		d.finish(f, sc)
	}
	return nil
}

// show draws text at rest, or rolls to it when it changed while the line
// is at rest.
func (d *Deps) show(f *engine.Frame, sc scene, prev, text string) error {
	if prev == "" || prev == text || sc.y != restY {
		d.still(f, sc, text)
		return nil
	}
	return d.roll(f, sc, prev, text)
}

// restY is the line position once text has slid into view; entryY is where
// it starts, one full line above.
const (
	restY  = -2
	entryY = restY - transition.LineHeight
)
