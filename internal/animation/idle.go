package animation

import (
	"context"

	"marquee/internal/display"
	"marquee/internal/task/engine"
)

// Idle crawls a snake around the panel, one segment per unread inbox
// message plus the head. With an empty inbox it blanks the panel and ends.
type Idle struct{ d *Deps }

func (d *Deps) Idle() *Idle { return &Idle{d: d} }

func (i *Idle) Name() string { return "idle" }

type segment struct{ x, y, dir int }

// up, right, down, left
var headings = [4][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

func (i *Idle) Run(ctx context.Context, f *engine.Frame) error {
	d := i.d
	w, h := d.Canvas.Width(), d.Canvas.Height()

	n := 0
	if d.Inbox != nil {
		n = d.Inbox.Len()
	}
	if n > 0 {
		n++
	}

	var snake []segment
	for k := 0; k < n; k++ {
		var s segment
		if k == 0 {
			s = segment{x: d.intN(w), y: d.intN(h), dir: d.intN(4)}
		} else {
			s = i.step(snake[0], w, h)
		}
		snake = append([]segment{s}, snake...)
	}

	frame, tick := 0, 0
	for {
		if err := f.Next(); err != nil {
			return err
		}

		tick++
		if tick == 2 {
			frame++
		}
		if tick == 9 && len(snake) > 0 {
			tick = 0
			head := i.step(snake[0], w, h)
			snake = append([]segment{head}, snake[:len(snake)-1]...)
		}

		d.Canvas.Blank()
		if len(snake) > 0 {
			// Only the head picks up the rainbow.
			d.Canvas.Pixel(snake[0].x, snake[0].y)
			d.rainbow(frame)
			d.Canvas.SetPen(display.White)
			for _, s := range snake[1:] {
				d.Canvas.Pixel(s.x, s.y)
			}
		}
		d.Canvas.Update()

		if len(snake) == 0 {
			return nil
		}
	}
}

// step moves one pixel ahead, turning left or right now and then, and
// wraps at the panel edges.
func (i *Idle) step(s segment, w, h int) segment {
	turn := 0
	if i.d.intN(100) < 10 {
		turn = i.d.intN(3) - 1
	}
	dir := (s.dir + turn + 4) % 4
	return segment{
		x:   (s.x + headings[dir][0] + w) % w,
		y:   (s.y + headings[dir][1] + h) % h,
		dir: dir,
	}
}
