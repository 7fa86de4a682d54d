package animation

import (
	"context"

	"marquee/internal/inbox"
	"marquee/internal/task/engine"
	"marquee/internal/tune"
)

// Message scrolls Msg up into view, holds it, then scrolls it off to the
// left. An unread message goes into the inbox once it has been fully shown.
type Message struct {
	d   *Deps
	Msg inbox.Message
}

func (d *Deps) Message(m inbox.Message) *Message { return &Message{d: d, Msg: m} }

func (m *Message) Name() string { return "message" }

func (m *Message) Run(ctx context.Context, f *engine.Frame) error {
	d := m.d
	text := m.Msg.Text
	w := d.Canvas.MeasureText(text)
	rainbow := m.Msg.HasEffect(inbox.EffectRainbow)

	x, y := 0, d.Canvas.Height()
	frame := 0
	draw := func() {
		d.Canvas.Blank()
		d.Canvas.Text(text, x, y)
		if rainbow {
			d.rainbow(frame)
		}
		d.Canvas.Update()
	}

	// Up one pixel every other frame.
	for tick := 0; y > restY; {
		if err := f.Next(); err != nil {
			return err
		}
		frame += 2
		if tick++; tick == 2 {
			tick = 0
			y--
		}
		draw()
	}

	if !m.Msg.Read && d.Inbox != nil {
		d.Inbox.Add(m.Msg)
	}

	if d.Tune.Bool(tune.HoldEnable) {
		for hold := d.Tune.Int(tune.HoldTime); hold > 0; hold-- {
			if err := f.Next(); err != nil {
				return err
			}
			frame++
			draw()
		}
	}

	for x > -w {
		if err := f.Next(); err != nil {
			return err
		}
		frame += 2
		x--
		draw()
	}

	d.enqueue(d.Idle(), PriorityIdle)
	return nil
}
