package animation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marquee/internal/display"
	"marquee/internal/feed"
	"marquee/internal/task/engine"
	logx "marquee/pkg/logx"
)

// Poll intervals for the selected mission.
const (
	feedPoll       = 30 * time.Second
	feedPollPaused = 10 * time.Second
)

var errNoFeed = errors.New("no mission source configured")

// Feed shows time to (or since) T-0 of the next mission in h:mm:ss, or HOLD
// while the count is paused. Until the first fetch succeeds it shows status
// pixels: blue while fetching, red after a failure, green once loaded.
// Fetches run in the background so frames keep coming.
type Feed struct{ d *Deps }

func (d *Deps) Feed() *Feed { return &Feed{d: d} }

func (m *Feed) Name() string { return "feed" }

type fetched struct {
	m   feed.Mission
	err error
}

func (m *Feed) fetch(ctx context.Context, fn func(context.Context) (feed.Mission, error)) <-chan fetched {
	ch := make(chan fetched, 1)
	go func() {
		ms, err := fn(ctx)
		ch <- fetched{m: ms, err: err}
	}()
	return ch
}

// await keeps frames ticking until the fetch completes.
func await(f *engine.Frame, ch <-chan fetched) (fetched, error) {
	for {
		select {
		case r := <-ch:
			return r, nil
		default:
		}
		if err := f.Next(); err != nil {
			return fetched{}, err
		}
	}
}

func (m *Feed) Run(ctx context.Context, f *engine.Frame) error {
	d := m.d
	if d.Missions == nil {
		return errNoFeed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.Canvas.Blank()
	d.Status(display.Yellow)

	mission, err := m.first(ctx, f)
	if err != nil {
		return err
	}
	d.Log.Info("mission selected", logx.String("mission", mission.ID), logx.Time("t_zero", mission.TZero), logx.Bool("paused", mission.Paused))

	failing := false
	sc := scene{y: entryY, place: d.centred, overlay: func() {
		if failing {
			d.Canvas.SetPixel(0, 0, display.Red)
		}
	}}

	var pending <-chan fetched
	last := d.now()
	prev := ""
	for {
		if err := f.Next(); err != nil {
			return err
		}
		if sc.y < restY {
			sc.y++
		}

		interval := feedPoll
		if mission.Paused {
			interval = feedPollPaused
		}
		if pending == nil && d.now().Sub(last) > interval {
			id := mission.ID
			pending = m.fetch(ctx, func(ctx context.Context) (feed.Mission, error) { return d.Missions.Mission(ctx, id) })
		}
		if pending != nil {
			select {
			case r := <-pending:
				pending = nil
				last = d.now()
				if r.err != nil {
					failing = true
					d.Log.Warn("feed refresh failed", logx.String("mission", mission.ID), logx.Err(r.err))
				} else {
					failing = false
					mission.TZero, mission.Paused = r.m.TZero, r.m.Paused
				}
			default:
			}
		}

		timer := d.now().Sub(mission.TZero).Abs().Seconds()
		text := "HOLD"
		if !mission.Paused {
			text = fmt.Sprintf("%d:%02d:%02d", int(timer/3600), int(timer/60)%60, int(timer)%60)
		}
		sc.rainbow = timer < 10

		if err := d.show(f, sc, prev, text); err != nil {
			return err
		}
		prev = text
	}
}

// first fetches until a mission is selected, retrying after FeedRetry.
func (m *Feed) first(ctx context.Context, f *engine.Frame) (feed.Mission, error) {
	d := m.d
	retry := d.FeedRetry
	if retry <= 0 {
		retry = 10 * time.Second
	}
	for {
		d.Status(display.Blue)
		r, err := await(f, m.fetch(ctx, d.Missions.Next))
		if err != nil {
			return feed.Mission{}, err
		}
		if r.err == nil {
			d.Status(display.Green)
			return r.m, nil
		}
		d.Log.Warn("feed fetch failed", logx.Err(r.err), logx.Duration("retry", retry))
		d.Status(display.Red)
		for until := d.now().Add(retry); d.now().Before(until); {
			if err := f.Next(); err != nil {
				return feed.Mission{}, err
			}
		}
	}
}
