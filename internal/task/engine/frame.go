package engine

import (
	"context"
	"time"
)

// Clock is the time source used for frame pacing. Tests inject a fake.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock uses wall time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// lateThreshold is the smallest sleep budget that still counts as on time.
const lateThreshold = time.Millisecond

// FrameClock paces a loop to a fixed period measured from the end of the
// previous sleep, so time spent drawing is absorbed into the period.
type FrameClock struct {
	clock  Clock
	period func() time.Duration

	last    time.Time
	started bool
}

// NewFrameClock returns a clock reading period on every Wait.
func NewFrameClock(c Clock, period func() time.Duration) *FrameClock {
	if c == nil {
		c = SystemClock{}
	}
	return &FrameClock{clock: c, period: period}
}

// Reset forgets the previous frame; the next Wait returns immediately.
func (c *FrameClock) Reset() { c.started = false }

// Wait sleeps for whatever is left of the current period. late is true when
// less than a millisecond was left; that is reported, not treated as an error.
func (c *FrameClock) Wait(ctx context.Context) (late bool, err error) {
	now := c.clock.Now()
	if !c.started {
		c.started = true
		c.last = now
		return false, nil
	}
	budget := c.period() - now.Sub(c.last)
	late = budget < lateThreshold
	if budget > 0 {
		if err := c.clock.Sleep(ctx, budget); err != nil {
			return late, err
		}
	}
	c.last = c.clock.Now()
	return late, nil
}

// Frame is handed to a running Task. It is not safe for use by more than one
// goroutine.
type Frame struct {
	svc   *Service
	ctx   context.Context
	clock *FrameClock
	index int
}

// Next ends the current frame. It returns ErrInterrupted without sleeping
// when a more urgent animation is waiting, the context error when the
// scheduler is stopping, and otherwise sleeps until the next frame is due.
func (f *Frame) Next() error {
	if f.svc.interruptRequested() {
		return ErrInterrupted
	}
	if err := f.ctx.Err(); err != nil {
		return err
	}
	late, err := f.clock.Wait(f.ctx)
	if err != nil {
		return err
	}
	f.index++
	if late {
		f.svc.frameLate(f)
	}
	return nil
}

// Skip calls Next n times.
func (f *Frame) Skip(n int) error {
	for i := 0; i < n; i++ {
		if err := f.Next(); err != nil {
			return err
		}
	}
	return nil
}

// Reset restarts pacing, e.g. after a blocking network call.
func (f *Frame) Reset() { f.clock.Reset() }

// Index is the number of completed frames since the task started.
func (f *Frame) Index() int { return f.index }

// Priority of the running task.
func (f *Frame) Priority() Priority {
	p, _ := f.svc.currentPriority()
	return p
}
