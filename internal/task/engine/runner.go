package engine

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"marquee/internal/eventbus"
	logx "marquee/pkg/logx"
)

// spawnLocked starts the runner goroutine. s.mu must be held.
func (s *Service) spawnLocked() {
	s.sup.Go0("animation.runner", s.run)
}

// run pops entries until the queue is empty, then resets the preemption
// state and exits. Enqueue starts a fresh runner on the next call.
func (s *Service) run(ctx context.Context) {
	for {
		s.mu.Lock()
		if ctx.Err() != nil || s.queue.Len() == 0 {
			s.running = false
			s.hasCurrent = false
			s.currName = ""
			s.interrupt = false
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.queue).(entry)
		s.current, s.hasCurrent = e.priority, true
		s.currName = e.task.Name()
		s.interrupt = false
		s.mu.Unlock()

		s.exec(ctx, e)
	}
}

func (s *Service) exec(ctx context.Context, e entry) {
	name := e.task.Name()
	start := time.Now()
	queueDelay := max(start.Sub(e.enqueuedAt), 0)

	s.log.Debug("animation.started", logx.String("animation", name), logx.Int("priority", int(e.priority)), logx.Duration("queue_delay", queueDelay))
	s.publish(eventbus.AnimationStarted, AnimationEvent{Seq: e.seq, Name: name, Priority: e.priority, QueueDelay: queueDelay})

	f := &Frame{svc: s, ctx: ctx, clock: NewFrameClock(s.clock, s.period)}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("animation.panic", logx.String("animation", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		err = e.task.Run(ctx, f)
	}()

	dur := time.Since(start)
	item := HistoryItem{Seq: e.seq, Name: name, Priority: e.priority, Started: start, QueueDelay: queueDelay, Duration: dur, Frames: f.Index()}
	ev := AnimationEvent{Seq: e.seq, Name: name, Priority: e.priority, Duration: dur}

	switch {
	case err == nil:
		item.Outcome = OutcomeFinished
		s.log.Debug("animation.finished", logx.String("animation", name), logx.Duration("dur", dur), logx.Int("frames", f.Index()))
		s.publish(eventbus.AnimationFinished, ev)

	case errors.Is(err, ErrClear):
		item.Outcome = OutcomeCleared
		ev.Discarded = s.Clear()
		s.log.Info("animation queue cleared", logx.String("animation", name), logx.Int("discarded", ev.Discarded))
		s.publish(eventbus.AnimationCleared, ev)

	case errors.Is(err, ErrInterrupted):
		item.Outcome = OutcomeInterrupted
		s.log.Debug("animation.interrupted", logx.String("animation", name), logx.Int("frames", f.Index()))
		s.publish(eventbus.AnimationInterrupted, ev)

	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		item.Outcome = OutcomeCancelled
		s.log.Debug("animation.cancelled", logx.String("animation", name))

	default:
		item.Outcome = OutcomeFailed
		item.Error = err.Error()
		ev.Error = item.Error
		s.log.Warn("animation.failed", logx.String("animation", name), logx.Err(err), logx.Duration("dur", dur))
		s.publish(eventbus.AnimationFailed, ev)
	}

	s.record(item)
}
