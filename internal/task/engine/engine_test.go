package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marquee/internal/eventbus"
	logx "marquee/pkg/logx"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func newTestService(t *testing.T, cfg Config, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(newFakeClock())}, opts...)
	s := New(cfg, logx.Nop(), eventbus.New(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func idle(s *Service) func() bool {
	return func() bool {
		snap := s.Snapshot()
		return !snap.Running && snap.QueueLen == 0
	}
}

// recorder collects the names of animations in the order they ran.
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) task(name string) Task {
	return Func(name, func(ctx context.Context, f *Frame) error {
		r.mu.Lock()
		r.names = append(r.names, name)
		r.mu.Unlock()
		return nil
	})
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func outcomes(s *Service) map[string]Outcome {
	out := map[string]Outcome{}
	for _, h := range s.Snapshot().History {
		out[h.Name] = h.Outcome
	}
	return out
}

func TestPriorityOrderWithFIFOTies(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{})
	rec := &recorder{}

	for _, e := range []struct {
		name string
		p    Priority
	}{
		{"idle-a", 3},
		{"msg-a", 1},
		{"idle-b", 3},
		{"msg-b", 1},
		{"countdown", 2},
		{"clock", 5},
	} {
		if err := s.Enqueue(rec.task(e.name), e.p); err != nil {
			t.Fatalf("Enqueue(%s) = %v", e.name, err)
		}
	}
	s.Start(context.Background())
	waitFor(t, "queue to drain", idle(s))

	want := []string{"msg-a", "msg-b", "countdown", "idle-a", "idle-b", "clock"}
	got := rec.got()
	if len(got) != len(want) {
		t.Fatalf("ran %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ran %v, want %v", got, want)
		}
	}
}

func TestInterruptObservedAtNextFrame(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{})
	s.Start(context.Background())

	started := make(chan struct{})
	proceed := make(chan struct{})
	var firstNext, secondNext error

	low := Func("idle", func(ctx context.Context, f *Frame) error {
		firstNext = f.Next()
		close(started)
		<-proceed
		secondNext = f.Next()
		return secondNext
	})
	rec := &recorder{}

	if err := s.Enqueue(low, 3); err != nil {
		t.Fatalf("Enqueue = %v", err)
	}
	<-started

	// Equal priority never preempts.
	if err := s.Enqueue(rec.task("idle-again"), 3); err != nil {
		t.Fatalf("Enqueue = %v", err)
	}
	if snap := s.Snapshot(); snap.InterruptRequested {
		t.Fatal("equal priority must not request an interrupt")
	}

	if err := s.Enqueue(rec.task("message"), 1); err != nil {
		t.Fatalf("Enqueue = %v", err)
	}
	snap := s.Snapshot()
	if !snap.InterruptRequested {
		t.Fatal("InterruptRequested = false, want true")
	}
	if snap.Interrupts != 1 {
		t.Fatalf("Interrupts = %d, want 1", snap.Interrupts)
	}
	if snap.CurrentPriority == nil || *snap.CurrentPriority != 3 {
		t.Fatalf("CurrentPriority = %v, want 3", snap.CurrentPriority)
	}

	close(proceed)
	waitFor(t, "queue to drain", idle(s))

	if firstNext != nil {
		t.Fatalf("first Next = %v, want nil", firstNext)
	}
	if !errors.Is(secondNext, ErrInterrupted) {
		t.Fatalf("second Next = %v, want %v", secondNext, ErrInterrupted)
	}
	got := rec.got()
	if len(got) != 2 || got[0] != "message" || got[1] != "idle-again" {
		t.Fatalf("ran %v, want [message idle-again]", got)
	}
	if o := outcomes(s)["idle"]; o != OutcomeInterrupted {
		t.Fatalf("idle outcome = %q, want %q", o, OutcomeInterrupted)
	}

	final := s.Snapshot()
	if final.InterruptRequested || final.CurrentPriority != nil {
		t.Fatalf("preemption state not reset: %+v", final)
	}
}

func TestPreemptedTaskIsNotResumed(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{})
	s.Start(context.Background())

	var lowRuns atomic.Int32
	started := make(chan struct{}, 1)
	low := Func("snake", func(ctx context.Context, f *Frame) error {
		lowRuns.Add(1)
		started <- struct{}{}
		for {
			if err := f.Next(); err != nil {
				return err
			}
		}
	})
	rec := &recorder{}

	_ = s.Enqueue(low, 3)
	<-started
	_ = s.Enqueue(rec.task("message"), 1)
	waitFor(t, "queue to drain", idle(s))

	if got := lowRuns.Load(); got != 1 {
		t.Fatalf("snake runs = %d, want 1", got)
	}
	if got := rec.got(); len(got) != 1 || got[0] != "message" {
		t.Fatalf("ran %v, want [message]", got)
	}
	o := outcomes(s)
	if o["snake"] != OutcomeInterrupted || o["message"] != OutcomeFinished {
		t.Fatalf("outcomes = %v", o)
	}
}

func TestSelfReenqueueAfterInterrupt(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{})
	s.Start(context.Background())

	var runs atomic.Int32
	started := make(chan struct{}, 2)
	var countdown Task
	countdown = Func("countdown", func(ctx context.Context, f *Frame) error {
		if runs.Add(1) > 1 {
			return nil
		}
		started <- struct{}{}
		for {
			if err := f.Next(); err != nil {
				if errors.Is(err, ErrInterrupted) {
					_ = s.Enqueue(countdown, 2)
				}
				return err
			}
		}
	})
	rec := &recorder{}

	_ = s.Enqueue(countdown, 2)
	<-started
	_ = s.Enqueue(rec.task("message"), 1)
	waitFor(t, "queue to drain", idle(s))

	if got := runs.Load(); got != 2 {
		t.Fatalf("countdown runs = %d, want 2", got)
	}
}

func TestClearDiscardsQueue(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{})
	s.Start(context.Background())

	started := make(chan struct{})
	proceed := make(chan struct{})
	low := Func("clock", func(ctx context.Context, f *Frame) error {
		close(started)
		<-proceed
		for {
			if err := f.Next(); err != nil {
				return err
			}
		}
	})
	rec := &recorder{}

	_ = s.Enqueue(low, 5)
	<-started
	_ = s.Enqueue(rec.task("idle"), 3)
	_ = s.Enqueue(rec.task("countdown"), 2)
	_ = s.Enqueue(Func("stop", func(ctx context.Context, f *Frame) error { return ErrClear }), -1)
	close(proceed)
	waitFor(t, "queue to drain", idle(s))

	if got := rec.got(); len(got) != 0 {
		t.Fatalf("cleared entries ran: %v", got)
	}
	if o := outcomes(s)["stop"]; o != OutcomeCleared {
		t.Fatalf("stop outcome = %q, want %q", o, OutcomeCleared)
	}

	// A later enqueue starts a fresh runner.
	_ = s.Enqueue(rec.task("after"), 3)
	waitFor(t, "fresh runner", func() bool { return len(rec.got()) == 1 })
}

func TestFaultsDoNotStopRunner(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{})
	rec := &recorder{}

	_ = s.Enqueue(Func("errors", func(ctx context.Context, f *Frame) error { return errors.New("boom") }), 1)
	_ = s.Enqueue(Func("panics", func(ctx context.Context, f *Frame) error { panic("kaboom") }), 1)
	_ = s.Enqueue(rec.task("healthy"), 1)
	s.Start(context.Background())
	waitFor(t, "queue to drain", idle(s))

	o := outcomes(s)
	tests := []struct {
		name string
		want Outcome
	}{
		{"errors", OutcomeFailed},
		{"panics", OutcomeFailed},
		{"healthy", OutcomeFinished},
	}
	for _, tt := range tests {
		if o[tt.name] != tt.want {
			t.Fatalf("%s outcome = %q, want %q", tt.name, o[tt.name], tt.want)
		}
	}
}

func TestEnqueueErrors(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{MaxQueue: 2})
	rec := &recorder{}

	if err := s.Enqueue(nil, 1); !errors.Is(err, ErrNilTask) {
		t.Fatalf("Enqueue(nil) = %v, want %v", err, ErrNilTask)
	}
	_ = s.Enqueue(rec.task("a"), 3)
	_ = s.Enqueue(rec.task("b"), 3)
	if err := s.Enqueue(rec.task("c"), 1); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue over cap = %v, want %v", err, ErrQueueFull)
	}
	if err := s.Enqueue(rec.task("stop"), -1); err != nil {
		t.Fatalf("stop-class Enqueue over cap = %v, want nil", err)
	}
	if got := s.Snapshot().Dropped; got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
	if err := s.Enqueue(rec.task("late"), 1); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue after Stop = %v, want %v", err, ErrStopped)
	}
}

func TestStopCancelsRunningTask(t *testing.T) {
	t.Parallel()
	s := newTestService(t, Config{})
	s.Start(context.Background())

	started := make(chan struct{})
	_ = s.Enqueue(Func("forever", func(ctx context.Context, f *Frame) error {
		close(started)
		for {
			if err := f.Next(); err != nil {
				return err
			}
		}
	}), 5)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
	if o := outcomes(s)["forever"]; o != OutcomeCancelled {
		t.Fatalf("outcome = %q, want %q", o, OutcomeCancelled)
	}
}

func TestLateFrameHook(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	var hooks atomic.Int32
	s := newTestService(t, Config{FrameDelay: 24 * time.Millisecond},
		WithClock(clock),
		WithLateFrame(func(f *Frame) { hooks.Add(1) }),
	)

	_ = s.Enqueue(Func("slow", func(ctx context.Context, f *Frame) error {
		for i := 0; i < 4; i++ {
			clock.Advance(30 * time.Millisecond)
			if err := f.Next(); err != nil {
				return err
			}
		}
		return nil
	}), 3)
	s.Start(context.Background())
	waitFor(t, "queue to drain", idle(s))

	// The first Next only starts pacing.
	if got := hooks.Load(); got != 3 {
		t.Fatalf("late hooks = %d, want 3", got)
	}
	if got := s.Snapshot().LateFrames; got != 3 {
		t.Fatalf("LateFrames = %d, want 3", got)
	}
}
