package animation

import (
	"context"
	"errors"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marquee/internal/display"
	"marquee/internal/eventbus"
	"marquee/internal/feed"
	"marquee/internal/inbox"
	"marquee/internal/task/engine"
	"marquee/internal/tune"
	logx "marquee/pkg/logx"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

// followUps records what animations queue next without running them.
type followUps struct {
	mu    sync.Mutex
	tasks []engine.Task
	prios []engine.Priority
}

func (r *followUps) Enqueue(t engine.Task, p engine.Priority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
	r.prios = append(r.prios, p)
	return nil
}

func (r *followUps) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, t := range r.tasks {
		out = append(out, t.Name())
	}
	return out
}

type harness struct {
	deps  *Deps
	eng   *engine.Service
	after *followUps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	after := &followUps{}
	d := &Deps{
		Canvas:    display.New(53, 11),
		Tune:      tune.New(),
		Inbox:     inbox.New(16),
		Scheduler: after,
		Log:       logx.Nop(),
		Now:       clk.Now,
		FeedRetry: time.Second,
	}
	d.Seed(1, 2)

	eng := engine.New(engine.Config{}, logx.Nop(), eventbus.New(), engine.WithClock(clk))
	eng.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})
	return &harness{deps: d, eng: eng, after: after}
}

func (h *harness) run(t *testing.T, task engine.Task, p engine.Priority) engine.HistoryItem {
	t.Helper()
	if err := h.eng.Enqueue(task, p); err != nil {
		t.Fatalf("Enqueue(%s) = %v", task.Name(), err)
	}
	return h.waitHistory(t, task.Name())
}

func (h *harness) waitHistory(t *testing.T, name string) engine.HistoryItem {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, item := range h.eng.Snapshot().History {
			if item.Name == name {
				return item
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("%s never finished", name)
	return engine.HistoryItem{}
}

func waitRunning(t *testing.T, eng *engine.Service, name string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for eng.Snapshot().Current != name {
		if time.Now().After(deadline) {
			t.Fatalf("%s never started", name)
		}
		time.Sleep(time.Millisecond)
	}
}

func lit(c *display.Canvas) int {
	n := 0
	for y := 0; y < c.Height(); y++ {
		for x := 0; x < c.Width(); x++ {
			if c.At(x, y) != (color.RGBA{}) {
				n++
			}
		}
	}
	return n
}

func TestMessageLandsInInboxAndHandsOverToIdle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		read    bool
		wantLen int
	}{
		{name: "unread", read: false, wantLen: 1},
		{name: "already read", read: true, wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			msg := inbox.NewMessage("hi", nil, tt.read)

			item := h.run(t, h.deps.Message(msg), PriorityMessage)
			if item.Outcome != engine.OutcomeFinished {
				t.Fatalf("outcome = %v, want %v", item.Outcome, engine.OutcomeFinished)
			}
			w := h.deps.Canvas.MeasureText("hi")
			if want := 26 + h.deps.Tune.Int(tune.HoldTime) + w; item.Frames != want {
				t.Fatalf("frames = %d, want %d", item.Frames, want)
			}
			if got := h.deps.Inbox.Len(); got != tt.wantLen {
				t.Fatalf("inbox len = %d, want %d", got, tt.wantLen)
			}
			if got := h.after.names(); len(got) != 1 || got[0] != "idle" {
				t.Fatalf("follow-ups = %v, want [idle]", got)
			}
			if got := h.after.prios[0]; got != PriorityIdle {
				t.Fatalf("follow-up priority = %d, want %d", got, PriorityIdle)
			}
		})
	}
}

func TestMessageWithoutHold(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if err := h.deps.Tune.SetValue(tune.HoldEnable, false); err != nil {
		t.Fatalf("SetValue = %v", err)
	}
	item := h.run(t, h.deps.Message(inbox.NewMessage("x", []string{"rainbow"}, false)), PriorityMessage)
	if want := 26 + h.deps.Canvas.MeasureText("x"); item.Frames != want {
		t.Fatalf("frames = %d, want %d", item.Frames, want)
	}
}

func TestCountdownFinishes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	item := h.run(t, h.deps.Countdown(2), PriorityUrgent)
	if item.Outcome != engine.OutcomeFinished {
		t.Fatalf("outcome = %v, want %v", item.Outcome, engine.OutcomeFinished)
	}
	if got := h.after.names(); len(got) != 1 || got[0] != "idle" {
		t.Fatalf("follow-ups = %v, want [idle]", got)
	}
}

func TestCountdownClampsSeconds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, 0},
		{-5, 0},
		{90, 90 * time.Second},
		{3599, MaxCountdown},
		{3600, MaxCountdown},
		{10_000_000_000, MaxCountdown},
		{math.MaxInt, MaxCountdown},
		{-10_000_000_000, 0},
		{math.MinInt, 0},
	}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	d := &Deps{Now: func() time.Time { return now }}
	for _, tt := range tests {
		if got := d.Countdown(tt.seconds).Target.Sub(now); got != tt.want {
			t.Fatalf("Countdown(%d) target = now+%v, want now+%v", tt.seconds, got, tt.want)
		}
	}
}

func TestCountdownRequeuesItselfWhenInterrupted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := h.deps.Countdown(60)
	if err := h.eng.Enqueue(c, PriorityUrgent); err != nil {
		t.Fatalf("Enqueue = %v", err)
	}
	waitRunning(t, h.eng, "countdown")

	h.run(t, engine.Func("urgent", func(ctx context.Context, f *engine.Frame) error { return nil }), PriorityMessage)

	item := h.waitHistory(t, "countdown")
	if item.Outcome != engine.OutcomeInterrupted {
		t.Fatalf("outcome = %v, want %v", item.Outcome, engine.OutcomeInterrupted)
	}
	h.after.mu.Lock()
	defer h.after.mu.Unlock()
	if len(h.after.tasks) != 1 {
		t.Fatalf("follow-ups = %d, want 1", len(h.after.tasks))
	}
	again, ok := h.after.tasks[0].(*Countdown)
	if !ok || again.Target != c.Target {
		t.Fatalf("requeued %T, want the same countdown", h.after.tasks[0])
	}
	if h.after.prios[0] != PriorityUrgent {
		t.Fatalf("requeue priority = %d, want %d", h.after.prios[0], PriorityUrgent)
	}
}

func TestIdleWithEmptyInboxBlanks(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.deps.Canvas.SetPixel(3, 3, display.White)
	h.deps.Canvas.Update()

	item := h.run(t, h.deps.Idle(), PriorityIdle)
	if item.Outcome != engine.OutcomeFinished {
		t.Fatalf("outcome = %v, want %v", item.Outcome, engine.OutcomeFinished)
	}
	if item.Frames != 1 {
		t.Fatalf("frames = %d, want 1", item.Frames)
	}
	if got := lit(h.deps.Canvas); got != 0 {
		t.Fatalf("lit pixels = %d, want 0", got)
	}
}

func TestIdleSnakeLength(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.deps.Inbox.Add(inbox.NewMessage("a", nil, false))
	h.deps.Inbox.Add(inbox.NewMessage("b", nil, false))

	if err := h.eng.Enqueue(h.deps.Idle(), PriorityIdle); err != nil {
		t.Fatalf("Enqueue = %v", err)
	}
	waitRunning(t, h.eng, "idle")
	for base := h.deps.Canvas.Frames(); h.deps.Canvas.Frames() < base+20; {
		time.Sleep(time.Millisecond)
	}
	h.run(t, h.deps.Stop(), PriorityStop)

	if got := lit(h.deps.Canvas); got != 3 {
		t.Fatalf("lit pixels = %d, want 3", got)
	}
	if item := h.waitHistory(t, "idle"); item.Outcome != engine.OutcomeInterrupted {
		t.Fatalf("idle outcome = %v, want %v", item.Outcome, engine.OutcomeInterrupted)
	}
}

func TestDemoRunsToZero(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	item := h.run(t, h.deps.Demo(), PriorityUrgent)
	if item.Outcome != engine.OutcomeFinished {
		t.Fatalf("outcome = %v, want %v", item.Outcome, engine.OutcomeFinished)
	}
	if want := (DemoFrom+1)*20 + DemoFrom*13; item.Frames != want {
		t.Fatalf("frames = %d, want %d", item.Frames, want)
	}
	if got := h.after.names(); len(got) != 1 || got[0] != "idle" {
		t.Fatalf("follow-ups = %v, want [idle]", got)
	}
}

func TestLocalEpoch(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 1, 10, 30, 0, 0, time.FixedZone("X", 2*3600))
	if got, want := LocalEpoch(at), at.Unix()+7200; got != want {
		t.Fatalf("LocalEpoch = %d, want %d", got, want)
	}
}

func TestClockRunsUntilPreempted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	start := int64(12*3600 + 59*60 + 50)
	if err := h.eng.Enqueue(h.deps.Clock(start), PriorityClock); err != nil {
		t.Fatalf("Enqueue = %v", err)
	}
	waitRunning(t, h.eng, "clock")
	for h.deps.Canvas.Frames() < 600 {
		time.Sleep(time.Millisecond)
	}
	h.run(t, h.deps.Stop(), PriorityStop)
	if item := h.waitHistory(t, "clock"); item.Outcome != engine.OutcomeInterrupted {
		t.Fatalf("outcome = %v, want %v", item.Outcome, engine.OutcomeInterrupted)
	}
	if lit(h.deps.Canvas) == 0 {
		t.Fatalf("clock left the panel blank")
	}
}

type flakySource struct {
	fails atomic.Int32
	calls atomic.Int32
	m     feed.Mission
}

func (s *flakySource) Next(ctx context.Context) (feed.Mission, error) {
	s.calls.Add(1)
	if s.fails.Add(-1) >= 0 {
		return feed.Mission{}, errors.New("unreachable")
	}
	return s.m, nil
}

func (s *flakySource) Mission(ctx context.Context, id string) (feed.Mission, error) {
	return s.m, nil
}

func TestFeedRetriesFirstFetch(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := &flakySource{m: feed.Mission{ID: "m1", TZero: h.deps.now().Add(time.Hour)}}
	src.fails.Store(1)
	h.deps.Missions = src

	if err := h.eng.Enqueue(h.deps.Feed(), PriorityClock); err != nil {
		t.Fatalf("Enqueue = %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for src.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("feed fetched %d times, want 2", src.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
	h.run(t, h.deps.Stop(), PriorityStop)
	if item := h.waitHistory(t, "feed"); item.Outcome != engine.OutcomeInterrupted {
		t.Fatalf("outcome = %v, want %v", item.Outcome, engine.OutcomeInterrupted)
	}
}

func TestFeedWithoutSourceFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	item := h.run(t, h.deps.Feed(), PriorityClock)
	if item.Outcome != engine.OutcomeFailed {
		t.Fatalf("outcome = %v, want %v", item.Outcome, engine.OutcomeFailed)
	}
}
