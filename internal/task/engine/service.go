package engine

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"marquee/internal/eventbus"
	rtsup "marquee/internal/runtime/supervisor"
	logx "marquee/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Service owns the animation queue and the preemption state. At most one
// runner goroutine executes animations at any time.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	clock  Clock
	period func() time.Duration
	onLate func(f *Frame)

	queue entryHeap
	seq   uint64

	// Preemption state. Reset when the queue drains.
	running    bool
	current    Priority
	hasCurrent bool
	currName   string
	interrupt  bool

	sup     *rtsup.Supervisor
	started bool
	stopped bool

	interrupts atomic.Uint64
	dropped    atomic.Uint64
	lateFrames atomic.Uint64

	lastQueueFullWarnAt atomic.Int64

	hmu     sync.Mutex
	history []HistoryItem
}

type Option func(*Service)

// WithClock replaces the pacing clock.
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithPeriod sets a period source read at every frame.
func WithPeriod(fn func() time.Duration) Option { return func(s *Service) { s.period = fn } }

// WithLateFrame installs a hook called from Frame.Next after a late frame.
func WithLateFrame(fn func(f *Frame)) Option { return func(s *Service) { s.onLate = fn } }

func New(cfg Config, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg.withDefaults(),
		log:   log,
		bus:   bus,
		clock: SystemClock{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.period == nil {
		s.period = func() time.Duration {
			s.mu.Lock()
			d := s.cfg.FrameDelay
			s.mu.Unlock()
			return d
		}
	}
	return s
}

// Apply swaps the queue cap, history size and default frame delay.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Start enables the runner. Entries queued before Start begin running now.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	if s.queue.Len() > 0 && !s.running {
		top := s.queue[0]
		s.running = true
		s.current, s.hasCurrent = top.priority, true
		s.spawnLocked()
	}
	s.log.Info("animation scheduler started", logx.Int("max_queue", s.cfg.MaxQueue), logx.Duration("frame_delay", s.cfg.FrameDelay))
}

// Stop cancels the running animation, discards the queue and waits for the
// runner to exit or ctx to expire.
func (s *Service) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	discarded := s.queue.Len()
	s.queue = nil
	sup := s.sup
	s.mu.Unlock()

	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	if err != nil {
		s.log.Warn("animation scheduler stop timed out", logx.Err(err))
		return err
	}
	s.log.Info("animation scheduler stopped", logx.Int("discarded", discarded))
	return nil
}

// Supervisor exposes the runner supervisor for /status (nil before Start).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Enqueue schedules t at priority p. It never blocks.
//
// If a runner is active and p is strictly more urgent than the running
// animation, the running animation is asked to yield at its next frame.
// If no runner is active one is started.
func (s *Service) Enqueue(t Task, p Priority) error {
	if t == nil {
		return ErrNilTask
	}
	now := time.Now()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if p >= 0 && s.queue.Len() >= s.cfg.MaxQueue {
		qlen, qcap := s.queue.Len(), s.cfg.MaxQueue
		s.mu.Unlock()
		s.onQueueFull(now, t, p, qlen, qcap)
		return ErrQueueFull
	}

	s.seq++
	seq := s.seq
	heap.Push(&s.queue, entry{task: t, priority: p, seq: seq, enqueuedAt: now})

	preempt := false
	switch {
	case s.running:
		if s.hasCurrent && p < s.current {
			s.interrupt = true
			preempt = true
		}
	case s.started:
		s.running = true
		s.current, s.hasCurrent = p, true
		s.spawnLocked()
	}
	s.mu.Unlock()

	if preempt {
		s.interrupts.Add(1)
	}
	s.log.Debug("animation.queued", logx.String("animation", t.Name()), logx.Int("priority", int(p)), logx.Uint64("seq", seq), logx.Bool("preempt", preempt))
	s.publish(eventbus.AnimationQueued, AnimationEvent{Seq: seq, Name: t.Name(), Priority: p})
	return nil
}

// Clear discards every pending entry without touching the running animation.
func (s *Service) Clear() int {
	s.mu.Lock()
	n := s.queue.Len()
	s.queue = nil
	s.mu.Unlock()
	return n
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Running:            s.running,
		InterruptRequested: s.interrupt,
		QueueLen:           s.queue.Len(),
		QueueCap:           s.cfg.MaxQueue,
		Sequence:           s.seq,
	}
	if s.hasCurrent && s.running {
		p := s.current
		snap.CurrentPriority = &p
		snap.Current = s.currName
	}
	queued := make(entryHeap, len(s.queue))
	copy(queued, s.queue)
	s.mu.Unlock()

	// Drain the copy to list entries in run order.
	snap.Queued = make([]QueuedItem, 0, len(queued))
	for queued.Len() > 0 {
		e := heap.Pop(&queued).(entry)
		snap.Queued = append(snap.Queued, QueuedItem{Seq: e.seq, Name: e.task.Name(), Priority: e.priority, EnqueuedAt: e.enqueuedAt})
	}

	snap.Interrupts = s.interrupts.Load()
	snap.Dropped = s.dropped.Load()
	snap.LateFrames = s.lateFrames.Load()

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) interruptRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupt
}

func (s *Service) currentPriority() (Priority, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasCurrent
}

func (s *Service) frameLate(f *Frame) {
	s.lateFrames.Add(1)
	if s.onLate != nil {
		s.onLate(f)
	}
}

func (s *Service) publish(typ string, ev AnimationEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func (s *Service) record(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) shouldWarn(last *atomic.Int64, now time.Time) bool {
	prev := last.Load()
	n := now.UnixNano()
	if prev != 0 && (n-prev) < int64(warnThrottleEvery) {
		return false
	}
	return last.CompareAndSwap(prev, n)
}

func (s *Service) onQueueFull(now time.Time, t Task, p Priority, qlen, qcap int) {
	s.dropped.Add(1)
	s.publish(eventbus.AnimationDropped, AnimationEvent{Name: t.Name(), Priority: p, Error: "queue_full"})
	if s.shouldWarn(&s.lastQueueFullWarnAt, now) {
		s.log.Warn("animation dropped: queue full",
			logx.String("animation", t.Name()),
			logx.Int("priority", int(p)),
			logx.Int("queue_len", qlen),
			logx.Int("queue_cap", qcap),
			logx.Uint64("dropped", s.dropped.Load()),
		)
	}
}
