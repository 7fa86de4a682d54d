package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by marquee components.
const (
	AnimationQueued      = "animation.queued"
	AnimationStarted     = "animation.started"
	AnimationFinished    = "animation.finished"
	AnimationInterrupted = "animation.interrupted"
	AnimationCleared     = "animation.cleared"
	AnimationFailed      = "animation.failed"
	AnimationDropped     = "animation.dropped"

	TriggerFired  = "trigger.fired"
	InboxChanged  = "inbox.changed"
	ScheduleFired = "schedule.fired"
	ConfigApplied = "config.applied"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking (it is called from the scheduler while it
//     decides what owns the display).
//   - Subscribers MUST use buffered channels; slow subscribers drop events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64

	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock; unsubscribe closes under the write lock,
	// so a send never races a close.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
