// Package inbox keeps messages that were shown but not yet acknowledged.
// The inbox lives in memory only.
package inbox

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EffectRainbow renders the message with the rainbow effect.
const EffectRainbow = "rainbow"

type Message struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Effects    []string  `json:"effects,omitempty"`
	Read       bool      `json:"read"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewMessage stamps a message with a fresh ID and the current time.
func NewMessage(text string, effects []string, read bool) Message {
	return Message{
		ID:         uuid.NewString(),
		Text:       text,
		Effects:    normalizeEffects(effects),
		Read:       read,
		ReceivedAt: time.Now(),
	}
}

func (m Message) HasEffect(name string) bool {
	return slices.Contains(m.Effects, name)
}

func normalizeEffects(in []string) []string {
	var out []string
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}

// Inbox is safe for concurrent use.
type Inbox struct {
	mu   sync.Mutex
	msgs []Message
	max  int
}

// New returns an inbox holding at most limit messages; the oldest is dropped
// first. limit <= 0 means unbounded.
func New(limit int) *Inbox {
	return &Inbox{max: limit}
}

// SetMax changes the bound, trimming if needed.
func (b *Inbox) SetMax(limit int) {
	b.mu.Lock()
	b.max = limit
	b.trimLocked()
	b.mu.Unlock()
}

func (b *Inbox) Add(m Message) {
	b.mu.Lock()
	b.msgs = append(b.msgs, m)
	b.trimLocked()
	b.mu.Unlock()
}

func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// List returns a copy in arrival order.
func (b *Inbox) List() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.msgs)
}

// TakeAll empties the inbox and returns its messages marked read.
func (b *Inbox) TakeAll() []Message {
	b.mu.Lock()
	out := b.msgs
	b.msgs = nil
	b.mu.Unlock()

	for i := range out {
		out[i].Read = true
	}
	return out
}

// Clear empties the inbox and reports how many messages were dropped.
func (b *Inbox) Clear() int {
	b.mu.Lock()
	n := len(b.msgs)
	b.msgs = nil
	b.mu.Unlock()
	return n
}

func (b *Inbox) trimLocked() {
	if b.max > 0 && len(b.msgs) > b.max {
		b.msgs = slices.Clone(b.msgs[len(b.msgs)-b.max:])
	}
}
