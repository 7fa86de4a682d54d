// Package tune holds animation parameters that can be changed while the
// daemon runs, either from config reloads or the /tune endpoint.
package tune

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrUnknown = errors.New("unknown tunable")
	ErrType    = errors.New("tunable type mismatch")
)

type Kind string

const (
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "str"
	KindBool   Kind = "bool"
)

// Names of the built-in tunables.
const (
	FrameDelayMs           = "frame_delay_ms"
	HoldEnable             = "hold_enable"
	HoldTime               = "hold_time"
	RainbowTimerThreshold  = "rainbow_timer_threshold"
	RainbowFrameMultiplier = "rainbow_frame_multiplier"
	LateFrameEnable        = "late_frame_enable"
	ClockRainbowHoldTime   = "clock_rainbow_hold_time"
	Brightness             = "brightness"
)

type tunable struct {
	kind Kind
	val  any
}

// Set is a registry of named, typed values. It is safe for concurrent use.
type Set struct {
	mu   sync.RWMutex
	vals map[string]tunable

	hmu   sync.Mutex
	hooks []func(name string, v any)
}

// New returns a Set with the built-in tunables at their defaults.
func New() *Set {
	s := &Set{vals: map[string]tunable{}}
	s.Define(FrameDelayMs, KindInt, 24)
	s.Define(HoldEnable, KindBool, true)
	s.Define(HoldTime, KindInt, 60)
	s.Define(RainbowTimerThreshold, KindInt, 10)
	s.Define(RainbowFrameMultiplier, KindInt, 2)
	s.Define(LateFrameEnable, KindBool, true)
	s.Define(ClockRainbowHoldTime, KindInt, 3)
	s.Define(Brightness, KindFloat, 0.5)
	return s
}

// Define registers or replaces a tunable. def must match kind.
func (s *Set) Define(name string, kind Kind, def any) {
	s.mu.Lock()
	s.vals[name] = tunable{kind: kind, val: def}
	s.mu.Unlock()
}

// OnChange registers fn to run after every successful change.
func (s *Set) OnChange(fn func(name string, v any)) {
	s.hmu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hmu.Unlock()
}

// Set parses raw as typ and stores it under name.
//
// Bool tunables also accept typ "int", where any non-zero value is true.
func (s *Set) Set(name, typ, raw string) error {
	name = strings.TrimSpace(name)
	s.mu.RLock()
	cur, ok := s.vals[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknown, name)
	}

	v, err := parse(cur.kind, Kind(strings.ToLower(strings.TrimSpace(typ))), strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return s.store(name, cur.kind, v)
}

// SetValue stores an already typed value.
func (s *Set) SetValue(name string, v any) error {
	s.mu.RLock()
	cur, ok := s.vals[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	if kindOf(v) != cur.kind {
		return fmt.Errorf("%s: %w: have %s, want %s", name, ErrType, kindOf(v), cur.kind)
	}
	return s.store(name, cur.kind, v)
}

func (s *Set) store(name string, kind Kind, v any) error {
	s.mu.Lock()
	s.vals[name] = tunable{kind: kind, val: v}
	s.mu.Unlock()

	s.hmu.Lock()
	hooks := append([]func(string, any){}, s.hooks...)
	s.hmu.Unlock()
	for _, fn := range hooks {
		fn(name, v)
	}
	return nil
}

func parse(want, typ Kind, raw string) (any, error) {
	switch {
	case typ == want:
	case want == KindBool && typ == KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrType, err)
		}
		return n != 0, nil
	default:
		return nil, fmt.Errorf("%w: have %q, want %q", ErrType, typ, want)
	}

	var (
		v   any
		err error
	)
	switch want {
	case KindInt:
		v, err = strconv.Atoi(raw)
	case KindFloat:
		v, err = strconv.ParseFloat(raw, 64)
	case KindBool:
		v, err = strconv.ParseBool(raw)
	case KindString:
		v = raw
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrType, err)
	}
	return v, nil
}

func kindOf(v any) Kind {
	switch v.(type) {
	case int:
		return KindInt
	case float64:
		return KindFloat
	case bool:
		return KindBool
	case string:
		return KindString
	default:
		return Kind(fmt.Sprintf("%T", v))
	}
}

func (s *Set) get(name string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vals[name].val
}

// Int returns 0 for unknown names or other kinds. Float and String follow
// the same rule.
func (s *Set) Int(name string) int {
	v, _ := s.get(name).(int)
	return v
}

func (s *Set) Float(name string) float64 {
	v, _ := s.get(name).(float64)
	return v
}

func (s *Set) Bool(name string) bool {
	v, _ := s.get(name).(bool)
	return v
}

func (s *Set) String(name string) string {
	v, _ := s.get(name).(string)
	return v
}

// FrameDelay is the frame period derived from frame_delay_ms.
func (s *Set) FrameDelay() time.Duration {
	ms := s.Int(FrameDelayMs)
	if ms <= 0 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// Entry describes one tunable for /status.
type Entry struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"type"`
	Value any    `json:"value"`
}

func (s *Set) Snapshot() []Entry {
	s.mu.RLock()
	vals := maps.Clone(s.vals)
	s.mu.RUnlock()

	out := make([]Entry, 0, len(vals))
	for name, t := range vals {
		out = append(out, Entry{Name: name, Kind: t.kind, Value: t.val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
