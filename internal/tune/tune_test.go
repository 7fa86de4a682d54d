package tune

import (
	"errors"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Parallel()
	s := New()
	if got := s.FrameDelay(); got != 24*time.Millisecond {
		t.Fatalf("FrameDelay = %v, want 24ms", got)
	}
	if !s.Bool(HoldEnable) || s.Int(HoldTime) != 60 {
		t.Fatalf("hold = %v/%d, want true/60", s.Bool(HoldEnable), s.Int(HoldTime))
	}
	if got := s.Float(Brightness); got != 0.5 {
		t.Fatalf("Brightness = %v, want 0.5", got)
	}
}

func TestSet(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		tunable string
		typ     string
		raw     string
		wantErr error
		check   func(s *Set) bool
	}{
		{"int", FrameDelayMs, "int", "40", nil, func(s *Set) bool { return s.FrameDelay() == 40*time.Millisecond }},
		{"float", Brightness, "float", "0.25", nil, func(s *Set) bool { return s.Float(Brightness) == 0.25 }},
		{"bool", HoldEnable, "bool", "false", nil, func(s *Set) bool { return !s.Bool(HoldEnable) }},
		{"bool from int", LateFrameEnable, "int", "0", nil, func(s *Set) bool { return !s.Bool(LateFrameEnable) }},
		{"unknown", "nope", "int", "1", ErrUnknown, nil},
		{"wrong type", HoldTime, "float", "1.5", ErrType, nil},
		{"bad value", HoldTime, "int", "soon", ErrType, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New()
			err := s.Set(tt.tunable, tt.typ, tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Set = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Set = %v", err)
			}
			if !tt.check(s) {
				t.Fatalf("value not applied: %+v", s.Snapshot())
			}
		})
	}
}

func TestOnChangeAndStrings(t *testing.T) {
	t.Parallel()
	s := New()
	s.Define("greeting", KindString, "hi")

	var seen []string
	s.OnChange(func(name string, v any) { seen = append(seen, name) })

	if err := s.Set("greeting", "str", "hello"); err != nil {
		t.Fatalf("Set = %v", err)
	}
	if err := s.SetValue(HoldTime, 10); err != nil {
		t.Fatalf("SetValue = %v", err)
	}
	if err := s.SetValue(HoldTime, "10"); !errors.Is(err, ErrType) {
		t.Fatalf("SetValue(string) = %v, want %v", err, ErrType)
	}
	if s.String("greeting") != "hello" || s.Int(HoldTime) != 10 {
		t.Fatalf("values = %q/%d", s.String("greeting"), s.Int(HoldTime))
	}
	if len(seen) != 2 || seen[0] != "greeting" || seen[1] != HoldTime {
		t.Fatalf("hooks saw %v", seen)
	}

	snap := s.Snapshot()
	for i := 1; i < len(snap); i++ {
		if snap[i-1].Name > snap[i].Name {
			t.Fatalf("Snapshot not sorted: %v", snap)
		}
	}
}
