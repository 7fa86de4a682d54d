package transition

import (
	"fmt"
	"testing"
)

func TestSegments(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		prev, next string
		want       []Segment
	}{
		{"last digit", "12:59", "12:58", []Segment{{Fixed, 0, 4}, {Moving, 4, 5}}},
		{"all different", "59", "00", []Segment{{Moving, 0, 2}}},
		{"all different clock", "09:59", "10:00", []Segment{{Moving, 0, 2}, {Fixed, 2, 3}, {Moving, 3, 5}}},
		{"hour roll", "12:59", "13:00", []Segment{{Fixed, 0, 1}, {Moving, 1, 2}, {Fixed, 2, 3}, {Moving, 3, 5}}},
		{"identical", "04:20", "04:20", []Segment{{Fixed, 0, 5}}},
		{"first only", "19:00", "29:00", []Segment{{Moving, 0, 1}, {Fixed, 1, 5}}},
		{"alternating", "abcd", "xbyd", []Segment{{Moving, 0, 1}, {Fixed, 1, 2}, {Moving, 2, 3}, {Fixed, 3, 4}}},
		{"multibyte runes", "ü1", "ü2", []Segment{{Fixed, 0, 1}, {Moving, 1, 2}}},
		{"unequal length", "9:59", "10:00", nil},
		{"empty", "", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Segments(tt.prev, tt.next)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Fatalf("Segments(%q, %q) = %v, want %v", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

func TestSegmentsCoverString(t *testing.T) {
	t.Parallel()
	prev, next := "01:23:45", "01:24:50"
	segs := Segments(prev, next)
	pos := 0
	for i, sg := range segs {
		if sg.Start != pos {
			t.Fatalf("segment %d starts at %d, want %d", i, sg.Start, pos)
		}
		if i > 0 && segs[i-1].Kind == sg.Kind {
			t.Fatalf("adjacent segments %d and %d share kind %v", i-1, i, sg.Kind)
		}
		pos = sg.End
	}
	if pos != len(next) {
		t.Fatalf("segments end at %d, want %d", pos, len(next))
	}
}

type textCall struct {
	s    string
	x, y int
}

// fixedWidth measures every rune as 4 pixels.
type fixedWidth struct{ calls []textCall }

func (d *fixedWidth) Text(s string, x, y int)  { d.calls = append(d.calls, textCall{s, x, y}) }
func (d *fixedWidth) MeasureText(s string) int { return 4 * len([]rune(s)) }

func TestDrawSegmented(t *testing.T) {
	t.Parallel()
	tr := New("12:59", "12:58")
	if !tr.Segmented() {
		t.Fatal("Segmented = false, want true")
	}
	if tr.Frames() != 13 {
		t.Fatalf("Frames = %d, want 13", tr.Frames())
	}

	d := &fixedWidth{}
	tr.Draw(d, 5, func(string) int { return 10 }, -2)

	want := []textCall{
		{"12:5", 10, -2},
		{"8", 26, -2 + 5 - 13},
		{"9", 26, -2 + 5},
	}
	if fmt.Sprint(d.calls) != fmt.Sprint(want) {
		t.Fatalf("Draw calls = %v, want %v", d.calls, want)
	}
}

func TestDrawSlideFallback(t *testing.T) {
	t.Parallel()
	tr := New("HOLD", "1:02:03")
	if tr.Segmented() {
		t.Fatal("Segmented = true, want false")
	}

	d := &fixedWidth{}
	place := func(s string) int { return 20 - d.MeasureText(s)/2 }
	tr.Draw(d, 13, place, 0)

	want := []textCall{
		{"1:02:03", 6, 0},
		{"HOLD", 12, 13},
	}
	if fmt.Sprint(d.calls) != fmt.Sprint(want) {
		t.Fatalf("Draw calls = %v, want %v", d.calls, want)
	}
}
