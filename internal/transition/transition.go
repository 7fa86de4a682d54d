// Package transition renders the rolling change between two strings.
//
// Characters that stay the same are drawn in place; runs of characters that
// changed roll vertically, the old text sliding down and out while the new
// text follows from above.
package transition

// LineHeight and Padding define how far a moving run travels.
const (
	LineHeight = 11
	Padding    = 2
)

type Kind int

const (
	Fixed Kind = iota
	Moving
)

func (k Kind) String() string {
	if k == Fixed {
		return "fixed"
	}
	return "moving"
}

// Segment is a half-open rune range [Start, End).
type Segment struct {
	Kind  Kind
	Start int
	End   int
}

// Segments splits two equal-length strings into maximal runs of equal
// (Fixed) and differing (Moving) runes, in order, covering the whole string.
// It returns nil when the lengths differ or both strings are empty.
func Segments(prev, next string) []Segment {
	return segments([]rune(prev), []rune(next))
}

func segments(a, b []rune) []Segment {
	if len(a) != len(b) || len(a) == 0 {
		return nil
	}
	var out []Segment
	cur := Segment{Kind: kindAt(a, b, 0)}
	for i := 1; i < len(a); i++ {
		if k := kindAt(a, b, i); k != cur.Kind {
			cur.End = i
			out = append(out, cur)
			cur = Segment{Kind: k, Start: i}
		}
	}
	cur.End = len(a)
	return append(out, cur)
}

func kindAt(a, b []rune, i int) Kind {
	if a[i] == b[i] {
		return Fixed
	}
	return Moving
}

// Drawer is the part of a canvas a transition needs.
type Drawer interface {
	Text(s string, x, y int)
	MeasureText(s string) int
}

// Transition is a prepared roll from prev to next.
type Transition struct {
	prev, next []rune
	segs       []Segment
}

func New(prev, next string) *Transition {
	p, n := []rune(prev), []rune(next)
	return &Transition{prev: p, next: n, segs: segments(p, n)}
}

// Frames is the number of steps in the roll. Steps run from 1 to Frames.
func (t *Transition) Frames() int { return LineHeight + Padding }

// Segmented reports whether the roll moves only the changed runs. When the
// strings differ in length the whole string slides instead.
func (t *Transition) Segmented() bool { return len(t.prev) == len(t.next) }

func (t *Transition) Segments() []Segment { return t.segs }

// Draw renders one step. place returns the left edge for a whole string; it
// is applied to next in segmented mode and to each string in slide mode.
func (t *Transition) Draw(d Drawer, step int, place func(string) int, y int) {
	travel := t.Frames()
	next, prev := string(t.next), string(t.prev)

	if !t.Segmented() {
		d.Text(next, place(next), y+step-travel)
		d.Text(prev, place(prev), y+step)
		return
	}

	x := place(next)
	for _, sg := range t.segs {
		text := string(t.next[sg.Start:sg.End])
		if sg.Kind == Fixed {
			d.Text(text, x, y)
		} else {
			d.Text(text, x, y+step-travel)
			d.Text(string(t.prev[sg.Start:sg.End]), x, y+step)
		}
		x += d.MeasureText(text)
	}
}
