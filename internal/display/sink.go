package display

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Sink receives every displayed frame.
type Sink interface {
	Show(img *image.RGBA) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(img *image.RGBA) error

func (f SinkFunc) Show(img *image.RGBA) error { return f(img) }

// NewSink builds a sink by name: "none", "terminal" or "auto" (terminal when
// stdout is a TTY).
func NewSink(kind string) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "none":
		return nil, nil
	case "terminal":
		return NewTerminal(os.Stdout), nil
	case "auto":
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return NewTerminal(os.Stdout), nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown display sink %q", kind)
	}
}

// Terminal renders frames with 24-bit ANSI colour, two panel rows per text
// line using upper half blocks.
type Terminal struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: bufio.NewWriter(w)}
}

func (t *Terminal) Show(img *image.RGBA) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := img.Bounds()
	// Home the cursor so each frame overwrites the previous one.
	t.w.WriteString("\x1b[H")
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		for x := b.Min.X; x < b.Max.X; x++ {
			top := img.RGBAAt(x, y)
			fmt.Fprintf(t.w, "\x1b[38;2;%d;%d;%dm", top.R, top.G, top.B)
			if y+1 < b.Max.Y {
				bot := img.RGBAAt(x, y+1)
				fmt.Fprintf(t.w, "\x1b[48;2;%d;%d;%dm", bot.R, bot.G, bot.B)
			} else {
				t.w.WriteString("\x1b[49m")
			}
			t.w.WriteString("▀")
		}
		t.w.WriteString("\x1b[0m\n")
	}
	return t.w.Flush()
}

// WritePNG encodes img scaled up by an integer factor.
func WritePNG(w io.Writer, img *image.RGBA, scale int) error {
	if scale <= 1 {
		return png.Encode(w, img)
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	for y := 0; y < out.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx(); x++ {
			out.SetRGBA(x, y, img.RGBAAt(b.Min.X+x/scale, b.Min.Y+y/scale))
		}
	}
	return png.Encode(w, out)
}
