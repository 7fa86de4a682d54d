// Package display holds the in-memory pixel canvas animations draw on.
//
// Canvas implements tinygo's drivers.Displayer so tinyfont can render text
// into it. Drawing goes to a back buffer; Display publishes it as the current
// frame and hands a copy to every configured Sink.
package display

import (
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"

	logx "marquee/pkg/logx"
)

// Default panel geometry.
const (
	DefaultWidth  = 53
	DefaultHeight = 11
)

// textBaseline is the distance from a text line's top to the font baseline.
const textBaseline = 10

var _ drivers.Displayer = (*Canvas)(nil)

type Canvas struct {
	mu    sync.Mutex
	w, h  int
	back  []color.RGBA
	front []color.RGBA
	pen   color.RGBA

	font       tinyfont.Fonter
	brightness atomic.Uint64 // percent, 0..100
	sinks      []Sink

	frames   atomic.Uint64
	sinkErrs atomic.Uint64
	log      logx.Logger
}

type Option func(*Canvas)

func WithSinks(s ...Sink) Option { return func(c *Canvas) { c.sinks = append(c.sinks, s...) } }

func WithLogger(log logx.Logger) Option { return func(c *Canvas) { c.log = log } }

func WithFont(f tinyfont.Fonter) Option { return func(c *Canvas) { c.font = f } }

func New(w, h int, opts ...Option) *Canvas {
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	c := &Canvas{
		w:     w,
		h:     h,
		back:  make([]color.RGBA, w*h),
		front: make([]color.RGBA, w*h),
		pen:   White,
		font:  &tinyfont.TomThumb,
		log:   logx.Nop(),
	}
	c.brightness.Store(100)
	for _, o := range opts {
		o(c)
	}
	c.fill(c.back, Black)
	c.fill(c.front, Black)
	return c
}

func (c *Canvas) Width() int  { return c.w }
func (c *Canvas) Height() int { return c.h }

// Size implements drivers.Displayer.
func (c *Canvas) Size() (x, y int16) { return int16(c.w), int16(c.h) }

// SetPixel implements drivers.Displayer. Out-of-range pixels are clipped.
func (c *Canvas) SetPixel(x, y int16, col color.RGBA) {
	c.mu.Lock()
	c.setLocked(int(x), int(y), col)
	c.mu.Unlock()
}

// Display implements drivers.Displayer. It publishes the back buffer as the
// current frame and pushes it to the sinks.
func (c *Canvas) Display() error {
	c.mu.Lock()
	copy(c.front, c.back)
	sinks := c.sinks
	c.mu.Unlock()
	c.frames.Add(1)

	if len(sinks) == 0 {
		return nil
	}
	img := c.Snapshot()
	var firstErr error
	for _, s := range sinks {
		if err := s.Show(img); err != nil {
			c.sinkErrs.Add(1)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Update is Display for callers that do not care about sink errors.
func (c *Canvas) Update() {
	if err := c.Display(); err != nil {
		c.log.Debug("display sink failed", logx.Err(err))
	}
}

func (c *Canvas) SetPen(col color.RGBA) {
	c.mu.Lock()
	c.pen = col
	c.mu.Unlock()
}

func (c *Canvas) Pen() color.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pen
}

// Clear fills the back buffer with the current pen.
func (c *Canvas) Clear() {
	c.mu.Lock()
	c.fill(c.back, c.pen)
	c.mu.Unlock()
}

// Blank clears to black and leaves the pen white, the state every animation
// frame starts from.
func (c *Canvas) Blank() {
	c.mu.Lock()
	c.fill(c.back, Black)
	c.pen = White
	c.mu.Unlock()
}

func (c *Canvas) Pixel(x, y int) {
	c.mu.Lock()
	c.setLocked(x, y, c.pen)
	c.mu.Unlock()
}

// Line draws with the current pen using Bresenham's algorithm.
func (c *Canvas) Line(x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		c.setLocked(x0, y0, c.pen)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// Border outlines the whole panel.
func (c *Canvas) Border(col color.RGBA) {
	c.mu.Lock()
	for x := 0; x < c.w; x++ {
		c.setLocked(x, 0, col)
		c.setLocked(x, c.h-1, col)
	}
	for y := 0; y < c.h; y++ {
		c.setLocked(0, y, col)
		c.setLocked(c.w-1, y, col)
	}
	c.mu.Unlock()
}

// Text draws s with its line top at y using the current pen.
func (c *Canvas) Text(s string, x, y int) {
	if s == "" || x >= c.w || y >= c.h {
		return
	}
	// tinyfont takes int16 coordinates; anything further left or up is off
	// the panel anyway and would wrap.
	if x < math.MinInt16 || y < math.MinInt16 {
		return
	}
	pen := c.Pen()
	tinyfont.WriteLine(c, c.font, int16(x), int16(y+textBaseline), s, pen)
}

// MeasureText returns the advance width of s in pixels.
func (c *Canvas) MeasureText(s string) int {
	if s == "" {
		return 0
	}
	_, outbox := tinyfont.LineWidth(c.font, s)
	return int(outbox)
}

// At reads the back buffer.
func (c *Canvas) At(x, y int) color.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if x < 0 || y < 0 || x >= c.w || y >= c.h {
		return color.RGBA{}
	}
	return c.back[y*c.w+x]
}

// SetBrightness scales sink and snapshot output, 0..1.
func (c *Canvas) SetBrightness(b float64) {
	b = min(max(b, 0), 1)
	c.brightness.Store(uint64(b*100 + 0.5))
}

func (c *Canvas) Brightness() float64 { return float64(c.brightness.Load()) / 100 }

// Snapshot returns the last displayed frame with brightness applied.
func (c *Canvas) Snapshot() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.w, c.h))
	pct := uint32(c.brightness.Load())

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, px := range c.front {
		x, y := i%c.w, i/c.w
		img.SetRGBA(x, y, color.RGBA{
			R: uint8(uint32(px.R) * pct / 100),
			G: uint8(uint32(px.G) * pct / 100),
			B: uint8(uint32(px.B) * pct / 100),
			A: 255,
		})
	}
	return img
}

// Frames counts Display calls.
func (c *Canvas) Frames() uint64 { return c.frames.Load() }

func (c *Canvas) SinkErrors() uint64 { return c.sinkErrs.Load() }

func (c *Canvas) setLocked(x, y int, col color.RGBA) {
	if x < 0 || y < 0 || x >= c.w || y >= c.h {
		return
	}
	c.back[y*c.w+x] = col
}

func (c *Canvas) fill(buf []color.RGBA, col color.RGBA) {
	for i := range buf {
		buf[i] = col
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
