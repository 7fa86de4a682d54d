package display

import (
	"image/color"
	"math"
)

var (
	Black  = color.RGBA{0, 0, 0, 255}
	White  = color.RGBA{255, 255, 255, 255}
	Red    = color.RGBA{255, 0, 0, 255}
	Green  = color.RGBA{0, 255, 0, 255}
	Blue   = color.RGBA{0, 0, 255, 255}
	Yellow = color.RGBA{255, 255, 0, 255}
)

// HSV converts hue, saturation and value in [0, 1] to an opaque color.
func HSV(h, s, v float64) color.RGBA {
	h = h - math.Floor(h)
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return color.RGBA{to8(r), to8(g), to8(b), 255}
}

func to8(v float64) uint8 { return uint8(math.Round(min(max(v, 0), 1) * 255)) }

// Rainbow recolours every pixel whose red channel is saturated along a
// diagonal hue gradient of 2*width steps, shifted by frame*multiplier.
// White text and pixels drawn in red pick up the effect; anything else is
// left alone.
func (c *Canvas) Rainbow(frame, multiplier int) {
	n := 2 * c.w
	c.mu.Lock()
	defer c.mu.Unlock()
	for y := 0; y < c.h; y++ {
		for x := 0; x < c.w; x++ {
			i := y*c.w + x
			if c.back[i].R != 255 {
				continue
			}
			idx := ((x+y+frame*multiplier)%n + n) % n
			c.back[i] = HSV(float64(idx)/float64(n), 1, 1)
		}
	}
}
