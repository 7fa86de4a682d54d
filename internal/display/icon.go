package display

// Icon is a 10-row by 16-column bitmap, two bytes per row, most significant
// bit first. Icons are drawn rotated a quarter turn so that a row becomes a
// column on the panel.
type Icon [20]byte

// Icons from https://github.com/halfmage/pixelarticons/.
var (
	Calendar = Icon{
		0b00001111, 0b11111000,
		0b00001000, 0b00101000,
		0b00001000, 0b10101100,
		0b00001000, 0b00101000,
		0b00001000, 0b10101000,
		0b00001000, 0b00101000,
		0b00001000, 0b10101100,
		0b00001000, 0b00101000,
		0b00001111, 0b11111000,
		0b00000000, 0b00000000,
	}
	ClockFace = Icon{
		0b00000111, 0b11110000,
		0b00001000, 0b00001000,
		0b00001000, 0b00001000,
		0b00001000, 0b00001000,
		0b00001001, 0b11101000,
		0b00001001, 0b00001000,
		0b00001001, 0b00001000,
		0b00001000, 0b00001000,
		0b00000111, 0b11110000,
		0b00000000, 0b00000000,
	}
)

// Icon draws ic with the current pen; bit (row, column) lands on
// (x+row, y+15-column).
func (c *Canvas) Icon(ic Icon, x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for row := 0; row < 10; row++ {
		for col := 0; col < 16; col++ {
			b := ic[row*2+col/8]
			if b&(1<<(7-col%8)) != 0 {
				c.setLocked(x+row, y+15-col, c.pen)
			}
		}
	}
}
