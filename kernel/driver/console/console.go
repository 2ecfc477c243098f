// Package console models the character-grid console contract that a concrete
// framebuffer or EGA driver would satisfy. Rendering onto real hardware
// happens elsewhere; FramebufferConsole below is a software implementation
// used by the early terminal and by tests.
package console

// Attr defines a color attribute.
type Attr uint16

// The set of attributes that can be passed to Write().
const (
	Black Attr = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGrey
	Grey
	LightBlue
	LightGreen
	LightCyan
	LightRed
	LightMagenta
	LightBrown
	White
)

// ScrollDir defines a scroll direction.
type ScrollDir uint8

const (
	Up ScrollDir = iota
	Down
)

// Console is implemented by objects that can function as a physical or
// virtual character-grid console.
type Console interface {
	// Dimensions returns the width and height of the console in characters.
	Dimensions() (uint16, uint16)

	// Clear clears the specified rectangular region.
	Clear(x, y, width, height uint16)

	// Scroll scrolls a particular number of lines in the specified direction.
	Scroll(dir ScrollDir, lines uint16)

	// Write writes a char to the specified location.
	Write(ch byte, attr Attr, x, y uint16)
}

// FramebufferConsole is a software grid console. On real hardware this
// would be backed by a Limine-supplied linear framebuffer; here it is
// backed by a plain Go slice so the terminal built on top of it is
// host-testable without a real display.
type FramebufferConsole struct {
	width, height uint16
	cells         []cell
}

type cell struct {
	ch   byte
	attr Attr
}

// Init sizes the console to width x height characters.
func (c *FramebufferConsole) Init(width, height uint16) {
	c.width, c.height = width, height
	c.cells = make([]cell, int(width)*int(height))
}

func (c *FramebufferConsole) Dimensions() (uint16, uint16) { return c.width, c.height }

func (c *FramebufferConsole) index(x, y uint16) int { return int(y)*int(c.width) + int(x) }

func (c *FramebufferConsole) Clear(x, y, width, height uint16) {
	for row := y; row < y+height && row < c.height; row++ {
		for col := x; col < x+width && col < c.width; col++ {
			c.cells[c.index(col, row)] = cell{ch: ' '}
		}
	}
}

func (c *FramebufferConsole) Scroll(dir ScrollDir, lines uint16) {
	if lines == 0 || lines >= c.height {
		c.Clear(0, 0, c.width, c.height)
		return
	}

	switch dir {
	case Up:
		copy(c.cells, c.cells[int(lines)*int(c.width):])
		c.Clear(0, c.height-lines, c.width, lines)
	case Down:
		copy(c.cells[int(lines)*int(c.width):], c.cells)
		c.Clear(0, 0, c.width, lines)
	}
}

func (c *FramebufferConsole) Write(ch byte, attr Attr, x, y uint16) {
	if x >= c.width || y >= c.height {
		return
	}
	c.cells[c.index(x, y)] = cell{ch: ch, attr: attr}
}

// Snapshot returns the console contents as lines of text, ignoring color
// attributes. It exists purely to make the terminal's output assertable in
// tests.
func (c *FramebufferConsole) Snapshot() []string {
	lines := make([]string, c.height)
	for y := uint16(0); y < c.height; y++ {
		buf := make([]byte, c.width)
		for x := uint16(0); x < c.width; x++ {
			ch := c.cells[c.index(x, y)].ch
			if ch == 0 {
				ch = ' '
			}
			buf[x] = ch
		}
		lines[y] = string(buf)
	}
	return lines
}
