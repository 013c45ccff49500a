// Package terminal keeps a shadow copy of a device screen and turns device
// draw commands into the smallest ANSI stream that reproduces them.
package terminal

import (
	"errors"
	"unicode/utf8"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/chronologos/ttyrelay/internal/protocol"
)

var ErrInvalidSize = errors.New("terminal size must be positive")

// Emulator owns one session's shadow buffer, palette and cursor state.
// It is not safe for concurrent use.
type Emulator struct {
	palette *Palette
	buf     *Buffer

	// Device cursor.
	cursorX, cursorY int
	// Where the real terminal's cursor is; -1 when unknown.
	realX, realY int
	// -1 unknown, 0 hidden, 1 shown.
	visible int8
	// SGR parameters in effect on the real terminal; empty when unknown.
	fg, bg string

	out []byte
}

// New returns an emulator for a width x height screen.
func New(width, height int, level Level) (*Emulator, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidSize
	}
	return &Emulator{
		palette: NewPalette(level),
		buf:     newBuffer(width, height, ' '),
		realX:   -1,
		realY:   -1,
		visible: -1,
	}, nil
}

func (e *Emulator) Width() int      { return e.buf.width }
func (e *Emulator) Height() int     { return e.buf.height }
func (e *Emulator) Buffer() *Buffer { return e.buf }

// Cursor returns the device cursor position.
func (e *Emulator) Cursor() (x, y int) { return e.cursorX, e.cursorY }

// Apply runs the commands of one Draw packet in order and returns the ANSI
// output. When anything was written the real cursor is parked back on the
// device cursor, so an unchanged screen yields no bytes at all.
func (e *Emulator) Apply(cmds []protocol.DrawCommand) []byte {
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case protocol.Blit:
			e.blit(int(c.X), int(c.Y), c.Text, c.Colors)
		case protocol.Scroll:
			e.scroll(int(c.Distance))
		case protocol.SetCursorVisible:
			e.setCursorVisible(c.Visible)
		case protocol.SetCursorPosition:
			e.moveCursor(int(c.X), int(c.Y))
		case protocol.FillLine:
			e.fillLine(int(c.Line), c.Color)
		case protocol.FillScreen:
			e.fillScreen(c.Color)
		}
	}
	return e.flush()
}

// Blit writes device-charset text at (x, y). Text past the right edge is
// dropped.
func (e *Emulator) Blit(x, y int, text []byte, colors []protocol.Color) []byte {
	e.blit(x, y, text, colors)
	return e.flush()
}

// Scroll moves content up by distance rows, or down when negative.
func (e *Emulator) Scroll(distance int) []byte {
	e.scroll(distance)
	return e.flush()
}

// FillLine clears row line to background color.
func (e *Emulator) FillLine(line int, color uint8) []byte {
	e.fillLine(line, color)
	return e.flush()
}

// FillScreen clears the screen to background color.
func (e *Emulator) FillScreen(color uint8) []byte {
	e.fillScreen(color)
	return e.flush()
}

// MoveCursor moves the device cursor, clamped to the screen.
func (e *Emulator) MoveCursor(x, y int) []byte {
	e.moveCursor(x, y)
	return e.flush()
}

func (e *Emulator) SetCursorVisible(visible bool) []byte {
	e.setCursorVisible(visible)
	return e.flush()
}

// SetPaletteColor changes one palette slot and repaints every cell that
// uses it, since the real terminal has no notion of device palette slots.
func (e *Emulator) SetPaletteColor(index uint8, r, g, b uint8) []byte {
	if index > 15 {
		return nil
	}
	e.palette.Set(int(index), colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255})
	for i, c := range e.buf.colors {
		if c.Fg() == index || c.Bg() == index {
			e.paintCell(i%e.buf.width, i/e.buf.width)
		}
	}
	return e.flush()
}

// ResetPalette restores the default palette and repaints the screen.
func (e *Emulator) ResetPalette() []byte {
	e.palette.Reset()
	return e.Redraw()
}

// Resize reallocates the buffer. Contents are not preserved; the device is
// expected to repaint after it sees the new size.
func (e *Emulator) Resize(width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidSize
	}
	e.buf.reset(width, height, fill)
	e.cursorX = min(e.cursorX, width-1)
	e.cursorY = min(e.cursorY, height-1)
	e.realX, e.realY = -1, -1
	e.setBg(emptyColor.Bg())
	e.out = append(e.out, eraseDisplay...)
	return e.flush(), nil
}

// Redraw paints the whole shadow buffer, for a fresh or corrupted screen.
func (e *Emulator) Redraw() []byte {
	for y := range e.buf.height {
		for x := range e.buf.width {
			e.paintCell(x, y)
		}
	}
	if e.visible >= 0 {
		e.out = appendModes(e.out, e.visible == 1, ModeCursorVisible)
	}
	return e.flush()
}

func (e *Emulator) blit(x, y int, text []byte, colors []protocol.Color) {
	if x < 0 || y < 0 || x >= e.buf.width || y >= e.buf.height {
		return
	}
	n := min(len(text), len(colors), e.buf.width-x)
	first := true
	for i := range n {
		cx := x + i
		r, c := protocol.DeviceRune(text[i]), colors[i]
		idx := e.buf.index(cx, y)
		// Compare palette slots, not resolved RGB: a later SetPaletteColor
		// repaints by slot, so the slot has to be current.
		if e.buf.chars[idx] == r && e.buf.colors[idx] == c {
			continue
		}
		if first || e.realY != y || e.realX < 0 || e.realX > cx {
			e.goTo(cx, y)
			first = false
		} else if gap := cx - e.realX; gap > 0 {
			e.out = appendCursorForward(e.out, gap)
			e.realX = cx
		}
		e.buf.chars[idx], e.buf.colors[idx] = r, c
		e.put(r, c)
	}
}

// paintCell rewrites one cell from the buffer.
func (e *Emulator) paintCell(x, y int) {
	r, c := e.buf.At(x, y)
	e.goTo(x, y)
	e.put(r, c)
}

func (e *Emulator) put(r rune, c protocol.Color) {
	e.setColors(c)
	e.out = utf8.AppendRune(e.out, r)
	e.realX++
	if e.realX >= e.buf.width {
		// Pending wrap: the next write position is terminal specific.
		e.realX, e.realY = -1, -1
	}
}

func (e *Emulator) goTo(x, y int) {
	if e.realX == x && e.realY == y {
		return
	}
	e.out = appendCursorTo(e.out, x, y)
	e.realX, e.realY = x, y
}

func (e *Emulator) setColors(c protocol.Color) {
	fg, bg := e.palette.fgParams(c.Fg()), e.palette.bgParams(c.Bg())
	switch {
	case fg != e.fg && bg != e.bg:
		e.out = appendSGR(e.out, fg, bg)
	case fg != e.fg:
		e.out = appendSGR(e.out, fg)
	case bg != e.bg:
		e.out = appendSGR(e.out, bg)
	}
	e.fg, e.bg = fg, bg
}

func (e *Emulator) setBg(index uint8) {
	if bg := e.palette.bgParams(index); bg != e.bg {
		e.out = appendSGR(e.out, bg)
		e.bg = bg
	}
}

func (e *Emulator) scroll(distance int) {
	if distance == 0 {
		return
	}
	e.buf.scroll(distance)
	e.out = appendScroll(e.out, distance)
}

func (e *Emulator) fillLine(line int, color uint8) {
	if line < 0 || line >= e.buf.height || color > 15 {
		return
	}
	start := e.buf.index(0, line)
	e.buf.fillRange(start, start+e.buf.width, fill, protocol.PackColor(0, color))
	e.setBg(color)
	e.goTo(0, line)
	e.out = append(e.out, eraseLine...)
}

func (e *Emulator) fillScreen(color uint8) {
	if color > 15 {
		return
	}
	e.buf.fillRange(0, len(e.buf.chars), fill, protocol.PackColor(0, color))
	e.setBg(color)
	e.out = append(e.out, eraseDisplay...)
}

func (e *Emulator) moveCursor(x, y int) {
	e.cursorX = max(0, min(x, e.buf.width-1))
	e.cursorY = max(0, min(y, e.buf.height-1))
	e.goTo(e.cursorX, e.cursorY)
}

func (e *Emulator) setCursorVisible(visible bool) {
	v := int8(0)
	if visible {
		v = 1
	}
	if e.visible == v {
		return
	}
	e.visible = v
	e.out = appendModes(e.out, visible, ModeCursorVisible)
}

// flush parks the real cursor on the device cursor if anything was
// written, then hands the output to the caller.
func (e *Emulator) flush() []byte {
	if len(e.out) == 0 {
		return nil
	}
	e.goTo(e.cursorX, e.cursorY)
	out := e.out
	e.out = nil
	return out
}
