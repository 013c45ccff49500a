package terminal

import "github.com/chronologos/ttyrelay/internal/protocol"

// fill marks cells cleared by a fill or scroll. No device byte decodes to
// it, so the next blit over such a cell always counts as a change.
const fill rune = -1

// emptyColor is foreground 0 on background 15.
const emptyColor protocol.Color = 0x0f

// Buffer is the shadow copy of the device screen, stored as two parallel
// arrays indexed by y*width+x.
type Buffer struct {
	width, height int
	chars         []rune
	colors        []protocol.Color
}

func newBuffer(width, height int, r rune) *Buffer {
	b := &Buffer{}
	b.reset(width, height, r)
	return b
}

func (b *Buffer) reset(width, height int, r rune) {
	b.width, b.height = width, height
	b.chars = make([]rune, width*height)
	b.colors = make([]protocol.Color, width*height)
	b.fillRange(0, len(b.chars), r, emptyColor)
}

func (b *Buffer) Width() int  { return b.width }
func (b *Buffer) Height() int { return b.height }

// At returns the cell at (x, y). Filled cells report a space.
func (b *Buffer) At(x, y int) (rune, protocol.Color) {
	i := b.index(x, y)
	r := b.chars[i]
	if r == fill {
		r = ' '
	}
	return r, b.colors[i]
}

func (b *Buffer) index(x, y int) int { return y*b.width + x }

func (b *Buffer) fillRange(from, to int, r rune, c protocol.Color) {
	for i := from; i < to; i++ {
		b.chars[i] = r
		b.colors[i] = c
	}
}

// scroll moves rows up by distance (down when negative) and marks the
// revealed rows as filled.
func (b *Buffer) scroll(distance int) {
	n := len(b.chars)
	switch {
	case distance == 0:
	case distance >= b.height || -distance >= b.height:
		b.fillRange(0, n, fill, emptyColor)
	case distance > 0:
		off := distance * b.width
		copy(b.chars, b.chars[off:])
		copy(b.colors, b.colors[off:])
		b.fillRange(n-off, n, fill, emptyColor)
	default:
		off := -distance * b.width
		copy(b.chars[off:], b.chars[:n-off])
		copy(b.colors[off:], b.colors[:n-off])
		b.fillRange(0, off, fill, emptyColor)
	}
}
