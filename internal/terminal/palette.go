package terminal

import (
	"fmt"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Level is the color depth used when baking palette indices into SGR codes.
type Level int

const (
	Level16 Level = iota
	Level256
	LevelTrueColor
)

func (l Level) String() string {
	switch l {
	case Level16:
		return "16"
	case Level256:
		return "256"
	case LevelTrueColor:
		return "truecolor"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel accepts "16", "256" and "truecolor" (or "24bit").
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "16", "ansi16":
		return Level16, nil
	case "256", "ansi256":
		return Level256, nil
	case "truecolor", "24bit":
		return LevelTrueColor, nil
	}
	return 0, fmt.Errorf("unknown color level %q", s)
}

var defaultColors = [16]uint32{
	0xf0f0f0, 0xf2b233, 0xe57fd8, 0x99b2f2,
	0xdede6c, 0x7fcc19, 0xf2b2cc, 0x4c4c4c,
	0x999999, 0x4c99b2, 0xb266e5, 0x3366cc,
	0x7f664c, 0x57a64e, 0xcc4c4c, 0x111111,
}

// xterm's standard 16 colors, used as quantization targets for Level16.
var ansi16 = [16]uint32{
	0x000000, 0xcd0000, 0x00cd00, 0xcdcd00, 0x0000ee, 0xcd00cd, 0x00cdcd, 0xe5e5e5,
	0x7f7f7f, 0xff0000, 0x00ff00, 0xffff00, 0x5c5cff, 0xff00ff, 0x00ffff, 0xffffff,
}

// xterm 256-color entries 16..255: a 6x6x6 cube then a gray ramp.
var ansi256 [240]colorful.Color

func init() {
	levels := [6]uint32{0, 95, 135, 175, 215, 255}
	i := 0
	for r := range 6 {
		for g := range 6 {
			for b := range 6 {
				ansi256[i] = rgb(levels[r]<<16 | levels[g]<<8 | levels[b])
				i++
			}
		}
	}
	for gray := range 24 {
		v := uint32(8 + 10*gray)
		ansi256[i] = rgb(v<<16 | v<<8 | v)
		i++
	}
}

func rgb(v uint32) colorful.Color {
	return colorful.Color{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
	}
}

// Palette holds the 16 device colors and their SGR parameters at one level.
type Palette struct {
	level  Level
	colors [16]colorful.Color
	fg, bg [16]string
}

// NewPalette returns the default palette baked at level.
func NewPalette(level Level) *Palette {
	p := &Palette{level: level}
	p.Reset()
	return p
}

// Reset restores every slot to its default color.
func (p *Palette) Reset() {
	for i, v := range defaultColors {
		p.Set(i, rgb(v))
	}
}

// Set replaces slot i. Indices outside [0, 15] are ignored.
func (p *Palette) Set(i int, c colorful.Color) {
	if i < 0 || i > 15 {
		return
	}
	p.colors[i] = c
	p.fg[i], p.bg[i] = sgrParams(c, p.level)
}

// Color returns slot i.
func (p *Palette) Color(i int) colorful.Color { return p.colors[i&0x0f] }

func (p *Palette) fgParams(i uint8) string { return p.fg[i&0x0f] }
func (p *Palette) bgParams(i uint8) string { return p.bg[i&0x0f] }

func sgrParams(c colorful.Color, level Level) (fg, bg string) {
	switch level {
	case Level16:
		n := nearest16(c)
		if n < 8 {
			return strconv.Itoa(30 + n), strconv.Itoa(40 + n)
		}
		return strconv.Itoa(90 + n - 8), strconv.Itoa(100 + n - 8)
	case Level256:
		n := strconv.Itoa(nearest256(c))
		return "38;5;" + n, "48;5;" + n
	default:
		r, g, b := c.Clamped().RGB255()
		triple := fmt.Sprintf("%d;%d;%d", r, g, b)
		return "38;2;" + triple, "48;2;" + triple
	}
}

func nearest16(c colorful.Color) int {
	best, bestDist := 0, -1.0
	for i, v := range ansi16 {
		if d := c.DistanceLab(rgb(v)); bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func nearest256(c colorful.Color) int {
	best, bestDist := 0, -1.0
	for i, v := range ansi256 {
		if d := c.DistanceLab(v); bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return 16 + best
}
