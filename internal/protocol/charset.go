package protocol

import "golang.org/x/text/encoding/charmap"

// Device text is one byte per glyph. The low range carries the classic PC
// symbol glyphs, 0x80-0x9F are 2x3 block sextants, and 0xA0-0xFF follow
// Latin-1.
var deviceGlyphs [256]rune

var lowGlyphs = [32]rune{
	' ', '☺', '☻', '♥', '♦', '♣', '♠', '•',
	'◘', ' ', ' ', '♂', '♀', ' ', '♫', '☼',
	'►', '◄', '↕', '‼', '¶', '§', '▬', '↨',
	'↑', '↓', '→', '←', '∟', '↔', '▲', '▼',
}

func init() {
	for b := range 256 {
		deviceGlyphs[b] = glyphFor(byte(b))
	}
}

func glyphFor(b byte) rune {
	switch {
	case b < 0x20:
		return lowGlyphs[b]
	case b < 0x7f:
		return rune(b)
	case b == 0x7f:
		return '░'
	case b < 0xa0:
		return sextant(int(b - 0x80))
	case b == 0xa0:
		return ' '
	case b == 0xad:
		return '-'
	}
	return charmap.ISO8859_1.DecodeByte(b)
}

// sextant returns the glyph whose set cells are the low five bits of n,
// reading left to right and top to bottom.
func sextant(n int) rune {
	switch n {
	case 0:
		return ' '
	case 21:
		return '▌'
	}
	r := rune(0x1fb00 + n - 1)
	if n > 21 {
		r--
	}
	return r
}

// DeviceRune maps one device charset byte to the glyph the device shows.
func DeviceRune(b byte) rune { return deviceGlyphs[b] }

// EncodeDeviceRune maps a typed character to the byte the device expects
// in CharInput. Characters outside Latin-1 have no encoding.
func EncodeDeviceRune(r rune) (byte, bool) {
	return charmap.ISO8859_1.EncodeRune(r)
}
