// Package input decodes the raw byte stream of an SSH terminal into key,
// character and mouse events.
package input

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

const (
	esc = 0x1b

	// InterruptByte (Ctrl-T) is never forwarded as a key. It aborts the
	// session instead.
	InterruptByte = 0x14

	// CancelByte (Ctrl-C) also cancels a pairing wait.
	CancelByte = 0x03

	maxCSILen = 32
)

// Decoder turns a terminal input stream into Events, preserving order.
type Decoder struct {
	r       *bufio.Reader
	pending []Event
}

// NewDecoder reads UTF-8 input from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks until the next event is available. It returns the reader's
// error (io.EOF at end of input) once all buffered events are delivered.
func (d *Decoder) Next() (Event, error) {
	for len(d.pending) == 0 {
		r, _, err := d.r.ReadRune()
		if err != nil {
			return nil, err
		}
		d.decode(r)
	}
	ev := d.pending[0]
	d.pending = d.pending[1:]
	return ev, nil
}

func (d *Decoder) emit(ev Event) { d.pending = append(d.pending, ev) }

func (d *Decoder) keys(codes ...Key) { d.emit(Keys{Codes: codes}) }

func (d *Decoder) decode(r rune) {
	switch {
	case r == esc:
		d.escape()
		return
	case r == '\t':
		d.keys(KeyTab)
	case r == '\b' || r == 0x7f:
		d.keys(KeyBackspace)
	case r == '\n' || r == '\r':
		d.keys(KeyEnter)
	case r == InterruptByte:
		d.emit(Interrupt{})
	case r < 0x20:
		d.keys(KeyLeftControl, controlKey(r))
	default:
		if codes, ok := KeysForRune(r); ok {
			d.keys(codes...)
		}
	}
	if (r >= 32 && r <= 126) || (r >= 160 && r <= 255) {
		d.emit(Char{Rune: r})
	}
}

// controlKey maps a C0 byte to the key held with Control to produce it.
func controlKey(r rune) Key {
	switch r {
	case 0x00:
		return KeySpace
	case 0x1e:
		return Key6
	case 0x1f:
		return KeyMinus
	}
	return Key(64 + r)
}

// escape handles ESC by reading the next rune, however long it takes to
// arrive. ESC at end of input is the Escape key.
func (d *Decoder) escape() {
	next, _, err := d.r.ReadRune()
	if err != nil {
		d.keys(KeyEscape)
		return
	}
	switch next {
	case '[':
		d.csi()
	case 'O':
		d.ss3()
	default:
		// Alt+key and friends: report ESC and decode the rune on its own.
		_ = d.r.UnreadRune()
		d.keys(KeyEscape)
	}
}

// ss3 handles "ESC O x", sent for F1-F4 and by keypads in application mode.
func (d *Decoder) ss3() {
	r, _, err := d.r.ReadRune()
	if err != nil {
		d.keys(KeyEscape)
		return
	}
	switch r {
	case 'P', 'Q', 'R', 'S':
		d.keys(KeyF1 + Key(r-'P'))
	case 'A', 'B', 'C', 'D', 'H', 'F':
		d.finishCSI("", r)
	default:
		d.keys(KeyEscape)
	}
}

// csi reads a control sequence after "ESC [". Unrecognized sequences are
// consumed whole and reported as ESC.
func (d *Decoder) csi() {
	var params strings.Builder
	for params.Len() < maxCSILen {
		r, _, err := d.r.ReadRune()
		if err != nil {
			d.keys(KeyEscape)
			return
		}
		if r >= 0x40 && r <= 0x7e {
			d.finishCSI(params.String(), r)
			return
		}
		params.WriteRune(r)
	}
	d.keys(KeyEscape)
}

func (d *Decoder) finishCSI(params string, final rune) {
	if strings.HasPrefix(params, "<") && (final == 'M' || final == 'm') {
		if m, ok := parseMouse(params[1:], final == 'M'); ok {
			d.emit(m)
			return
		}
		d.keys(KeyEscape)
		return
	}

	var key Key
	switch final {
	case 'A':
		key = KeyUp
	case 'B':
		key = KeyDown
	case 'C':
		key = KeyRight
	case 'D':
		key = KeyLeft
	case 'H':
		key = KeyHome
	case 'F':
		key = KeyEnd
	case 'P', 'Q', 'R', 'S':
		key = KeyF1 + Key(final-'P')
	case 'Z':
		d.keys(KeyLeftShift, KeyTab)
		return
	case '~':
		first, _, _ := strings.Cut(params, ";")
		switch first {
		case "1", "7":
			key = KeyHome
		case "2":
			key = KeyInsert
		case "3":
			key = KeyDelete
		case "4", "8":
			key = KeyEnd
		case "5":
			key = KeyPageUp
		case "6":
			key = KeyPageDown
		default:
			if f, ok := functionKeys[first]; ok {
				key = f
				break
			}
			d.keys(KeyEscape)
			return
		}
	default:
		d.keys(KeyEscape)
		return
	}
	d.keys(append(modifierKeys(params), key)...)
}

// functionKeys maps the numeric "N~" codes of F1-F12.
var functionKeys = map[string]Key{
	"11": KeyF1, "12": KeyF1 + 1, "13": KeyF1 + 2, "14": KeyF1 + 3,
	"15": KeyF1 + 4, "17": KeyF1 + 5, "18": KeyF1 + 6, "19": KeyF1 + 7,
	"20": KeyF1 + 8, "21": KeyF1 + 9, "23": KeyF1 + 10, "24": KeyF1 + 11,
}

// modifierKeys decodes the xterm "1;N" modifier parameter.
func modifierKeys(params string) []Key {
	_, mod, ok := strings.Cut(params, ";")
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(mod)
	if err != nil || n < 2 {
		return nil
	}
	bits := n - 1
	var keys []Key
	if bits&1 != 0 {
		keys = append(keys, KeyLeftShift)
	}
	if bits&2 != 0 {
		keys = append(keys, KeyLeftAlt)
	}
	if bits&4 != 0 {
		keys = append(keys, KeyLeftControl)
	}
	return keys
}

// parseMouse decodes "b;x;y" from an SGR mouse report.
func parseMouse(s string, down bool) (Mouse, bool) {
	fields := strings.Split(s, ";")
	if len(fields) != 3 {
		return Mouse{}, false
	}
	var v [3]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return Mouse{}, false
		}
		v[i] = n
	}
	b, x, y := v[0], v[1], v[2]
	if x < 1 || y < 1 {
		return Mouse{}, false
	}

	var button Button
	switch {
	case b&0x80 != 0:
		button = ButtonOther
	case b&0x40 != 0:
		switch b & 0x03 {
		case 0:
			button = ButtonScrollUp
		case 1:
			button = ButtonScrollDown
		default:
			button = ButtonOther
		}
	default:
		switch b & 0x03 {
		case 0:
			button = ButtonLeft
		case 1:
			button = ButtonMiddle
		case 2:
			button = ButtonRight
		default:
			button = ButtonOther
		}
	}
	return Mouse{
		Button:  button,
		Shift:   b&0x04 != 0,
		Meta:    b&0x08 != 0,
		Control: b&0x10 != 0,
		X:       x - 1,
		Y:       y - 1,
		Dragged: b&0x20 != 0,
		Down:    down,
	}, true
}
