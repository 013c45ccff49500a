package terminal

import "strconv"

const csi = "\x1b["

// Mode is a DEC private mode number.
type Mode int

const (
	ModeCursorVisible Mode = 25
	ModeAltBuffer     Mode = 1049
	ModeAltScroll     Mode = 1007
	ModeMouseTracking Mode = 1002
	ModeSGRCoords     Mode = 1006
)

// SessionModes are switched on for the life of a shell session.
var SessionModes = []Mode{ModeAltBuffer, ModeAltScroll, ModeMouseTracking, ModeSGRCoords}

// SetModes returns the escape that enables or disables modes.
func SetModes(enabled bool, modes ...Mode) []byte {
	return appendModes(nil, enabled, modes...)
}

// ResetAttributes clears all SGR attributes.
const ResetAttributes = csi + "0m"

func appendModes(b []byte, enabled bool, modes ...Mode) []byte {
	if len(modes) == 0 {
		return b
	}
	b = append(b, csi+"?"...)
	for i, m := range modes {
		if i > 0 {
			b = append(b, ';')
		}
		b = strconv.AppendInt(b, int64(m), 10)
	}
	if enabled {
		return append(b, 'h')
	}
	return append(b, 'l')
}

// appendCursorTo moves to the zero-based cell (x, y).
func appendCursorTo(b []byte, x, y int) []byte {
	b = append(b, csi...)
	b = strconv.AppendInt(b, int64(y+1), 10)
	b = append(b, ';')
	b = strconv.AppendInt(b, int64(x+1), 10)
	return append(b, 'H')
}

func appendCursorForward(b []byte, n int) []byte {
	b = append(b, csi...)
	if n != 1 {
		b = strconv.AppendInt(b, int64(n), 10)
	}
	return append(b, 'C')
}

func appendSGR(b []byte, params ...string) []byte {
	b = append(b, csi...)
	for i, p := range params {
		if i > 0 {
			b = append(b, ';')
		}
		b = append(b, p...)
	}
	return append(b, 'm')
}

const (
	eraseLine    = csi + "2K"
	eraseDisplay = csi + "2J"
)

// appendScroll scrolls the whole screen. Positive distances move content up.
func appendScroll(b []byte, distance int) []byte {
	switch {
	case distance > 0:
		b = append(b, csi...)
		b = strconv.AppendInt(b, int64(distance), 10)
		return append(b, 'S')
	case distance < 0:
		b = append(b, csi...)
		b = strconv.AppendInt(b, int64(-distance), 10)
		return append(b, 'T')
	}
	return b
}
