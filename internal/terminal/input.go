package terminal

import (
	"github.com/chronologos/ttyrelay/internal/input"
	"github.com/chronologos/ttyrelay/internal/protocol"
)

// Packets translates one input event into the packets that deliver it to
// session id. Characters with no device encoding produce nothing.
func Packets(id protocol.SessionID, ev input.Event) []protocol.Outbound {
	switch e := ev.(type) {
	case input.Keys:
		codes := make([]uint16, len(e.Codes))
		for i, k := range e.Codes {
			codes[i] = uint16(k)
		}
		return []protocol.Outbound{protocol.KeycodesInput{Session: id, Keys: codes}}
	case input.Char:
		b, ok := protocol.EncodeDeviceRune(e.Rune)
		if !ok {
			return nil
		}
		return []protocol.Outbound{protocol.CharInput{Session: id, Text: []byte{b}}}
	case input.Mouse:
		var flags protocol.MouseFlags
		if e.Down {
			flags |= protocol.MouseDown
		}
		if e.Dragged {
			flags |= protocol.MouseDragged
		}
		if e.Control {
			flags |= protocol.MouseControl
		}
		if e.Meta {
			flags |= protocol.MouseMeta
		}
		if e.Shift {
			flags |= protocol.MouseShift
		}
		return []protocol.Outbound{protocol.MouseInput{
			Session: id,
			Button:  protocol.MouseButton(e.Button),
			X:       uint32(max(e.X, 0)),
			Y:       uint32(max(e.Y, 0)),
			Flags:   flags,
		}}
	case input.Interrupt:
		return []protocol.Outbound{protocol.InterruptSession{Session: id}}
	}
	return nil
}
