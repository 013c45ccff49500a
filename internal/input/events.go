package input

import (
	"fmt"
	"strings"
)

// Event is one decoded piece of user input.
type Event interface{ isEvent() }

// Keys is a chord of key presses, modifiers first.
type Keys struct {
	Codes []Key
}

// Char is the literal text of a printable keystroke. It always follows the
// Keys event for the same keystroke, when there is one.
type Char struct {
	Rune rune
}

// Button identifies a mouse button. Values match the device protocol.
type Button uint8

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
	ButtonScrollUp
	ButtonScrollDown
	ButtonOther
)

var buttonNames = [...]string{"LEFT", "MIDDLE", "RIGHT", "SCROLL_UP", "SCROLL_DOWN", "OTHER"}

func (b Button) String() string {
	if int(b) < len(buttonNames) {
		return buttonNames[b]
	}
	return fmt.Sprintf("Button(%d)", uint8(b))
}

// Mouse is an SGR mouse report with zero-based cell coordinates.
type Mouse struct {
	Button  Button
	Shift   bool
	Meta    bool
	Control bool
	X, Y    int
	Dragged bool
	Down    bool
}

// Interrupt asks the relay to abort the pending or active session.
type Interrupt struct{}

func (Keys) isEvent()      {}
func (Char) isEvent()      {}
func (Mouse) isEvent()     {}
func (Interrupt) isEvent() {}

func (k Keys) String() string {
	names := make([]string, len(k.Codes))
	for i, c := range k.Codes {
		names[i] = c.String()
	}
	return "Keys[" + strings.Join(names, "+") + "]"
}

func (c Char) String() string { return fmt.Sprintf("Char[%q]", c.Rune) }

func (m Mouse) String() string {
	state := "up"
	if m.Down {
		state = "down"
	}
	var mods []string
	if m.Shift {
		mods = append(mods, "shift")
	}
	if m.Meta {
		mods = append(mods, "meta")
	}
	if m.Control {
		mods = append(mods, "ctrl")
	}
	if m.Dragged {
		mods = append(mods, "drag")
	}
	return fmt.Sprintf("Mouse[%s %s (%d,%d) %s]", m.Button, state, m.X, m.Y, strings.Join(mods, ","))
}

func (Interrupt) String() string { return "Interrupt" }
