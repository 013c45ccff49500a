package protocol

// SessionID names one shell session on a device connection.
type SessionID uint32

// Outbound is a packet sent from the relay to a device.
type Outbound interface{ outbound() }

// Inbound is a packet sent from a device to the relay.
type Inbound interface{ inbound() }

// DrawCommand is one screen mutation inside a Draw packet.
type DrawCommand interface{ drawCommand() }

// SessionPacket is implemented by every packet addressed to a session.
type SessionPacket interface{ SessionOf() SessionID }

// --- Outbound ---

type Hello struct {
	Major    uint8
	Minor    uint8
	Features uint8
}

type Message struct {
	Type MessageType
	Text string
}

type StartSession struct {
	Session  SessionID
	Features uint8
	Width    uint16
	Height   uint16
}

// EndSession travels both ways: the relay sends it when the SSH side goes
// away, the device sends it when the shell exits.
type EndSession struct {
	Session SessionID
}

type InterruptSession struct {
	Session SessionID
}

type KeyInput struct {
	Session SessionID
	Key     uint16
	Pressed bool
}

type KeycodesInput struct {
	Session SessionID
	Keys    []uint16
}

// CharInput carries text already encoded in the device charset.
type CharInput struct {
	Session SessionID
	Text    []byte
}

type Resize struct {
	Session SessionID
	Width   uint16
	Height  uint16
}

type MouseInput struct {
	Session SessionID
	Button  MouseButton
	X       uint32
	Y       uint32
	Flags   MouseFlags
}

func (Hello) outbound()            {}
func (Message) outbound()          {}
func (StartSession) outbound()     {}
func (EndSession) outbound()       {}
func (InterruptSession) outbound() {}
func (KeyInput) outbound()         {}
func (KeycodesInput) outbound()    {}
func (CharInput) outbound()        {}
func (Resize) outbound()           {}
func (MouseInput) outbound()       {}

// --- Inbound ---

type Draw struct {
	Session  SessionID
	Commands []DrawCommand
}

type SetPaletteColor struct {
	Session SessionID
	Index   uint8
	R, G, B uint8
}

func (Draw) inbound()            {}
func (SetPaletteColor) inbound() {}
func (EndSession) inbound()      {}

func (p StartSession) SessionOf() SessionID     { return p.Session }
func (p EndSession) SessionOf() SessionID       { return p.Session }
func (p InterruptSession) SessionOf() SessionID { return p.Session }
func (p KeyInput) SessionOf() SessionID         { return p.Session }
func (p KeycodesInput) SessionOf() SessionID    { return p.Session }
func (p CharInput) SessionOf() SessionID        { return p.Session }
func (p Resize) SessionOf() SessionID           { return p.Session }
func (p MouseInput) SessionOf() SessionID       { return p.Session }
func (p Draw) SessionOf() SessionID             { return p.Session }
func (p SetPaletteColor) SessionOf() SessionID  { return p.Session }

// --- Draw commands ---

// Color packs a foreground palette index in the high nibble and a
// background index in the low nibble.
type Color uint8

// PackColor builds a Color from two palette indices. Indices are masked to
// four bits.
func PackColor(fg, bg uint8) Color { return Color(fg&0x0f)<<4 | Color(bg&0x0f) }

func (c Color) Fg() uint8 { return uint8(c) >> 4 }
func (c Color) Bg() uint8 { return uint8(c) & 0x0f }

// Blit writes Text starting at (X, Y). Text is in the device charset and
// Colors holds one entry per byte of Text.
type Blit struct {
	X, Y   uint16
	Text   []byte
	Colors []Color
}

// Scroll moves the screen contents up by Distance rows (down when negative).
type Scroll struct {
	Distance int32
}

type SetCursorVisible struct {
	Visible bool
}

type SetCursorPosition struct {
	X, Y uint16
}

// FillLine clears one row to background palette index Color.
type FillLine struct {
	Line  uint16
	Color uint8
}

// FillScreen clears the whole screen to background palette index Color.
type FillScreen struct {
	Color uint8
}

func (Blit) drawCommand()              {}
func (Scroll) drawCommand()            {}
func (SetCursorVisible) drawCommand()  {}
func (SetCursorPosition) drawCommand() {}
func (FillLine) drawCommand()          {}
func (FillScreen) drawCommand()        {}
