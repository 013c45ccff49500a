package protocol

// Protocol version announced in Hello.
const (
	VersionMajor = 0x02
	VersionMinor = 0x00
)

// MaxPacketSize bounds a single device frame (1 MB).
const MaxPacketSize = 1 << 20

// Tag identifies a packet variant. Outbound and inbound tags are separate
// namespaces: the same byte means different things in each direction.
type Tag byte

// Outbound tags (relay -> device).
const (
	TagHello            Tag = 0x00
	TagMessage          Tag = 0x01
	TagStartSession     Tag = 0x02
	TagEndSession       Tag = 0x03
	TagInterruptSession Tag = 0x04
	TagKeyInput         Tag = 0x05
	TagKeycodesInput    Tag = 0x06
	TagCharInput        Tag = 0x07
	TagResize           Tag = 0x08
	TagMouseInput       Tag = 0x09
)

// Inbound tags (device -> relay).
const (
	TagDraw            Tag = 0x00
	TagSetPaletteColor Tag = 0x01
	TagSessionEnded    Tag = 0x20
)

// CommandTag identifies a draw command inside a Draw packet.
type CommandTag byte

const (
	CmdBlit              CommandTag = 0x00
	CmdScroll            CommandTag = 0x01
	CmdSetCursorVisible  CommandTag = 0x03
	CmdSetCursorPosition CommandTag = 0x04
	CmdFillLine          CommandTag = 0x05
	CmdFillScreen        CommandTag = 0x06
)

// MessageType classifies a Message packet.
type MessageType byte

const (
	MsgInfo    MessageType = 0
	MsgWarning MessageType = 1
	MsgError   MessageType = 2
	MsgAuth    MessageType = 3
)

// MouseButton is the button field of MouseInput.
type MouseButton byte

const (
	ButtonLeft       MouseButton = 0x00
	ButtonMiddle     MouseButton = 0x01
	ButtonRight      MouseButton = 0x02
	ButtonScrollUp   MouseButton = 0x03
	ButtonScrollDown MouseButton = 0x04
	ButtonOther      MouseButton = 0x05
)

// MouseFlags is the flags byte of MouseInput.
type MouseFlags byte

const (
	MouseDown    MouseFlags = 1 << 0
	MouseDragged MouseFlags = 1 << 1
	MouseControl MouseFlags = 1 << 2
	MouseMeta    MouseFlags = 1 << 3
	MouseShift   MouseFlags = 1 << 4
)

// Fixed body sizes (excluding the tag byte).
const (
	helloSize        = 3
	sessionIDSize    = 4
	startSessionSize = 4 + 1 + 2 + 2
	keyInputSize     = 4 + 2 + 1
	resizeSize       = 4 + 2 + 2
	mouseInputSize   = 4 + 1 + 4 + 4 + 1
	paletteSize      = 4 + 4
)
