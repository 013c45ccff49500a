package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// --- Encoding ---

// EncodeOutbound serializes a relay-to-device packet. Every field is
// fixed-width, so encoding cannot fail; a nil packet encodes to nil.
func EncodeOutbound(p Outbound) []byte {
	switch m := p.(type) {
	case Hello:
		return []byte{byte(TagHello), m.Major, m.Minor, m.Features}
	case Message:
		b := make([]byte, 0, 2+len(m.Text))
		b = append(b, byte(TagMessage), byte(m.Type))
		return append(b, m.Text...)
	case StartSession:
		b := make([]byte, 0, 1+startSessionSize)
		b = append(b, byte(TagStartSession))
		b = binary.BigEndian.AppendUint32(b, uint32(m.Session))
		b = append(b, m.Features)
		b = binary.BigEndian.AppendUint16(b, m.Width)
		return binary.BigEndian.AppendUint16(b, m.Height)
	case EndSession:
		return appendSession(TagEndSession, m.Session, 0)
	case InterruptSession:
		return appendSession(TagInterruptSession, m.Session, 0)
	case KeyInput:
		b := appendSession(TagKeyInput, m.Session, 3)
		b = binary.BigEndian.AppendUint16(b, m.Key)
		return append(b, boolByte(m.Pressed))
	case KeycodesInput:
		b := appendSession(TagKeycodesInput, m.Session, 2*len(m.Keys))
		for _, k := range m.Keys {
			b = binary.BigEndian.AppendUint16(b, k)
		}
		return b
	case CharInput:
		b := appendSession(TagCharInput, m.Session, len(m.Text))
		return append(b, m.Text...)
	case Resize:
		b := appendSession(TagResize, m.Session, 4)
		b = binary.BigEndian.AppendUint16(b, m.Width)
		return binary.BigEndian.AppendUint16(b, m.Height)
	case MouseInput:
		b := appendSession(TagMouseInput, m.Session, mouseInputSize-sessionIDSize)
		b = append(b, byte(m.Button))
		b = binary.BigEndian.AppendUint32(b, m.X)
		b = binary.BigEndian.AppendUint32(b, m.Y)
		return append(b, byte(m.Flags))
	}
	return nil
}

// EncodeInbound serializes a device-to-relay packet. It fails only for
// values the wire cannot represent: mismatched Blit text and colors, palette
// or fill indices above 15, and scroll distances wider than 16 bits.
func EncodeInbound(p Inbound) ([]byte, error) {
	switch m := p.(type) {
	case Draw:
		b := appendSession(TagDraw, m.Session, 16)
		for i, cmd := range m.Commands {
			var err error
			if b, err = appendCommand(b, cmd); err != nil {
				return nil, fmt.Errorf("draw command %d: %w", i, err)
			}
		}
		return b, nil
	case SetPaletteColor:
		if m.Index > 15 {
			return nil, fmt.Errorf("%w: palette index %d", ErrInvalidValue, m.Index)
		}
		b := appendSession(TagSetPaletteColor, m.Session, 4)
		packed := uint32(m.Index)<<24 | uint32(m.R)<<16 | uint32(m.G)<<8 | uint32(m.B)
		return binary.BigEndian.AppendUint32(b, packed), nil
	case EndSession:
		return appendSession(TagSessionEnded, m.Session, 0), nil
	case nil:
		return nil, fmt.Errorf("%w: nil packet", ErrInvalidValue)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownVariant, p)
}

func appendCommand(b []byte, cmd DrawCommand) ([]byte, error) {
	switch c := cmd.(type) {
	case Blit:
		if len(c.Text) != len(c.Colors) {
			return nil, fmt.Errorf("%w: blit has %d chars and %d colors", ErrInvalidValue, len(c.Text), len(c.Colors))
		}
		b = append(b, byte(CmdBlit))
		b = binary.BigEndian.AppendUint16(b, c.X)
		b = binary.BigEndian.AppendUint16(b, c.Y)
		b = binary.BigEndian.AppendUint32(b, uint32(len(c.Text)))
		b = append(b, c.Text...)
		for _, col := range c.Colors {
			b = append(b, byte(col))
		}
	case Scroll:
		dist, neg := c.Distance, byte(0)
		if dist < 0 {
			dist, neg = -dist, 1
		}
		if dist > 0xffff {
			return nil, fmt.Errorf("%w: scroll distance %d", ErrInvalidValue, c.Distance)
		}
		b = append(b, byte(CmdScroll))
		b = binary.BigEndian.AppendUint16(b, uint16(dist))
		b = append(b, neg)
	case SetCursorVisible:
		b = append(b, byte(CmdSetCursorVisible), boolByte(c.Visible))
	case SetCursorPosition:
		b = append(b, byte(CmdSetCursorPosition))
		b = binary.BigEndian.AppendUint16(b, c.X)
		b = binary.BigEndian.AppendUint16(b, c.Y)
	case FillLine:
		if c.Color > 15 {
			return nil, fmt.Errorf("%w: fill color %d", ErrInvalidValue, c.Color)
		}
		b = append(b, byte(CmdFillLine))
		b = binary.BigEndian.AppendUint16(b, c.Line)
		b = append(b, c.Color)
	case FillScreen:
		if c.Color > 15 {
			return nil, fmt.Errorf("%w: fill color %d", ErrInvalidValue, c.Color)
		}
		b = append(b, byte(CmdFillScreen), c.Color)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return b, nil
}

func appendSession(tag Tag, id SessionID, extra int) []byte {
	b := make([]byte, 0, 1+sessionIDSize+extra)
	b = append(b, byte(tag))
	return binary.BigEndian.AppendUint32(b, uint32(id))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// --- Decoding ---

// DecodeInbound decodes one device-to-relay frame. The frame must contain
// exactly one packet.
func DecodeInbound(frame []byte) (Inbound, error) {
	d := &decoder{frame: frame}
	var p Inbound
	switch tag := Tag(d.u8()); {
	case d.err != nil:
	case tag == TagDraw:
		draw := Draw{Session: d.session()}
		for d.err == nil && d.remaining() > 0 {
			if cmd := d.command(); cmd != nil {
				draw.Commands = append(draw.Commands, cmd)
			}
		}
		p = draw
	case tag == TagSetPaletteColor:
		id := d.session()
		packed := d.u32()
		index := uint8(packed >> 24)
		if d.err == nil && index > 15 {
			d.off -= 4
			d.fail(KindInvalidValue, fmt.Sprintf("palette index %d", index))
		}
		p = SetPaletteColor{
			Session: id,
			Index:   index,
			R:       uint8(packed >> 16),
			G:       uint8(packed >> 8),
			B:       uint8(packed),
		}
	case tag == TagSessionEnded:
		p = EndSession{Session: d.session()}
	default:
		d.off = 0
		d.fail(KindUnknownVariant, fmt.Sprintf("tag 0x%02x", byte(tag)))
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *decoder) command() DrawCommand {
	start := d.off
	tag := CommandTag(d.u8())
	if d.err != nil {
		return nil
	}
	switch tag {
	case CmdBlit:
		x, y := d.u16(), d.u16()
		n := d.u32()
		if d.err == nil && uint64(n)*2 > uint64(d.remaining()) {
			d.fail(KindTruncated, fmt.Sprintf("blit of %d chars, %d bytes left", n, d.remaining()))
			return nil
		}
		text := bytes.Clone(d.take(int(n)))
		raw := d.take(int(n))
		colors := make([]Color, len(raw))
		for i, c := range raw {
			colors[i] = Color(c)
		}
		return Blit{X: x, Y: y, Text: text, Colors: colors}
	case CmdScroll:
		dist := int32(d.u16())
		if d.u8() != 0 {
			dist = -dist
		}
		return Scroll{Distance: dist}
	case CmdSetCursorVisible:
		return SetCursorVisible{Visible: d.u8() != 0}
	case CmdSetCursorPosition:
		return SetCursorPosition{X: d.u16(), Y: d.u16()}
	case CmdFillLine:
		return FillLine{Line: d.u16(), Color: d.color()}
	case CmdFillScreen:
		return FillScreen{Color: d.color()}
	}
	d.off = start
	d.fail(KindUnknownCommand, fmt.Sprintf("command 0x%02x", byte(tag)))
	return nil
}

// DecodeOutbound decodes one relay-to-device frame. The relay never reads
// these; device agents and tests do.
func DecodeOutbound(frame []byte) (Outbound, error) {
	d := &decoder{frame: frame}
	var p Outbound
	switch tag := Tag(d.u8()); {
	case d.err != nil:
	case tag == TagHello:
		p = Hello{Major: d.u8(), Minor: d.u8(), Features: d.u8()}
	case tag == TagMessage:
		typ := MessageType(d.u8())
		if d.err == nil && typ > MsgAuth {
			d.off--
			d.fail(KindInvalidValue, fmt.Sprintf("message type %d", typ))
		}
		text := d.rest()
		if d.err == nil && !utf8.Valid(text) {
			d.fail(KindInvalidValue, "message text is not UTF-8")
		}
		p = Message{Type: typ, Text: string(text)}
	case tag == TagStartSession:
		p = StartSession{Session: d.session(), Features: d.u8(), Width: d.u16(), Height: d.u16()}
	case tag == TagEndSession:
		p = EndSession{Session: d.session()}
	case tag == TagInterruptSession:
		p = InterruptSession{Session: d.session()}
	case tag == TagKeyInput:
		p = KeyInput{Session: d.session(), Key: d.u16(), Pressed: d.u8() != 0}
	case tag == TagKeycodesInput:
		m := KeycodesInput{Session: d.session()}
		if d.err == nil && d.remaining()%2 != 0 {
			d.fail(KindTruncated, "odd keycode byte count")
		}
		for d.err == nil && d.remaining() > 0 {
			m.Keys = append(m.Keys, d.u16())
		}
		p = m
	case tag == TagCharInput:
		id := d.session()
		p = CharInput{Session: id, Text: bytes.Clone(d.rest())}
	case tag == TagResize:
		p = Resize{Session: d.session(), Width: d.u16(), Height: d.u16()}
	case tag == TagMouseInput:
		p = MouseInput{
			Session: d.session(),
			Button:  MouseButton(d.u8()),
			X:       d.u32(),
			Y:       d.u32(),
			Flags:   MouseFlags(d.u8()),
		}
	default:
		d.off = 0
		d.fail(KindUnknownVariant, fmt.Sprintf("tag 0x%02x", byte(tag)))
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return p, nil
}

// decoder walks a frame. The first failure sticks; later reads return zero
// values so callers can decode a whole body and check once.
type decoder struct {
	frame []byte
	off   int
	err   *DecodeError
}

func (d *decoder) fail(kind ErrorKind, detail string) {
	if d.err == nil {
		d.err = &DecodeError{Kind: kind, Offset: d.off, Detail: detail, Raw: d.frame}
	}
}

func (d *decoder) remaining() int { return len(d.frame) - d.off }

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.remaining() < n {
		d.fail(KindTruncated, fmt.Sprintf("need %d bytes, have %d", n, d.remaining()))
		return nil
	}
	b := d.frame[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) rest() []byte {
	if d.err != nil {
		return nil
	}
	b := d.frame[d.off:]
	d.off = len(d.frame)
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) session() SessionID { return SessionID(d.u32()) }

func (d *decoder) color() uint8 {
	c := d.u8()
	if d.err == nil && c > 15 {
		d.off--
		d.fail(KindInvalidValue, fmt.Sprintf("color index %d", c))
	}
	return c
}

func (d *decoder) finish() error {
	if d.err == nil && d.remaining() > 0 {
		d.fail(KindTrailingBytes, fmt.Sprintf("%d bytes left", d.remaining()))
	}
	if d.err != nil {
		return d.err
	}
	return nil
}
