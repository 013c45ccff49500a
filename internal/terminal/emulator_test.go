package terminal

import (
	"bytes"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/chronologos/ttyrelay/internal/input"
	"github.com/chronologos/ttyrelay/internal/protocol"
)

const (
	sgrDefault = "\x1b[38;2;240;240;240;48;2;17;17;17m"
	sgrAccent  = "\x1b[38;2;204;76;76;48;2;242;178;51m"
)

func newEmulator(t *testing.T, w, h int) *Emulator {
	t.Helper()
	e, err := New(w, h, LevelTrueColor)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func colors(n int, c protocol.Color) []protocol.Color {
	out := make([]protocol.Color, n)
	for i := range out {
		out[i] = c
	}
	return out
}

func TestApplyIsIdempotent(t *testing.T) {
	e := newEmulator(t, 10, 3)
	draw := []protocol.DrawCommand{
		protocol.Blit{X: 1, Y: 1, Text: []byte("hey"), Colors: []protocol.Color{0x0f, 0x0f, 0xe1}},
		protocol.SetCursorPosition{X: 4, Y: 1},
		protocol.SetCursorVisible{Visible: true},
	}

	first := e.Apply(draw)
	want := "\x1b[2;2H" + sgrDefault + "he" + sgrAccent + "y" + "\x1b[?25h"
	if string(first) != want {
		t.Fatalf("first apply:\n got %q\nwant %q", first, want)
	}
	if second := e.Apply(draw); len(second) != 0 {
		t.Fatalf("second apply wrote %q, want nothing", second)
	}
}

func TestBlitSkipsUnchangedCells(t *testing.T) {
	e := newEmulator(t, 10, 2)
	e.Blit(0, 0, []byte("abcde"), colors(5, 0x0f))
	e.MoveCursor(5, 1)

	got := e.Blit(0, 0, []byte("xbcdz"), colors(5, 0x0f))
	want := "\x1b[1;1Hx\x1b[3Cz\x1b[2;6H"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if r, _ := e.Buffer().At(4, 0); r != 'z' {
		t.Fatalf("buffer not updated: %q", r)
	}
}

func TestBlitClipsAtRightEdge(t *testing.T) {
	e := newEmulator(t, 4, 1)
	out := e.Blit(2, 0, []byte("wxyz"), colors(4, 0x0f))
	if !bytes.Contains(out, []byte("wx")) || bytes.ContainsAny(out, "yz") {
		t.Fatalf("unexpected output %q", out)
	}
	if out := e.Blit(0, 5, []byte("a"), colors(1, 0x0f)); out != nil {
		t.Fatalf("off-screen blit wrote %q", out)
	}
}

func TestBlitDecodesDeviceCharset(t *testing.T) {
	e := newEmulator(t, 4, 1)
	out := e.Blit(0, 0, []byte{0x7f, 0x95}, colors(2, 0x0f))
	if !strings.Contains(string(out), "░▌") {
		t.Fatalf("device glyphs not translated: %q", out)
	}
}

func TestFillForcesRewrite(t *testing.T) {
	e := newEmulator(t, 5, 2)
	// The default screen is already spaces on color 15.
	if out := e.Blit(2, 0, []byte(" "), colors(1, 0x0f)); out != nil {
		t.Fatalf("blit over identical cell wrote %q", out)
	}

	e.FillScreen(15)
	if out := e.Blit(2, 0, []byte(" "), colors(1, 0x0f)); len(out) == 0 {
		t.Fatal("blit after fill wrote nothing")
	}
	// Only the rewritten cell lost its fill marker.
	if out := e.Blit(3, 0, []byte(" "), colors(1, 0x0f)); len(out) == 0 {
		t.Fatal("neighbouring filled cell was not rewritten")
	}
	if out := e.Blit(2, 0, []byte(" "), colors(1, 0x0f)); out != nil {
		t.Fatalf("repeat blit wrote %q", out)
	}
}

func TestFillLine(t *testing.T) {
	e := newEmulator(t, 5, 3)
	e.MoveCursor(0, 0)

	got := e.FillLine(1, 11)
	want := "\x1b[48;2;51;102;204m\x1b[2;1H\x1b[2K\x1b[1;1H"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if _, c := e.Buffer().At(4, 1); c != protocol.PackColor(0, 11) {
		t.Fatalf("fill color = %#x", byte(c))
	}
	if out := e.FillLine(3, 1); out != nil {
		t.Fatalf("out-of-range fill wrote %q", out)
	}
}

func TestPaletteRebake(t *testing.T) {
	e := newEmulator(t, 6, 1)
	e.Blit(0, 0, []byte("abcd"), []protocol.Color{0x0f, 0x3f, 0xf3, 0x0f})

	out := string(e.SetPaletteColor(3, 1, 2, 3))
	for _, want := range []string{"b", "c", "38;2;1;2;3", "48;2;1;2;3"} {
		if !strings.Contains(out, want) {
			t.Errorf("re-bake output %q lacks %q", out, want)
		}
	}
	for _, unwanted := range []string{"a", "d"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("re-bake output %q repaints %q", out, unwanted)
		}
	}

	if out := e.SetPaletteColor(7, 9, 9, 9); out != nil {
		t.Fatalf("unused slot repainted %q", out)
	}
}

func TestBlitDiffsPaletteIndices(t *testing.T) {
	e := newEmulator(t, 4, 1)
	e.SetPaletteColor(3, 9, 9, 9)
	e.SetPaletteColor(4, 9, 9, 9)
	e.Blit(0, 0, []byte("a"), colors(1, protocol.PackColor(3, 3)))

	// Same rune and same resolved color, but a different slot.
	if out := string(e.Blit(0, 0, []byte("a"), colors(1, protocol.PackColor(4, 4)))); !strings.Contains(out, "a") {
		t.Fatalf("slot change not rewritten: %q", out)
	}
	if out := e.SetPaletteColor(3, 1, 2, 3); out != nil {
		t.Fatalf("stale slot repainted %q", out)
	}
	if out := string(e.SetPaletteColor(4, 1, 2, 3)); !strings.Contains(out, "a") {
		t.Fatalf("re-bake of current slot missed the cell: %q", out)
	}
}

func TestScroll(t *testing.T) {
	e := newEmulator(t, 3, 3)
	for y, row := range []string{"aaa", "bbb", "ccc"} {
		e.Blit(0, y, []byte(row), colors(3, 0x0f))
	}

	if got := e.Scroll(1); string(got) != "\x1b[1S" {
		t.Fatalf("scroll up: got %q", got)
	}
	if r, _ := e.Buffer().At(0, 0); r != 'b' {
		t.Fatalf("row 0 = %q after scroll, want b", r)
	}
	if out := e.Blit(0, 1, []byte("ccc"), colors(3, 0x0f)); out != nil {
		t.Fatalf("moved row was not kept: %q", out)
	}
	if out := e.Blit(0, 2, []byte("   "), colors(3, 0x0f)); len(out) == 0 {
		t.Fatal("revealed row did not force a rewrite")
	}

	if got := e.Scroll(-2); string(got) != "\x1b[2T" {
		t.Fatalf("scroll down: got %q", got)
	}
	if r, _ := e.Buffer().At(0, 2); r != 'b' {
		t.Fatalf("row 2 = %q after scroll down, want b", r)
	}
	e.Scroll(10)
	for x := range 3 {
		if e.Buffer().chars[e.Buffer().index(x, 2)] != fill {
			t.Fatal("oversized scroll did not clear the screen")
		}
	}
	if out := e.Scroll(0); out != nil {
		t.Fatalf("zero scroll wrote %q", out)
	}
}

func TestCursor(t *testing.T) {
	e := newEmulator(t, 10, 3)
	if got := e.MoveCursor(50, 50); string(got) != "\x1b[3;10H" {
		t.Fatalf("clamped move: got %q", got)
	}
	if x, y := e.Cursor(); x != 9 || y != 2 {
		t.Fatalf("cursor = %d,%d", x, y)
	}
	if out := e.MoveCursor(9, 2); out != nil {
		t.Fatalf("repeat move wrote %q", out)
	}
	if got := e.SetCursorVisible(false); string(got) != "\x1b[?25l" {
		t.Fatalf("hide: got %q", got)
	}
	if out := e.SetCursorVisible(false); out != nil {
		t.Fatalf("repeat hide wrote %q", out)
	}
	if got := e.SetCursorVisible(true); string(got) != "\x1b[?25h" {
		t.Fatalf("show: got %q", got)
	}
}

func TestRedraw(t *testing.T) {
	e := newEmulator(t, 2, 1)
	want := "\x1b[1;1H" + sgrDefault + "  \x1b[1;1H"
	if got := e.Redraw(); string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResize(t *testing.T) {
	e := newEmulator(t, 10, 10)
	e.MoveCursor(8, 8)
	if _, err := e.Resize(0, 5); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("Resize(0, 5) err = %v", err)
	}
	out, err := e.Resize(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(out, []byte("\x1b[2J")) {
		t.Fatalf("resize did not clear: %q", out)
	}
	if e.Width() != 4 || e.Height() != 2 {
		t.Fatalf("size = %dx%d", e.Width(), e.Height())
	}
	if x, y := e.Cursor(); x != 3 || y != 1 {
		t.Fatalf("cursor = %d,%d after shrink", x, y)
	}
	if out := e.Blit(0, 0, []byte(" "), colors(1, 0x0f)); len(out) == 0 {
		t.Fatal("blit after resize wrote nothing")
	}
	if _, err := New(0, 1, Level256); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("New(0, 1) err = %v", err)
	}
}

func TestColorLevels(t *testing.T) {
	p := NewPalette(Level256)
	if got := p.bgParams(15); got != "48;5;233" {
		t.Fatalf("256-color background 15 = %q", got)
	}

	sgr16 := regexp.MustCompile(`^(3[0-7]|9[0-7])$`)
	p16 := NewPalette(Level16)
	for i := range uint8(16) {
		if fg := p16.fgParams(i); !sgr16.MatchString(fg) {
			t.Fatalf("16-color foreground %d = %q", i, fg)
		}
	}

	for in, want := range map[string]Level{"16": Level16, "256": Level256, "TrueColor": LevelTrueColor} {
		if got, err := ParseLevel(in); err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("mono"); err == nil {
		t.Fatal("ParseLevel(mono) should fail")
	}
}

func TestPackets(t *testing.T) {
	tests := []struct {
		name string
		ev   input.Event
		want []protocol.Outbound
	}{
		{"keys", input.Keys{Codes: []input.Key{input.KeyLeftShift, input.KeyA}},
			[]protocol.Outbound{protocol.KeycodesInput{Session: 4, Keys: []uint16{340, 65}}}},
		{"char", input.Char{Rune: 'é'},
			[]protocol.Outbound{protocol.CharInput{Session: 4, Text: []byte{0xe9}}}},
		{"unencodable char", input.Char{Rune: '€'}, nil},
		{"mouse", input.Mouse{Button: input.ButtonScrollUp, X: 3, Y: 7, Down: true, Shift: true},
			[]protocol.Outbound{protocol.MouseInput{Session: 4, Button: protocol.ButtonScrollUp, X: 3, Y: 7,
				Flags: protocol.MouseDown | protocol.MouseShift}}},
		{"interrupt", input.Interrupt{}, []protocol.Outbound{protocol.InterruptSession{Session: 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Packets(4, tt.ev); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSetModes(t *testing.T) {
	if got := string(SetModes(true, SessionModes...)); got != "\x1b[?1049;1007;1002;1006h" {
		t.Fatalf("got %q", got)
	}
	if got := string(SetModes(false, ModeCursorVisible)); got != "\x1b[?25l" {
		t.Fatalf("got %q", got)
	}
}
