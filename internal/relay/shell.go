package relay

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"

	"github.com/chronologos/ttyrelay/internal/input"
	"github.com/chronologos/ttyrelay/internal/terminal"
)

// Size is a terminal size in cells.
type Size struct {
	Width, Height int
}

const (
	defaultWidth  = 80
	defaultHeight = 24
)

// normalize substitutes a default for sizes the client did not report and
// clamps to what the wire format carries.
func (s Size) normalize() Size {
	if s.Width <= 0 || s.Height <= 0 {
		return Size{defaultWidth, defaultHeight}
	}
	return Size{min(s.Width, 0xffff), min(s.Height, 0xffff)}
}

// Shell is the SSH side of a session: a raw terminal stream plus its
// metadata.
type Shell interface {
	io.ReadWriter
	// User is the login name, which may carry a pairing token.
	User() string
	// Size is the terminal size at shell start.
	Size() Size
	// Resizes delivers window changes. It may be nil.
	Resizes() <-chan Size
}

// inputPump owns the only reader of a Shell. Until the shell is paired it
// discards input, watching for the cancel keys; afterwards it forwards
// everything into a pipe read by the session's input decoder.
type inputPump struct {
	pr        *io.PipeReader
	pw        *io.PipeWriter
	paired    atomic.Bool
	cancelled chan struct{}
	once      sync.Once
}

func startInputPump(r io.Reader) *inputPump {
	pr, pw := io.Pipe()
	p := &inputPump{pr: pr, pw: pw, cancelled: make(chan struct{})}
	go p.run(r)
	return p
}

func (p *inputPump) run(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if p.paired.Load() {
				if _, werr := p.pw.Write(buf[:n]); werr != nil {
					return
				}
			} else if bytes.IndexByte(buf[:n], input.CancelByte) >= 0 ||
				bytes.IndexByte(buf[:n], input.InterruptByte) >= 0 {
				p.cancel()
			}
		}
		if err != nil {
			if !p.paired.Load() {
				p.cancel()
			}
			p.pw.CloseWithError(err)
			return
		}
	}
}

func (p *inputPump) cancel() { p.once.Do(func() { close(p.cancelled) }) }

func (p *inputPump) pair() { p.paired.Store(true) }

// close stops forwarding. The pump goroutine itself exits when the shell
// stops delivering input.
func (p *inputPump) close() { p.pr.Close() }

// farewell restores the user's terminal and prints why the session ended.
func farewell(why string) []byte {
	b := terminal.SetModes(false, terminal.SessionModes...)
	b = append(b, terminal.SetModes(true, terminal.ModeCursorVisible)...)
	b = append(b, "\r\n"+terminal.ResetAttributes...)
	return append(b, why+"\r\n"...)
}
