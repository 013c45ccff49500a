package relay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chronologos/ttyrelay/internal/protocol"
	"github.com/chronologos/ttyrelay/internal/terminal"
	"github.com/chronologos/ttyrelay/internal/transport"
)

const waitTimeout = 5 * time.Second

var discardLogger = slog.New(slog.DiscardHandler)

// fakeDevice is an in-memory device socket.
type fakeDevice struct {
	in     chan []byte // device -> relay
	out    chan []byte // relay -> device
	closed chan struct{}

	mu     sync.Mutex
	reason string
	once   sync.Once
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (d *fakeDevice) ReadPacket(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-d.in:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-d.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (d *fakeDevice) WritePacket(ctx context.Context, p []byte) error {
	select {
	case d.out <- p:
		return nil
	case <-d.closed:
		return net.ErrClosed
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (d *fakeDevice) Close(reason string) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.reason = reason
		d.mu.Unlock()
		close(d.closed)
	})
	return nil
}

func (d *fakeDevice) RemoteAddr() string { return "fake" }

func (d *fakeDevice) closeReason() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

// send delivers an inbound packet to the relay.
func (d *fakeDevice) send(t *testing.T, p protocol.Inbound) {
	t.Helper()
	frame, err := protocol.EncodeInbound(p)
	if err != nil {
		t.Fatalf("encode %T: %v", p, err)
	}
	d.in <- frame
}

// expect reads the next packet the relay sent and compares it to want.
func (d *fakeDevice) expect(t *testing.T, want protocol.Outbound) {
	t.Helper()
	select {
	case frame := <-d.out:
		got, err := protocol.DecodeOutbound(frame)
		if err != nil {
			t.Fatalf("relay sent undecodable frame %x: %v", frame, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("device got %#v, want %#v", got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("timeout waiting for %#v", want)
	}
}

func (d *fakeDevice) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-d.closed:
	case <-time.After(waitTimeout):
		t.Fatal("device socket was not closed")
	}
}

// fakeShell is an SSH shell whose input the test types and whose output it
// inspects.
type fakeShell struct {
	user    string
	size    Size
	resizes chan Size

	inR *io.PipeReader
	inW *io.PipeWriter

	mu      sync.Mutex
	out     bytes.Buffer
	changed chan struct{}
	gate    chan struct{} // when set, writes wait for it to close
}

func newFakeShell(user string) *fakeShell {
	r, w := io.Pipe()
	return &fakeShell{
		user:    user,
		size:    Size{80, 24},
		resizes: make(chan Size, 1),
		inR:     r,
		inW:     w,
		changed: make(chan struct{}, 1),
	}
}

func (s *fakeShell) Read(p []byte) (int, error) { return s.inR.Read(p) }

func (s *fakeShell) Write(p []byte) (int, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(p)
	select {
	case s.changed <- struct{}{}:
	default:
	}
	return len(p), nil
}

func (s *fakeShell) User() string          { return s.user }
func (s *fakeShell) Size() Size            { return s.size }
func (s *fakeShell) Resizes() <-chan Size  { return s.resizes }
func (s *fakeShell) hangUp()               { s.inW.Close() }
func (s *fakeShell) typeText(text string)  { s.inW.Write([]byte(text)) }

// stallWrites makes writes block until release is called.
func (s *fakeShell) stallWrites() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *fakeShell) output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

// waitFor blocks until the shell output matches re and returns the match.
func (s *fakeShell) waitFor(t *testing.T, re *regexp.Regexp) []string {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		if m := re.FindStringSubmatch(s.output()); m != nil {
			return m
		}
		select {
		case <-s.changed:
		case <-deadline:
			t.Fatalf("shell output never matched %s; got %q", re, s.output())
			return nil
		}
	}
}

func (s *fakeShell) waitForText(t *testing.T, text string) {
	t.Helper()
	s.waitFor(t, regexp.MustCompile(regexp.QuoteMeta(text)))
}

var tokenInBanner = regexp.MustCompile(`/client ([0-9a-f-]{36})\r\n`)

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.Log == nil {
		opts.Log = discardLogger
	}
	if opts.PublicURL == "" {
		opts.PublicURL = "https://relay.test"
	}
	opts.ColorLevel = terminal.LevelTrueColor
	return NewRegistry(opts)
}

// login starts Serve for sh and returns a channel with its result.
func login(ctx context.Context, r *Registry, sh Shell) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, sh) }()
	return done
}

// pairDevice waits for sh's banner and connects dev with the token shown.
func pairDevice(t *testing.T, ctx context.Context, r *Registry, sh *fakeShell, dev *fakeDevice) (token string, served <-chan error) {
	t.Helper()
	token = sh.waitFor(t, tokenInBanner)[1]
	c, err := r.Claim(token)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, transport.KindWebSocket, dev) }()
	dev.expect(t, protocol.Hello{Major: protocol.VersionMajor, Minor: protocol.VersionMinor})
	return token, done
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for result")
		return nil
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
