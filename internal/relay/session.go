package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/chronologos/ttyrelay/internal/coalesce"
	"github.com/chronologos/ttyrelay/internal/input"
	"github.com/chronologos/ttyrelay/internal/protocol"
	"github.com/chronologos/ttyrelay/internal/terminal"
)

// shellSession relays one SSH shell over its connection. Its emulator is
// touched only by the relayOutput goroutine.
type shellSession struct {
	id    protocol.SessionID
	conn  *Connection
	shell Shell
	in    *io.PipeReader
	emu   *terminal.Emulator
	log   *slog.Logger
	opts  *Options
}

// attach runs a new shell session on c until either side ends it.
func (c *Connection) attach(ctx context.Context, sh Shell, in *io.PipeReader) error {
	id := protocol.SessionID(c.nextID.Add(1) - 1)
	s := &shellSession{
		id:    id,
		conn:  c,
		shell: sh,
		in:    in,
		log:   c.log.With("session", id),
		opts:  &c.reg.opts,
	}

	c.live.Add(1)
	c.reg.metrics.sessionStarted()
	defer func() {
		c.live.Add(-1)
		c.reg.metrics.sessionEnded()
	}()

	s.log.Info("session started", "user", sh.User())
	err := s.run(ctx)
	s.log.Info("session ended", "reason", err)
	return err
}

func (s *shellSession) run(ctx context.Context) error {
	// Subscribe before StartSession so no reply can slip past. The
	// subscription is dropped before teardown, which may block on the shell
	// while the hub keeps feeding sibling sessions.
	sub := s.conn.hub.subscribe()
	defer sub.cancel()

	size := s.shell.Size().normalize()
	emu, err := terminal.New(size.Width, size.Height, s.opts.ColorLevel)
	if err != nil {
		return err
	}
	s.emu = emu

	start := terminal.SetModes(true, terminal.SessionModes...)
	start = append(start, emu.Redraw()...)
	if err := s.write(start); err != nil {
		sub.cancel()
		s.teardown(err)
		return err
	}
	err = s.conn.send(ctx, protocol.StartSession{
		Session: s.id,
		Width:   uint16(size.Width),
		Height:  uint16(size.Height),
	})
	if err != nil {
		sub.cancel()
		s.teardown(err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.forwardInput(gctx) })
	g.Go(func() error { return s.relayOutput(gctx, sub) })
	err = g.Wait()
	sub.cancel()
	s.teardown(err)
	return err
}

// forwardInput decodes the user's keystrokes and mouse reports into
// packets for the device.
func (s *shellSession) forwardInput(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.in.CloseWithError(context.Cause(ctx)) })
	defer stop()

	dec := input.NewDecoder(s.in)
	for {
		ev, err := dec.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrShellClosed, err)
		}
		s.log.Debug("input", "event", ev)
		for _, p := range terminal.Packets(s.id, ev) {
			if err := s.conn.send(ctx, p); err != nil {
				return err
			}
		}
	}
}

// relayOutput applies device packets for this session to the emulator and
// writes the resulting escapes to the shell.
func (s *shellSession) relayOutput(ctx context.Context, sub *subscription) error {
	out := coalesce.NewWith(s.opts.FlushDelay, 0)
	defer out.Stop()
	// Whatever was rendered before the end still reaches the user.
	defer func() { s.write(out.Flush()) }()

	resizes := s.shell.Resizes()
	for {
		var b []byte
		select {
		case p, ok := <-sub.ch:
			if !ok {
				return ErrDeviceGone
			}
			var err error
			if b, err = s.apply(p); err != nil {
				return err
			}
		case sz, ok := <-resizes:
			if !ok {
				resizes = nil
				continue
			}
			var err error
			if b, err = s.resize(ctx, sz); err != nil {
				return err
			}
		case <-out.Timer():
			if err := s.write(out.Flush()); err != nil {
				return err
			}
			continue
		case <-ctx.Done():
			return context.Cause(ctx)
		}
		if out.Add(b) {
			if err := s.write(out.Flush()); err != nil {
				return err
			}
		}
	}
}

// apply handles one broadcast packet, ignoring those for other sessions.
func (s *shellSession) apply(p protocol.Inbound) ([]byte, error) {
	if sp, ok := p.(protocol.SessionPacket); !ok || sp.SessionOf() != s.id {
		return nil, nil
	}
	switch p := p.(type) {
	case protocol.Draw:
		return s.emu.Apply(p.Commands), nil
	case protocol.SetPaletteColor:
		return s.emu.SetPaletteColor(p.Index, p.R, p.G, p.B), nil
	case protocol.EndSession:
		return nil, ErrEndedByDevice
	}
	return nil, nil
}

func (s *shellSession) resize(ctx context.Context, sz Size) ([]byte, error) {
	sz = sz.normalize()
	if sz.Width == s.emu.Width() && sz.Height == s.emu.Height() {
		return nil, nil
	}
	b, err := s.emu.Resize(sz.Width, sz.Height)
	if err != nil {
		return nil, err
	}
	s.log.Debug("resize", "width", sz.Width, "height", sz.Height)
	err = s.conn.send(ctx, protocol.Resize{
		Session: s.id,
		Width:   uint16(sz.Width),
		Height:  uint16(sz.Height),
	})
	return b, err
}

func (s *shellSession) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if _, err := s.shell.Write(b); err != nil {
		return fmt.Errorf("%w: %w", ErrShellClosed, err)
	}
	return nil
}

// teardown tells whichever side is still there that the session is over.
func (s *shellSession) teardown(err error) {
	if !errors.Is(err, ErrEndedByDevice) && !errors.Is(err, ErrDeviceGone) && !errors.Is(err, ErrProtocolViolation) {
		s.conn.trySend(protocol.EndSession{Session: s.id})
	}
	if !errors.Is(err, ErrShellClosed) {
		s.write(farewell(reason(err)))
	}
}
