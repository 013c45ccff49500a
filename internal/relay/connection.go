package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chronologos/ttyrelay/internal/protocol"
	"github.com/chronologos/ttyrelay/internal/transport"
)

const (
	outboundBuffer = 64
	teardownSend   = time.Second
)

// Connection is one paired device socket and the shell sessions
// multiplexed onto it.
type Connection struct {
	token string
	reg   *Registry
	log   *slog.Logger

	hub    hub
	out    chan []byte
	nextID atomic.Uint32
	live   atomic.Int32

	done      chan struct{}
	closeOnce sync.Once
	cause     error
}

func newConnection(reg *Registry, token string) *Connection {
	return &Connection{
		token: token,
		reg:   reg,
		log:   reg.log.With("token", token),
		out:   make(chan []byte, outboundBuffer),
		done:  make(chan struct{}),
	}
}

// Token is the pairing token this connection was claimed with.
func (c *Connection) Token() string { return c.token }

// State is StatePaired until the device goes away.
func (c *Connection) State() State {
	select {
	case <-c.done:
		return StateClosed
	default:
		return StatePaired
	}
}

// Sessions returns the number of live shell sessions.
func (c *Connection) Sessions() int { return int(c.live.Load()) }

// Done is closed once the device is gone.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Serve relays between the device socket and the attached shells until the
// device disconnects, breaks protocol, or ctx ends. It always closes conn.
func (c *Connection) Serve(ctx context.Context, kind transport.Kind, conn transport.Conn) error {
	log := c.log.With("transport", kind, "remote", conn.RemoteAddr())
	log.Info("device connected")

	hello := protocol.EncodeOutbound(protocol.Hello{Major: protocol.VersionMajor, Minor: protocol.VersionMinor})
	if err := conn.WritePacket(ctx, hello); err != nil {
		err = fmt.Errorf("%w: send hello: %w", ErrDeviceGone, err)
		c.close(err)
		conn.Close("")
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx, conn) })
	g.Go(func() error { return c.writeLoop(gctx, conn) })
	err := g.Wait()

	c.close(err)
	switch {
	case errors.Is(err, ErrProtocolViolation):
		log.Warn("device dropped", "err", err)
		conn.Close("protocol error")
	case ctx.Err() != nil:
		log.Info("device released", "err", context.Cause(ctx))
		conn.Close("relay shutting down")
	default:
		log.Info("device disconnected", "err", err)
		conn.Close("")
	}
	return err
}

// Abandon releases a claimed connection whose socket never came up.
func (c *Connection) Abandon(err error) {
	c.close(fmt.Errorf("%w: %w", ErrDeviceGone, err))
}

func (c *Connection) readLoop(ctx context.Context, conn transport.Conn) error {
	for {
		frame, err := conn.ReadPacket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("%w: %w", ErrDeviceGone, err)
		}
		p, err := protocol.DecodeInbound(frame)
		if err != nil {
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				c.reg.metrics.decodeError(de.Kind.String())
			}
			return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
		}
		if sp, ok := p.(protocol.SessionPacket); ok && uint32(sp.SessionOf()) >= c.nextID.Load() {
			return fmt.Errorf("%w: packet for unallocated session %d", ErrProtocolViolation, sp.SessionOf())
		}
		c.hub.publish(p)
	}
}

func (c *Connection) writeLoop(ctx context.Context, conn transport.Conn) error {
	for {
		select {
		case frame := <-c.out:
			if err := conn.WritePacket(ctx, frame); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: %w", ErrDeviceGone, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// close marks the device gone and ends every session's subscription. It
// must not race with readLoop, which owns the hub while it runs.
func (c *Connection) close(cause error) {
	c.closeOnce.Do(func() {
		c.cause = cause
		close(c.done)
		c.hub.close()
		c.reg.release(c)
	})
}

// send queues p for the device.
func (c *Connection) send(ctx context.Context, p protocol.Outbound) error {
	frame := protocol.EncodeOutbound(p)
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return ErrDeviceGone
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// trySend is send for teardown paths, where the caller's context is
// already over.
func (c *Connection) trySend(p protocol.Outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownSend)
	defer cancel()
	if err := c.send(ctx, p); err != nil {
		c.log.Debug("dropped packet to device", "packet", fmt.Sprintf("%T", p), "err", err)
	}
}
