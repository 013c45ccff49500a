package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/chronologos/ttyrelay/internal/protocol"
)

// Native frames: [4B payload length big-endian][payload].
const frameHeaderSize = 4

func writeFrame(w io.Writer, p []byte) error {
	if len(p) > protocol.MaxPacketSize {
		return ErrFrameSize
	}
	// One Write per frame keeps header and payload in the same stream chunk.
	buf := make([]byte, frameHeaderSize+len(p))
	binary.BigEndian.PutUint32(buf, uint32(len(p)))
	copy(buf[frameHeaderSize:], p)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > protocol.MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameSize, n)
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r, p); err != nil {
		return nil, err
	}
	return p, nil
}

// stream is what QUIC streams and TLS connections have in common.
type stream interface {
	io.ReadWriter
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// streamConn adapts a byte stream into a framed device Conn.
type streamConn struct {
	s      stream
	close  func(reason string) error
	remote string

	closeOnce sync.Once
	closeErr  error
}

func (c *streamConn) ReadPacket(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { c.s.SetReadDeadline(time.Now()) })
	defer stop()
	p, err := readFrame(c.s)
	if err != nil && ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	return p, err
}

func (c *streamConn) WritePacket(ctx context.Context, p []byte) error {
	stop := context.AfterFunc(ctx, func() { c.s.SetWriteDeadline(time.Now()) })
	defer stop()
	err := writeFrame(c.s, p)
	if err != nil && ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

func (c *streamConn) Close(reason string) error {
	c.closeOnce.Do(func() { c.closeErr = c.close(reason) })
	return c.closeErr
}

func (c *streamConn) RemoteAddr() string { return c.remote }
