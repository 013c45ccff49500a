// Package transport carries device packets. Browser-style devices connect
// over WebSocket; native agents use QUIC, or TLS over TCP where UDP is
// blocked. Every transport delivers exactly one packet per frame.
package transport

import (
	"context"
	"errors"
)

var (
	ErrTextFrame  = errors.New("device sent a text frame")
	ErrFrameSize  = errors.New("frame exceeds maximum size")
	ErrAuthFailed = errors.New("device authentication failed")
)

// Conn is a device socket.
type Conn interface {
	// ReadPacket blocks for the next frame. It returns the context's cause
	// when ctx ends first.
	ReadPacket(ctx context.Context) ([]byte, error)
	// WritePacket sends one frame. Callers serialize writes.
	WritePacket(ctx context.Context, p []byte) error
	// Close tears the socket down, passing reason to the peer when the
	// transport supports it.
	Close(reason string) error
	RemoteAddr() string
}

// Kind names the transport a device arrived on.
type Kind int

const (
	KindWebSocket Kind = iota
	KindQUIC
	KindTLS
)

func (k Kind) String() string {
	switch k {
	case KindWebSocket:
		return "websocket"
	case KindQUIC:
		return "quic"
	case KindTLS:
		return "tls"
	default:
		return "unknown"
	}
}
