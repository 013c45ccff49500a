package relay

import (
	"context"
	"errors"

	"github.com/chronologos/ttyrelay/internal/auth"
)

// Why a shell session ended.
var (
	ErrShellClosed       = errors.New("ssh stream closed")
	ErrEndedByDevice     = errors.New("session ended by device")
	ErrDeviceGone        = errors.New("device disconnected")
	ErrProtocolViolation = errors.New("device protocol violation")
)

// Why a pairing attempt failed.
var (
	ErrPairingTimeout   = errors.New("timed out waiting for device")
	ErrPairingCancelled = errors.New("pairing cancelled")
	ErrUnknownToken     = errors.New("no login is waiting for this token")
	ErrAlreadyPaired    = errors.New("token already paired")
	ErrMalformedToken   = auth.ErrMalformedToken
)

// reason is the line shown to the SSH user when err ends their session.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrEndedByDevice):
		return "Session ended by host."
	case errors.Is(err, ErrDeviceGone), errors.Is(err, ErrProtocolViolation):
		return "Host disconnected."
	case errors.Is(err, ErrPairingTimeout):
		return "Timed out waiting for host"
	case errors.Is(err, ErrPairingCancelled):
		return "Cancelled."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Relay shutting down."
	default:
		return "Disconnected."
	}
}
