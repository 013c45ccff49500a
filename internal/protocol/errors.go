package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownVariant = errors.New("unknown packet variant")
	ErrUnknownCommand = errors.New("unknown draw command")
	ErrTruncated      = errors.New("truncated packet")
	ErrTrailingBytes  = errors.New("trailing bytes after packet")
	ErrInvalidValue   = errors.New("invalid field value")
	ErrPacketTooLarge = errors.New("packet exceeds maximum size")
)

const maxRawInError = 64

// ErrorKind classifies a DecodeError.
type ErrorKind int

const (
	KindUnknownVariant ErrorKind = iota
	KindUnknownCommand
	KindTruncated
	KindTrailingBytes
	KindInvalidValue
)

var kindErrors = [...]error{
	KindUnknownVariant: ErrUnknownVariant,
	KindUnknownCommand: ErrUnknownCommand,
	KindTruncated:      ErrTruncated,
	KindTrailingBytes:  ErrTrailingBytes,
	KindInvalidValue:   ErrInvalidValue,
}

func (k ErrorKind) String() string {
	switch k {
	case KindUnknownVariant:
		return "unknown-variant"
	case KindUnknownCommand:
		return "unknown-command"
	case KindTruncated:
		return "truncated"
	case KindTrailingBytes:
		return "trailing-bytes"
	case KindInvalidValue:
		return "invalid-value"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DecodeError reports a frame that could not be decoded. Raw holds the
// whole offending frame for logging.
type DecodeError struct {
	Kind   ErrorKind
	Offset int
	Detail string
	Raw    []byte
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%v at offset %d", kindErrors[e.Kind], e.Offset)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	raw := e.Raw
	if len(raw) > maxRawInError {
		return fmt.Sprintf("%s (frame % x ... %d bytes)", msg, raw[:maxRawInError], len(raw))
	}
	return fmt.Sprintf("%s (frame % x)", msg, raw)
}

// Unwrap lets errors.Is match the per-kind sentinels.
func (e *DecodeError) Unwrap() error { return kindErrors[e.Kind] }
