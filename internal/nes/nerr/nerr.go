// Package nerr defines the closed set of errors the core can return.
//
// Everything that is not one of these is handled locally by the
// component that hit it (open-bus reads, dropped writes to ROM,
// unofficial-opcode behavior, unknown mapper register accesses logged
// and ignored) rather than surfaced as an error.
package nerr

import (
	"errors"
	"strconv"
)

var (
	// ErrInvalidROM means the image is not a recognizable iNES/NES 2.0 file.
	ErrInvalidROM = errors.New("nes: invalid rom image")

	// ErrUnsupportedMapper means the header names a mapper id with no
	// implementation. The cart is refused rather than silently
	// downgraded to NROM.
	ErrUnsupportedMapper = errors.New("nes: unsupported mapper")

	// ErrSizeMismatch means a save-state or SRAM blob does not match
	// the size the live component expects.
	ErrSizeMismatch = errors.New("nes: size mismatch")

	// ErrUnsupportedFormat means the image is a recognizable-but-unhandled
	// container, e.g. UNIF.
	ErrUnsupportedFormat = errors.New("nes: unsupported rom format")

	// ErrBadState means a save-state blob failed its self-description
	// checks (bad magic/version) before any size comparison could run.
	ErrBadState = errors.New("nes: bad save state")
)

// MapperError wraps ErrUnsupportedMapper with the offending id so
// callers can report it without string-parsing.
type MapperError struct {
	ID uint16
}

func (e *MapperError) Error() string {
	return "nes: unsupported mapper " + strconv.Itoa(int(e.ID))
}

func (e *MapperError) Unwrap() error { return ErrUnsupportedMapper }
