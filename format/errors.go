package format

import (
	"errors"
	"fmt"
)

// Sentinel errors for container parsing. These enable callers to
// programmatically distinguish failure modes using errors.Is.
var (
	ErrInvalidPreamble         = errors.New("format: invalid stream preamble (not a PV3 stream)")
	ErrUnsupportedCodecVersion = errors.New("format: unsupported codec version")
	ErrCorrupt                 = errors.New("format: corrupt data")
	ErrShortBuffer             = errors.New("format: buffer too short")
	ErrOutOfRange              = errors.New("format: value out of range")
)

// ParseError indicates a failure to parse a field of a container record.
// It wraps the underlying format error and records which field was being
// parsed when the error occurred.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("format: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// BlockLengthError reports a video block whose length is not a multiple of
// 32 bytes. It unwraps to ErrCorrupt.
type BlockLengthError struct {
	Block  int
	Length uint32
}

func (e *BlockLengthError) Error() string {
	return fmt.Sprintf("format: length of video block #%d must be n*32 (got %d)", e.Block, e.Length)
}

func (e *BlockLengthError) Unwrap() error {
	return ErrCorrupt
}
