package format

import (
	"encoding/binary"
	"fmt"
)

// Layout constants of the stream file header.
const (
	// HeaderSize is the size of the header region; the first frame record
	// starts at this offset.
	HeaderSize = 16384

	// HeaderDataSize is the part of the header region that carries data.
	// The remainder is reserved and written as zeros.
	HeaderDataSize = 512

	// SupportedCodecVersion is the only codec version that can be parsed.
	SupportedCodecVersion = 2

	quantizerTableOffset = 256
)

// Preamble is the magic prefix of every stream file.
var Preamble = [3]byte{'P', 'V', '3'}

// FrameScanning is the scanning mode recorded in the header flags.
type FrameScanning uint8

// Scanning modes. Bit 0 of the header flags selects between them.
const (
	Interlaced FrameScanning = iota
	Progressive
	UnknownScanning
)

func (s FrameScanning) String() string {
	switch s {
	case Interlaced:
		return "interlaced"
	case Progressive:
		return "progressive"
	default:
		return "unknown"
	}
}

// QuantizerTable holds the 8x8 quantizer coefficients in raster order.
type QuantizerTable [64]uint16

// Header is the stream file header. It is written once when a container is
// created and copied verbatim when a frame range is extracted.
type Header struct {
	CodecVersion     uint8
	HorizontalPixels uint8 // width / 16
	VerticalPixels   uint8 // height / 8
	Scanning         FrameScanning
	Luminance        QuantizerTable
	Chrominance      QuantizerTable
}

// NewHeader returns a header for a width x height picture. Width must be a
// multiple of 16 and height a multiple of 8, each within a single byte after
// division.
func NewHeader(width, height int, scanning FrameScanning) (*Header, error) {
	if width <= 0 || width%16 != 0 || width/16 > 0xff {
		return nil, fmt.Errorf("format: width %d: %w", width, ErrOutOfRange)
	}
	if height <= 0 || height%8 != 0 || height/8 > 0xff {
		return nil, fmt.Errorf("format: height %d: %w", height, ErrOutOfRange)
	}
	return &Header{
		CodecVersion:     SupportedCodecVersion,
		HorizontalPixels: uint8(width / 16),
		VerticalPixels:   uint8(height / 8),
		Scanning:         scanning,
	}, nil
}

// ParseHeader decodes a header from the first HeaderDataSize bytes of b.
func ParseHeader(b []byte) (*Header, error) {
	h := new(Header)
	if err := h.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return h, nil
}

// UnmarshalBinary decodes the header data region. Only the first
// HeaderDataSize bytes are inspected.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderDataSize {
		return &ParseError{Field: "header", Err: ErrShortBuffer}
	}
	if b[0] != Preamble[0] || b[1] != Preamble[1] || b[2] != Preamble[2] {
		return ErrInvalidPreamble
	}
	if b[3] != SupportedCodecVersion {
		return &ParseError{Field: "codec_version", Err: fmt.Errorf("%w: %d", ErrUnsupportedCodecVersion, b[3])}
	}

	h.CodecVersion = b[3]
	h.HorizontalPixels = b[4]
	h.VerticalPixels = b[5]
	h.Scanning = FrameScanning(b[6] & 0x01)

	off := quantizerTableOffset
	for i := range h.Luminance {
		h.Luminance[i] = binary.BigEndian.Uint16(b[off:])
		off += 2
	}
	for i := range h.Chrominance {
		h.Chrominance[i] = binary.BigEndian.Uint16(b[off:])
		off += 2
	}
	return nil
}

// MarshalBinary returns the full HeaderSize-byte header region.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	if err := h.PutBinary(b); err != nil {
		return nil, err
	}
	return b, nil
}

// PutBinary encodes the header data region into b, which must hold at
// least HeaderDataSize bytes. Reserved bytes inside the data region are
// zeroed; bytes past it are left untouched.
func (h *Header) PutBinary(b []byte) error {
	if len(b) < HeaderDataSize {
		return ErrShortBuffer
	}
	clear(b[:HeaderDataSize])
	copy(b, Preamble[:])
	b[3] = h.CodecVersion
	b[4] = h.HorizontalPixels
	b[5] = h.VerticalPixels
	if h.Scanning == Progressive {
		b[6] = 0x01
	}

	off := quantizerTableOffset
	for _, q := range h.Luminance {
		binary.BigEndian.PutUint16(b[off:], q)
		off += 2
	}
	for _, q := range h.Chrominance {
		binary.BigEndian.PutUint16(b[off:], q)
		off += 2
	}
	return nil
}

// Width returns the picture width in pixels.
func (h *Header) Width() int { return int(h.HorizontalPixels) << 4 }

// Height returns the picture height in pixels.
func (h *Header) Height() int { return int(h.VerticalPixels) << 3 }

// FrameRate returns the nominal frame rate for the scanning mode.
func (h *Header) FrameRate() (Ratio, error) {
	switch h.Scanning {
	case Interlaced:
		return InterlacedFrameRate, nil
	case Progressive:
		return ProgressiveFrameRate, nil
	default:
		return Ratio{}, fmt.Errorf("format: frame scanning %d: %w", h.Scanning, ErrCorrupt)
	}
}

// Equal reports whether two headers describe the same stream parameters.
func (h *Header) Equal(o *Header) bool {
	if h == nil || o == nil {
		return h == o
	}
	return *h == *o
}

func (h *Header) String() string {
	return fmt.Sprintf("{CodecVersion=%d, HorizontalPixels=%d(%dx16), VerticalPixels=%d(%dx8), FrameScanning=%s}",
		h.CodecVersion, h.Width(), h.HorizontalPixels, h.Height(), h.VerticalPixels, h.Scanning)
}
