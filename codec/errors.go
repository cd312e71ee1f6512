package codec

import (
	"errors"

	"github.com/zsiec/pv4/dv"
)

var (
	// ErrClosed is returned by every operation on a closed decoder.
	ErrClosed = errors.New("codec: decoder is closed")

	// ErrFrameOutOfRange is returned for frame numbers outside
	// [0, FrameCount).
	ErrFrameOutOfRange = dv.ErrFrameOutOfRange

	ErrUnsupportedFormat  = errors.New("codec: unsupported pixel format")
	ErrNotInterlaced      = errors.New("codec: video stream is not interlaced")
	ErrInvalidDestination = errors.New("codec: invalid destination buffer")
	ErrUnsupportedPayload = errors.New("codec: video payload is not raw packed YUV422")
	ErrNoBackend          = errors.New("codec: no decoding backend available")
	ErrDuplicateBackend   = errors.New("codec: backend already registered")
	ErrShortSource        = errors.New("codec: source picture too small")
)
