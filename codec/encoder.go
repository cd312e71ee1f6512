package codec

import (
	"fmt"

	"github.com/zsiec/pv4/format"
)

// Encoder turns packed YUV422 pictures into frame records.
type Encoder interface {
	EncodePackedYUV422Frame(yuv []byte, stride int, aspect format.Ratio) (*format.FrameData, error)
}

// RawEncoder stores pictures uncompressed: the packed YUV422 rows are split
// into four consecutive bands, the first taking the remainder rows, and
// band i becomes video block i. Because the width is a multiple of 16, every
// block length is a multiple of 32.
type RawEncoder struct {
	width, height int

	// Quality is written to each frame's encoding quality field.
	Quality uint8
}

var _ Encoder = (*RawEncoder)(nil)

// NewRawEncoder returns an encoder for pictures of the size h describes.
func NewRawEncoder(h *format.Header) *RawEncoder {
	return &RawEncoder{width: h.Width(), height: h.Height()}
}

// EncodePackedYUV422Frame copies yuv, rows stride bytes apart, into the
// video payload of a new frame. The frame carries no audio.
func (e *RawEncoder) EncodePackedYUV422Frame(yuv []byte, stride int, aspect format.Ratio) (*format.FrameData, error) {
	row := e.width * 2
	if stride < row || (e.height > 0 && len(yuv) < (e.height-1)*stride+row) {
		return nil, fmt.Errorf("%w: %d bytes at stride %d for %dx%d", ErrShortSource, len(yuv), stride, e.width, e.height)
	}

	data := make([]byte, row*e.height)
	for y := 0; y < e.height; y++ {
		copy(data[y*row:(y+1)*row], yuv[y*stride:])
	}

	var lengths [format.VideoBlockCount]uint32
	for i, rows := range BandRows(e.height) {
		lengths[i] = uint32(rows * row)
	}

	f := &format.FrameData{}
	if err := f.SetVideoBlocks(data, lengths); err != nil {
		return nil, err
	}
	if err := f.Video.SetDisplayAspectRatio(aspect); err != nil {
		return nil, err
	}
	f.Video.EncodingQuality = e.Quality
	return f, nil
}
