package codec

import (
	"fmt"

	"github.com/zsiec/pv4/format"
)

// BandRows returns how many picture rows each video block holds in the raw
// payload layout. The first band takes the remainder.
func BandRows(height int) [format.VideoBlockCount]int {
	var rows [format.VideoBlockCount]int
	base := height / format.VideoBlockCount
	for i := range rows {
		rows[i] = base
	}
	rows[0] += height - base*format.VideoBlockCount
	return rows
}

// unpackRaw copies the packed YUV422 rows of a raw payload into dst.
func unpackRaw(v *format.VideoData, width, height int, dst []byte, stride int) error {
	row := width * 2
	if v.RawLength() != row*height {
		return fmt.Errorf("%w: %d payload bytes for %dx%d", ErrUnsupportedPayload, v.RawLength(), width, height)
	}
	for i, rows := range BandRows(height) {
		if int(v.BlockLength[i]) != rows*row {
			return fmt.Errorf("%w: block #%d holds %d bytes, want %d", ErrUnsupportedPayload, i, v.BlockLength[i], rows*row)
		}
	}
	if len(v.Data) < row*height {
		return fmt.Errorf("%w: video payload not read", ErrUnsupportedPayload)
	}
	if stride < row || (height > 0 && len(dst) < (height-1)*stride+row) {
		return fmt.Errorf("%w: %d bytes at stride %d", ErrInvalidDestination, len(dst), stride)
	}

	if stride == row {
		copy(dst, v.Data[:row*height])
		return nil
	}
	for y := 0; y < height; y++ {
		copy(dst[y*stride:y*stride+row], v.Data[y*row:])
	}
	return nil
}
