// Package pv4test builds synthetic PV4 containers for tests.
package pv4test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/zsiec/pv4/dvio"
	"github.com/zsiec/pv4/format"
)

// Header returns a codec version 2 header for a width x height picture with
// recognisable quantizer tables.
func Header(tb testing.TB, width, height int, scanning format.FrameScanning) *format.Header {
	tb.Helper()
	h, err := format.NewHeader(width, height, scanning)
	if err != nil {
		tb.Fatalf("NewHeader(%d, %d): %v", width, height, err)
	}
	for i := range h.Luminance {
		h.Luminance[i] = uint16(0x100 + i)
		h.Chrominance[i] = uint16(0x200 + i)
	}
	return h
}

// Frame returns frame n with sampleCount audio samples at 48 kHz and video
// blocks of the given lengths. Payload bytes are derived from n so that
// frames can be told apart after a round trip.
func Frame(n int, sampleCount uint16, blocks [format.VideoBlockCount]uint32) *format.FrameData {
	f := &format.FrameData{}
	f.Audio.SampleCount = sampleCount
	f.Audio.SamplingFrequency = 48000
	f.Audio.Data = Pattern(n, f.Audio.RawLength())

	f.Video.DisplayAspectH = 16
	f.Video.DisplayAspectV = 9
	f.Video.EncodingQuality = uint8(n % 4)
	f.Video.BlockLength = blocks
	f.Video.Data = Pattern(n+0x80, f.Video.RawLength())
	return f
}

// Frames returns count frames with varying audio and video sizes, covering
// both the audio floor and multi-unit audio blocks.
func Frames(count int) []*format.FrameData {
	frames := make([]*format.FrameData, count)
	for i := range frames {
		samples := uint16(800 + 601*(i%3))
		blocks := [format.VideoBlockCount]uint32{
			uint32(32 * (10 + i)), 64, uint32(32 * (i % 2)), 4096,
		}
		frames[i] = Frame(i, samples, blocks)
	}
	return frames
}

// Pattern returns n deterministic bytes seeded by seed.
func Pattern(seed, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(seed*31 + i*7)
	}
	return b
}

// Encode returns the bytes of a stream file holding h and frames, together
// with the index StreamAndIndexWriter produced for it. The precedent audio
// sample counts of frames are stamped.
func Encode(tb testing.TB, h *format.Header, frames []*format.FrameData) (stream, index []byte) {
	tb.Helper()
	var sbuf, ibuf bytes.Buffer
	w, err := dvio.NewStreamAndIndexWriter(h, &sbuf, &ibuf)
	if err != nil {
		tb.Fatalf("NewStreamAndIndexWriter: %v", err)
	}
	for i, f := range frames {
		if err := w.Write(f); err != nil {
			tb.Fatalf("Write frame %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("Close: %v", err)
	}
	return sbuf.Bytes(), ibuf.Bytes()
}

// WriteContainer writes h and frames to name.dv (and name.dvi when
// withIndex is set) in dir and returns the stream file path.
func WriteContainer(tb testing.TB, dir, name string, h *format.Header, frames []*format.FrameData, withIndex bool) string {
	tb.Helper()
	path := filepath.Join(dir, name+format.StreamFileExtension)
	w, err := dvio.CreateStreamAndIndexFile(h, path, withIndex)
	if err != nil {
		tb.Fatalf("CreateStreamAndIndexFile: %v", err)
	}
	for i, f := range frames {
		if err := w.Write(f); err != nil {
			tb.Fatalf("Write frame %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("Close: %v", err)
	}
	return path
}

// PackedYUV returns a width x height packed YUV422 picture (Y0 Cb Y1 Cr per
// pixel pair) with rows of width*2 bytes. Each pixel pair is produced by fn.
func PackedYUV(width, height int, fn func(x, y int) (y0, cb, y1, cr byte)) []byte {
	stride := width * 2
	b := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		row := b[y*stride:]
		for x := 0; x < width; x += 2 {
			y0, cb, y1, cr := fn(x, y)
			row[x*2+0] = y0
			row[x*2+1] = cb
			row[x*2+2] = y1
			row[x*2+3] = cr
		}
	}
	return b
}

// Gradient is a PackedYUV generator with luma following the row and chroma
// following the column.
func Gradient(x, y int) (y0, cb, y1, cr byte) {
	l := byte(16 + (y*7)%220)
	return l, byte(64 + x%128), l + 1, byte(192 - x%128)
}
