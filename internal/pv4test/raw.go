package pv4test

import (
	"testing"

	"github.com/zsiec/pv4/codec"
	"github.com/zsiec/pv4/format"
)

// RawFrames returns count frames carrying raw YUV422 payloads of Gradient
// pictures shifted by the frame number, ready to decode.
func RawFrames(tb testing.TB, h *format.Header, count int) []*format.FrameData {
	tb.Helper()
	enc := codec.NewRawEncoder(h)
	w, ht := h.Width(), h.Height()
	frames := make([]*format.FrameData, count)
	for i := range frames {
		pic := PackedYUV(w, ht, func(x, y int) (byte, byte, byte, byte) {
			return Gradient(x+i*3, y+i)
		})
		f, err := enc.EncodePackedYUV422Frame(pic, w*2, format.Ratio{Num: 16, Den: 9})
		if err != nil {
			tb.Fatalf("EncodePackedYUV422Frame: %v", err)
		}
		f.Audio.SampleCount = 1601
		f.Audio.SamplingFrequency = 48000
		f.Audio.Data = Pattern(i, f.Audio.RawLength())
		frames[i] = f
	}
	return frames
}
