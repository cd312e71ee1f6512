package dvio_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/zsiec/pv4/dvio"
	"github.com/zsiec/pv4/format"
	"github.com/zsiec/pv4/internal/pv4test"
)

// onlyReader hides the Seek method of the wrapped reader.
type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

func TestStreamRoundTrip(t *testing.T) {
	t.Parallel()

	h := pv4test.Header(t, 320, 240, format.Interlaced)
	frames := pv4test.Frames(5)
	stream, _ := pv4test.Encode(t, h, frames)

	for _, tc := range []struct {
		name string
		src  io.Reader
	}{
		{"seekable", bytes.NewReader(stream)},
		{"non-seekable", onlyReader{bytes.NewReader(stream)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := dvio.NewStreamReader(tc.src)
			got, err := r.ReadHeader()
			if err != nil {
				t.Fatalf("ReadHeader: %v", err)
			}
			if !got.Equal(h) {
				t.Fatalf("header: got %v, want %v", got, h)
			}

			var precedent uint64
			for i, want := range frames {
				f, err := r.ReadFrameData(true, true)
				if err != nil {
					t.Fatalf("frame %d: %v", i, err)
				}
				if f == nil {
					t.Fatalf("frame %d: unexpected end of sequence", i)
				}
				if f.Audio.PrecedentSampleCount != precedent {
					t.Errorf("frame %d precedent: got %d, want %d", i, f.Audio.PrecedentSampleCount, precedent)
				}
				precedent += uint64(f.Audio.SampleCount)

				if f.Audio.SampleCount != want.Audio.SampleCount || f.Audio.SamplingFrequency != want.Audio.SamplingFrequency {
					t.Errorf("frame %d audio: got %d@%d, want %d@%d", i,
						f.Audio.SampleCount, f.Audio.SamplingFrequency, want.Audio.SampleCount, want.Audio.SamplingFrequency)
				}
				if f.Video.BlockLength != want.Video.BlockLength {
					t.Errorf("frame %d blocks: got %v, want %v", i, f.Video.BlockLength, want.Video.BlockLength)
				}
				if f.Video.EncodingQuality != want.Video.EncodingQuality {
					t.Errorf("frame %d quality: got %d, want %d", i, f.Video.EncodingQuality, want.Video.EncodingQuality)
				}
				if len(f.Audio.Data) != f.Audio.AlignedDataLength() {
					t.Errorf("frame %d audio len: got %d, want %d", i, len(f.Audio.Data), f.Audio.AlignedDataLength())
				}
				if !bytes.Equal(f.Audio.Data[:want.Audio.RawLength()], want.Audio.Data) {
					t.Errorf("frame %d: audio payload differs", i)
				}
				if !bytes.Equal(f.Video.Data[:want.Video.RawLength()], want.Video.Data) {
					t.Errorf("frame %d: video payload differs", i)
				}
				if !allZero(f.Video.Data[want.Video.RawLength():]) {
					t.Errorf("frame %d: video padding not zero", i)
				}
			}

			f, err := r.ReadFrameData(true, true)
			if f != nil || err != nil {
				t.Fatalf("after last frame: got %v, %v, want nil, nil", f, err)
			}
			if r.Position() != int64(len(stream)) {
				t.Fatalf("position: got %d, want %d", r.Position(), len(stream))
			}
		})
	}
}

func TestReadFrameDataSkipsPayloads(t *testing.T) {
	t.Parallel()

	h := pv4test.Header(t, 320, 240, format.Progressive)
	frames := pv4test.Frames(3)
	stream, _ := pv4test.Encode(t, h, frames)

	for _, tc := range []struct {
		name             string
		src              io.Reader
		readAudio, video bool
	}{
		{"seek audio only", bytes.NewReader(stream), true, false},
		{"seek video only", bytes.NewReader(stream), false, true},
		{"discard both", onlyReader{bytes.NewReader(stream)}, false, false},
		{"discard audio", onlyReader{bytes.NewReader(stream)}, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := dvio.NewStreamReader(tc.src)
			if _, err := r.ReadHeader(); err != nil {
				t.Fatalf("ReadHeader: %v", err)
			}
			n := 0
			for {
				f, err := r.ReadFrameData(tc.readAudio, tc.video)
				if err != nil {
					t.Fatalf("frame %d: %v", n, err)
				}
				if f == nil {
					break
				}
				if (f.Audio.Data != nil) != tc.readAudio {
					t.Errorf("frame %d: audio data present = %v", n, f.Audio.Data != nil)
				}
				if (f.Video.Data != nil) != tc.video {
					t.Errorf("frame %d: video data present = %v", n, f.Video.Data != nil)
				}
				n++
			}
			if n != len(frames) {
				t.Fatalf("frames: got %d, want %d", n, len(frames))
			}
		})
	}
}

func TestReadFrameDataIntoReusesBuffers(t *testing.T) {
	t.Parallel()

	h := pv4test.Header(t, 320, 240, format.Interlaced)
	stream, _ := pv4test.Encode(t, h, pv4test.Frames(2))

	r := dvio.NewStreamReader(bytes.NewReader(stream))
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	buf := &format.FrameData{}
	buf.Video.Data = make([]byte, 64<<10)
	backing := &buf.Video.Data[0]

	ok, err := r.ReadFrameDataInto(buf, false, true)
	if !ok || err != nil {
		t.Fatalf("ReadFrameDataInto: got %v, %v", ok, err)
	}
	if &buf.Video.Data[0] != backing {
		t.Fatal("video buffer was reallocated")
	}
	if len(buf.Video.Data) != buf.Video.AlignedDataLength() {
		t.Fatalf("video len: got %d, want %d", len(buf.Video.Data), buf.Video.AlignedDataLength())
	}
}

func TestReadFrameDataTruncated(t *testing.T) {
	t.Parallel()

	h := pv4test.Header(t, 320, 240, format.Interlaced)
	frame := pv4test.Frame(0, 800, [4]uint32{320, 64, 0, 4096})
	stream, _ := pv4test.Encode(t, h, []*format.FrameData{frame})

	raw := frame.Video.RawLength()
	videoStart := format.HeaderSize + format.FramePreambleSize + format.AudioAlignmentFloor
	padding := len(stream) - videoStart - raw

	tests := []struct {
		name    string
		length  int
		wantErr error
	}{
		{"header only", format.HeaderSize, nil},
		{"partial preamble", format.HeaderSize + 100, io.ErrUnexpectedEOF},
		{"partial audio", format.HeaderSize + format.FramePreambleSize + 100, io.ErrUnexpectedEOF},
		{"partial video", videoStart + raw - 1, io.ErrUnexpectedEOF},
		{"missing padding", len(stream) - padding, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, seekable := range []bool{true, false} {
				var src io.Reader = bytes.NewReader(stream[:tc.length])
				if !seekable {
					src = onlyReader{src}
				}
				r := dvio.NewStreamReader(src)
				if _, err := r.ReadHeader(); err != nil {
					t.Fatalf("ReadHeader: %v", err)
				}
				_, err := r.ReadFrameData(true, true)
				if !errors.Is(err, tc.wantErr) || (tc.wantErr == nil && err != nil) {
					t.Fatalf("seekable=%v: got %v, want %v", seekable, err, tc.wantErr)
				}
			}
		})
	}
}

func TestReadFrameDataMissingPaddingZeroFilled(t *testing.T) {
	t.Parallel()

	h := pv4test.Header(t, 320, 240, format.Interlaced)
	frame := pv4test.Frame(0, 800, [4]uint32{320, 64, 0, 4096})
	stream, _ := pv4test.Encode(t, h, []*format.FrameData{frame})
	raw := frame.Video.RawLength()
	videoStart := format.HeaderSize + format.FramePreambleSize + format.AudioAlignmentFloor

	r := dvio.NewStreamReader(bytes.NewReader(stream[:videoStart+raw]))
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	buf := &format.FrameData{}
	buf.Video.Data = bytes.Repeat([]byte{0xaa}, 16<<10)
	if ok, err := r.ReadFrameDataInto(buf, false, true); !ok || err != nil {
		t.Fatalf("ReadFrameDataInto: got %v, %v", ok, err)
	}
	if !allZero(buf.Video.Data[raw:]) {
		t.Fatal("missing padding was not zero-filled")
	}
	if f, err := r.ReadFrameData(true, true); f != nil || err != nil {
		t.Fatalf("after short frame: got %v, %v, want nil, nil", f, err)
	}
}

func TestReadFrameDataCorruptBlockLength(t *testing.T) {
	t.Parallel()

	h := pv4test.Header(t, 320, 240, format.Interlaced)
	stream, _ := pv4test.Encode(t, h, pv4test.Frames(1))
	// Low byte of block #1.
	stream[format.HeaderSize+384+4+3] = 0x41

	r := dvio.NewStreamReader(bytes.NewReader(stream))
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	_, err := r.ReadFrameData(false, false)
	if !errors.Is(err, format.ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
	var blockErr *format.BlockLengthError
	if !errors.As(err, &blockErr) {
		t.Fatalf("got %T, want *format.BlockLengthError", err)
	}
	if blockErr.Block != 1 {
		t.Fatalf("block: got %d, want 1", blockErr.Block)
	}
}

func TestReadHeaderErrors(t *testing.T) {
	t.Parallel()

	h := pv4test.Header(t, 320, 240, format.Interlaced)
	stream, _ := pv4test.Encode(t, h, nil)

	short := dvio.NewStreamReader(bytes.NewReader(stream[:format.HeaderSize-1]))
	if _, err := short.ReadHeader(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("short header: got %v, want io.ErrUnexpectedEOF", err)
	}

	bad := bytes.Clone(stream)
	bad[0] = 'X'
	if _, err := dvio.NewStreamReader(bytes.NewReader(bad)).ReadHeader(); !errors.Is(err, format.ErrInvalidPreamble) {
		t.Fatalf("bad magic: got %v, want ErrInvalidPreamble", err)
	}
}

func TestStreamReaderSeekToFrame(t *testing.T) {
	t.Parallel()

	h := pv4test.Header(t, 320, 240, format.Interlaced)
	frames := pv4test.Frames(4)
	stream, index := pv4test.Encode(t, h, frames)

	entries, err := dvio.ReadIndex(bytes.NewReader(index))
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}

	r := dvio.NewStreamReader(bytes.NewReader(stream))
	for _, n := range []int{3, 0, 2} {
		pos, err := r.SeekToFrame(entries[n])
		if err != nil {
			t.Fatalf("SeekToFrame(%d): %v", n, err)
		}
		if pos != entries[n].FrameOffset() {
			t.Fatalf("position: got %d, want %d", pos, entries[n].FrameOffset())
		}
		f, err := r.ReadFrameData(false, true)
		if err != nil || f == nil {
			t.Fatalf("frame %d: got %v, %v", n, f, err)
		}
		if !bytes.Equal(f.Video.Data[:f.Video.RawLength()], frames[n].Video.Data) {
			t.Fatalf("frame %d: video payload differs", n)
		}
	}

	b, err := r.ReadFrameBytes(entries[1])
	if err != nil {
		t.Fatalf("ReadFrameBytes: %v", err)
	}
	if int64(len(b)) != entries[1].FrameSize() {
		t.Fatalf("frame bytes: got %d, want %d", len(b), entries[1].FrameSize())
	}
	off := entries[1].FrameOffset()
	if !bytes.Equal(b, stream[off:off+int64(len(b))]) {
		t.Fatal("frame bytes differ from stream")
	}
}

func TestStreamReaderNotSeekable(t *testing.T) {
	t.Parallel()

	r := dvio.NewStreamReader(onlyReader{bytes.NewReader(nil)})
	if r.Seekable() {
		t.Fatal("Seekable: got true, want false")
	}
	if _, err := r.SeekToFirstFrame(); !errors.Is(err, dvio.ErrNotSeekable) {
		t.Fatalf("SeekToFirstFrame: got %v, want ErrNotSeekable", err)
	}
}

func TestStreamReaderClose(t *testing.T) {
	t.Parallel()

	r := dvio.NewStreamReader(bytes.NewReader(nil))
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := r.ReadFrameData(true, true); !errors.Is(err, dvio.ErrClosed) {
		t.Fatalf("ReadFrameData after Close: got %v, want ErrClosed", err)
	}
	if _, err := r.ReadHeader(); !errors.Is(err, dvio.ErrClosed) {
		t.Fatalf("ReadHeader after Close: got %v, want ErrClosed", err)
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
