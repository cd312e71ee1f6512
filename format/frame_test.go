package format

import (
	"errors"
	"testing"
)

func TestAudioAlignedLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		samples int
		want    int
	}{
		{0, 3584},
		{801, 3584},
		{896, 3584},
		{897, 7680},
		{1920, 7680},
		{1921, 11776},
		{2048, 11776},
	}

	for _, tc := range tests {
		if got := AudioAlignedLength(tc.samples); got != tc.want {
			t.Errorf("AudioAlignedLength(%d) = %d, want %d", tc.samples, got, tc.want)
		}
	}
}

func TestAudioAlignedLengthInvariant(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 0xffff; n += 7 {
		got := AudioAlignedLength(n)
		raw := n * AudioBytesPerSample
		if got < raw {
			t.Fatalf("AudioAlignedLength(%d) = %d, shorter than raw %d", n, got, raw)
		}
		if (got+FramePreambleSize)%Alignment != 0 {
			t.Fatalf("AudioAlignedLength(%d) = %d, preamble+audio not 4096-aligned", n, got)
		}
		if got-raw >= Alignment && got != AudioAlignmentFloor {
			t.Fatalf("AudioAlignedLength(%d) = %d, padding exceeds one unit", n, got)
		}
	}
}

func TestVideoAlignedLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		blocks [4]uint32
		want   int
	}{
		{[4]uint32{}, 0},
		{[4]uint32{32, 0, 0, 0}, 4096},
		{[4]uint32{1024, 1024, 1024, 1024}, 4096},
		{[4]uint32{1024, 1024, 1024, 1056}, 8192},
		{[4]uint32{0x2000, 0x1000, 0x1000, 0x1000}, 0x5000},
	}

	for _, tc := range tests {
		if got := VideoAlignedLength(tc.blocks); got != tc.want {
			t.Errorf("VideoAlignedLength(%v) = %d, want %d", tc.blocks, got, tc.want)
		}
	}
}

func TestPreambleRoundTrip(t *testing.T) {
	t.Parallel()

	want := FrameData{
		Audio: AudioData{
			PrecedentSampleCount: 1<<40 + 801,
			SampleCount:          801,
			SamplingFrequency:    48000,
		},
		Video: VideoData{
			DisplayAspectH:  16,
			DisplayAspectV:  9,
			EncodingQuality: 3,
			BlockLength:     [4]uint32{0x8000, 0x4020, 0x20, 0},
		},
	}

	b := make([]byte, FramePreambleSize)
	for i := range b {
		b[i] = 0xee
	}
	if err := want.PutPreamble(b); err != nil {
		t.Fatalf("PutPreamble: %v", err)
	}
	if b[14] != 0 || b[511] != 0 {
		t.Error("reserved bytes not zeroed")
	}

	var got FrameData
	if err := got.ParsePreamble(b); err != nil {
		t.Fatalf("ParsePreamble: %v", err)
	}
	if got.Audio.PrecedentSampleCount != want.Audio.PrecedentSampleCount {
		t.Errorf("precedent = %d, want %d", got.Audio.PrecedentSampleCount, want.Audio.PrecedentSampleCount)
	}
	if got.Audio.SampleCount != 801 || got.Audio.SamplingFrequency != 48000 {
		t.Errorf("audio = %+v", got.Audio)
	}
	if got.Video.BlockLength != want.Video.BlockLength {
		t.Errorf("blocks = %v, want %v", got.Video.BlockLength, want.Video.BlockLength)
	}
	if got.Video.DisplayAspectRatio() != (Ratio{16, 9}) {
		t.Errorf("aspect = %v, want 16/9", got.Video.DisplayAspectRatio())
	}
	if got.Video.EncodingQuality != 3 {
		t.Errorf("quality = %d, want 3", got.Video.EncodingQuality)
	}
	if got.Size() != 512+3584+0xd000 {
		t.Errorf("Size = %#x, want %#x", got.Size(), 512+3584+0xd000)
	}
}

func TestParsePreambleBlockLength(t *testing.T) {
	t.Parallel()

	b := make([]byte, FramePreambleSize)
	f := FrameData{Video: VideoData{BlockLength: [4]uint32{32, 64, 32, 0}}}
	if err := f.PutPreamble(b); err != nil {
		t.Fatalf("PutPreamble: %v", err)
	}
	b[384+4*2+3] = 0x21 // block #2 = 33

	var got FrameData
	err := got.ParsePreamble(b)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("error = %v, want ErrCorrupt", err)
	}
	var ble *BlockLengthError
	if !errors.As(err, &ble) {
		t.Fatalf("error %T is not *BlockLengthError", err)
	}
	if ble.Block != 2 || ble.Length != 33 {
		t.Errorf("got block #%d length %d, want block #2 length 33", ble.Block, ble.Length)
	}
}

func TestPutPreambleRejects(t *testing.T) {
	t.Parallel()

	b := make([]byte, FramePreambleSize)

	f := FrameData{Audio: AudioData{PrecedentSampleCount: 1 << 48}}
	if err := f.PutPreamble(b); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("oversized precedent count: error = %v, want ErrOutOfRange", err)
	}

	f = FrameData{Video: VideoData{BlockLength: [4]uint32{31}}}
	if err := f.PutPreamble(b); !errors.Is(err, ErrCorrupt) {
		t.Errorf("misaligned block: error = %v, want ErrCorrupt", err)
	}

	if err := f.PutPreamble(b[:100]); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short buffer: error = %v, want ErrShortBuffer", err)
	}
}

func TestVideoBlock(t *testing.T) {
	t.Parallel()

	data := make([]byte, 128)
	for i := range data {
		data[i] = byte(i)
	}
	var f FrameData
	if err := f.SetVideoBlocks(data, [4]uint32{32, 64, 0, 32}); err != nil {
		t.Fatalf("SetVideoBlocks: %v", err)
	}

	blk, err := f.Video.Block(1)
	if err != nil {
		t.Fatalf("Block(1): %v", err)
	}
	if len(blk) != 64 || blk[0] != 32 {
		t.Errorf("block 1: len %d first %d, want len 64 first 32", len(blk), blk[0])
	}
	if blk, _ := f.Video.Block(2); len(blk) != 0 {
		t.Errorf("block 2: len %d, want 0", len(blk))
	}
	if _, err := f.Video.Block(4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Block(4) error = %v, want ErrOutOfRange", err)
	}

	if err := f.SetVideoBlocks(data, [4]uint32{32, 32, 32, 0}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("mismatched sum: error = %v, want ErrCorrupt", err)
	}
}

func FuzzParsePreamble(f *testing.F) {
	seed := make([]byte, FramePreambleSize)
	f.Add(seed)
	f.Add(seed[:10])

	f.Fuzz(func(t *testing.T, data []byte) {
		var fd FrameData
		if err := fd.ParsePreamble(data); err != nil {
			return
		}
		if fd.Video.AlignedDataLength() < fd.Video.RawLength() {
			t.Fatalf("aligned %d < raw %d", fd.Video.AlignedDataLength(), fd.Video.RawLength())
		}
		if fd.Audio.AlignedDataLength() < fd.Audio.RawLength() {
			t.Fatalf("aligned %d < raw %d", fd.Audio.AlignedDataLength(), fd.Audio.RawLength())
		}
	})
}
