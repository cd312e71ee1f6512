package codec

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"testing"

	"github.com/zsiec/pv4/format"
)

func TestBandRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		height int
		want   [4]int
	}{
		{480, [4]int{120, 120, 120, 120}},
		{10, [4]int{4, 2, 2, 2}},
		{3, [4]int{3, 0, 0, 0}},
		{0, [4]int{0, 0, 0, 0}},
	}
	for _, tc := range tests {
		if got := BandRows(tc.height); got != tc.want {
			t.Errorf("BandRows(%d): got %v, want %v", tc.height, got, tc.want)
		}
	}
}

func TestSplitRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		height, n int
		want      []tile
	}{
		{10, 3, []tile{{0, 4}, {4, 3}, {7, 3}}},
		{2, 8, []tile{{0, 1}, {1, 1}}},
		{0, 4, nil},
	}
	for _, tc := range tests {
		if got := splitRows(tc.height, tc.n); !slices.Equal(got, tc.want) {
			t.Errorf("splitRows(%d, %d): got %v, want %v", tc.height, tc.n, got, tc.want)
		}
	}
}

func TestRawEncoderLayout(t *testing.T) {
	t.Parallel()

	h, err := format.NewHeader(32, 16, format.Interlaced)
	if err != nil {
		t.Fatal(err)
	}
	stride := 80
	pic := make([]byte, stride*16)
	for i := range pic {
		pic[i] = byte(i)
	}

	enc := NewRawEncoder(h)
	enc.Quality = 2
	f, err := enc.EncodePackedYUV422Frame(pic, stride, format.Ratio{Num: 16, Den: 9})
	if err != nil {
		t.Fatalf("EncodePackedYUV422Frame: %v", err)
	}
	want := [4]uint32{256, 256, 256, 256}
	if f.Video.BlockLength != want {
		t.Fatalf("blocks: got %v, want %v", f.Video.BlockLength, want)
	}
	if f.Video.EncodingQuality != 2 || f.Video.DisplayAspectRatio() != (format.Ratio{Num: 16, Den: 9}) {
		t.Fatalf("video fields: %+v", f.Video)
	}
	for y := 0; y < 16; y++ {
		if !slices.Equal(f.Video.Data[y*64:(y+1)*64], pic[y*stride:y*stride+64]) {
			t.Fatalf("row %d differs", y)
		}
	}

	out := make([]byte, 64*16)
	if err := unpackRaw(&f.Video, 32, 16, out, 64); err != nil {
		t.Fatalf("unpackRaw: %v", err)
	}
	if !slices.Equal(out, f.Video.Data) {
		t.Fatal("unpacked payload differs")
	}

	if _, err := enc.EncodePackedYUV422Frame(pic[:100], stride, format.Ratio{}); !errors.Is(err, ErrShortSource) {
		t.Fatalf("short source: got %v, want ErrShortSource", err)
	}
}

func TestUnpackRawRejectsBands(t *testing.T) {
	t.Parallel()

	v := &format.VideoData{
		BlockLength: [4]uint32{512, 0, 256, 256},
		Data:        make([]byte, 1024),
	}
	if err := unpackRaw(v, 32, 16, make([]byte, 1024), 64); !errors.Is(err, ErrUnsupportedPayload) {
		t.Fatalf("got %v, want ErrUnsupportedPayload", err)
	}
}

func TestDefaultThreadCount(t *testing.T) {
	t.Parallel()

	want := runtime.NumCPU()
	if want == 1 {
		want = 0
	}
	if got := DefaultThreadCount(); got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestBaseClose(t *testing.T) {
	t.Parallel()

	b := NewBase(nil, 0)
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b.Release()

	b.Close()
	b.Close()
	if err := b.CheckClosed(); !errors.Is(err, ErrClosed) {
		t.Fatalf("CheckClosed: got %v, want ErrClosed", err)
	}
	if err := b.Acquire(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Acquire after Close: got %v, want ErrClosed", err)
	}
}

func TestBitmapImage(t *testing.T) {
	t.Parallel()

	b := NewBitmap(2, 1, FormatRGB32)
	copy(b.Pix, []byte{10, 20, 30, 0, 40, 50, 60, 0})
	img, err := b.Image()
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	want := []byte{30, 20, 10, 0xff, 60, 50, 40, 0xff}
	if !slices.Equal(img.Pix, want) {
		t.Fatalf("got %v, want %v", img.Pix, want)
	}

	if _, err := NewBitmap(2, 1, FormatRGB24).Image(); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("RGB24: got %v, want ErrUnsupportedFormat", err)
	}
}
