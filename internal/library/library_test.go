package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zsiec/pv4/codec"
	"github.com/zsiec/pv4/format"
	"github.com/zsiec/pv4/internal/metrics"
	"github.com/zsiec/pv4/internal/pv4test"
)

func newLibrary(t *testing.T, scanning format.FrameScanning, frames int) *Library {
	t.Helper()
	dir := t.TempDir()
	h := pv4test.Header(t, 64, 48, scanning)
	pv4test.WriteContainer(t, dir, "cam1-20260301-120000", h, pv4test.RawFrames(t, h, frames), true)
	l := New(dir, Config{DecodeThreads: 1, Metrics: metrics.New()})
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLibraryList(t *testing.T) {
	t.Parallel()

	l := newLibrary(t, format.Interlaced, 2)
	// Not a stream file.
	if err := os.WriteFile(filepath.Join(l.Dir(), "junk.dv"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := l.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d entries, want 1", len(list))
	}
	if list[0].Name != "cam1-20260301-120000" || !list[0].HasIndex {
		t.Fatalf("got %+v", list[0])
	}
}

func TestLibraryListMissingDir(t *testing.T) {
	t.Parallel()

	l := New(filepath.Join(t.TempDir(), "absent"), Config{})
	list, err := l.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("got %d entries, want 0", len(list))
	}
}

func TestLibraryInfo(t *testing.T) {
	t.Parallel()

	l := newLibrary(t, format.Interlaced, 3)
	info, err := l.Info("cam1-20260301-120000")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Width != 64 || info.Height != 48 {
		t.Errorf("got %dx%d, want 64x48", info.Width, info.Height)
	}
	if info.FrameCount != 3 {
		t.Errorf("frame count: got %d, want 3", info.FrameCount)
	}
	if info.Scanning != "interlaced" || !info.IndexFile || info.Backend != "raw" {
		t.Errorf("got %+v", info)
	}
	if info.DurationMs != 100 {
		t.Errorf("duration: got %dms, want 100ms", info.DurationMs)
	}
}

func TestLibraryBadNames(t *testing.T) {
	t.Parallel()

	l := newLibrary(t, format.Interlaced, 1)
	for _, name := range []string{"", "..", "../etc", "a/b", ".hidden", "missing"} {
		if _, err := l.Info(name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Info(%q): got %v, want ErrNotFound", name, err)
		}
	}
}

func TestLibraryFrames(t *testing.T) {
	t.Parallel()

	l := newLibrary(t, format.Interlaced, 2)
	name := "cam1-20260301-120000"

	entries, err := l.Index(name)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	b, err := l.FrameBytes(name, 1)
	if err != nil {
		t.Fatalf("FrameBytes: %v", err)
	}
	if int64(len(b)) != entries[1].FrameSize() {
		t.Fatalf("got %d bytes, want %d", len(b), entries[1].FrameSize())
	}
	if _, err := l.FrameBytes(name, 2); !errors.Is(err, codec.ErrFrameOutOfRange) {
		t.Fatalf("got %v, want ErrFrameOutOfRange", err)
	}
}

func TestLibraryDecodeImage(t *testing.T) {
	t.Parallel()

	l := newLibrary(t, format.Interlaced, 1)
	name := "cam1-20260301-120000"

	for _, field := range []string{"", "top", "bottom"} {
		img, err := l.DecodeImage(name, 0, field)
		if err != nil {
			t.Fatalf("DecodeImage(%q): %v", field, err)
		}
		if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
			t.Fatalf("field %q: got %v, want 64x48", field, b)
		}
	}
	if _, err := l.DecodeImage(name, 0, "middle"); !errors.Is(err, ErrBadField) {
		t.Fatalf("got %v, want ErrBadField", err)
	}
}

func TestLibraryDecodeFieldsProgressive(t *testing.T) {
	t.Parallel()

	l := newLibrary(t, format.Progressive, 1)
	_, err := l.DecodeImage("cam1-20260301-120000", 0, "top")
	if !errors.Is(err, codec.ErrNotInterlaced) {
		t.Fatalf("got %v, want ErrNotInterlaced", err)
	}
}

func TestLibraryReopensChangedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := pv4test.Header(t, 64, 48, format.Progressive)
	pv4test.WriteContainer(t, dir, "cam1", h, pv4test.RawFrames(t, h, 1), true)
	l := New(dir, Config{})
	defer l.Close()

	info, err := l.Info("cam1")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.FrameCount != 1 {
		t.Fatalf("frame count: got %d, want 1", info.FrameCount)
	}

	pv4test.WriteContainer(t, dir, "cam1", h, pv4test.RawFrames(t, h, 4), true)
	info, err = l.Info("cam1")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.FrameCount != 4 {
		t.Fatalf("frame count after rewrite: got %d, want 4", info.FrameCount)
	}
}

func TestLibraryExtract(t *testing.T) {
	t.Parallel()

	l := newLibrary(t, format.Interlaced, 4)
	x, err := l.Extract(context.Background(), "cam1-20260301-120000", 1, 2, "clip")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	select {
	case <-x.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("extraction did not finish")
	}
	if err := x.Err(); err != nil {
		t.Fatalf("extraction: %v", err)
	}
	info, err := l.Info("clip")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.FrameCount != 2 {
		t.Fatalf("frame count: got %d, want 2", info.FrameCount)
	}

	if _, err := l.Extract(context.Background(), "cam1-20260301-120000", 0, 1, "clip"); !errors.Is(err, os.ErrExist) {
		t.Fatalf("got %v, want os.ErrExist", err)
	}
	if _, err := l.Extract(context.Background(), "missing", 0, 1, "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
