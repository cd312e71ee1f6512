package dv

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/zsiec/pv4/dvio"
	"github.com/zsiec/pv4/format"
)

var (
	// ErrClosed is returned by every operation on a closed DV.
	ErrClosed = errors.New("dv: container is closed")

	// ErrFrameOutOfRange is returned when a frame number or range falls
	// outside [0, FrameCount).
	ErrFrameOutOfRange = errors.New("dv: frame number out of range")
)

// DV is an open container.
type DV struct {
	mu     sync.Mutex
	reader *dvio.StreamReader
	closed bool

	streamPath string
	indexPath  string
	header     format.Header
	frameRate  format.Ratio
	entries    []format.IndexEntry

	aspect       format.Ratio
	samplingRate format.Ratio
}

// Open opens the container named by path, which may be the stream or the
// index file. Without an index file the index is derived from the stream if
// allowGenerateIndex is set; otherwise dvio.ErrIndexNotFound is returned.
func Open(path string, allowGenerateIndex bool) (*DV, error) {
	streamPath := dvio.StreamFilePath(path)
	indexPath := dvio.IndexFilePath(path)

	if _, err := os.Stat(streamPath); err != nil {
		return nil, fmt.Errorf("dv: stream file: %w", err)
	}
	if _, err := os.Stat(indexPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("dv: index file: %w", err)
		}
		if !allowGenerateIndex {
			return nil, dvio.ErrIndexNotFound
		}
		indexPath = ""
	}

	var (
		entries []format.IndexEntry
		err     error
	)
	if indexPath != "" {
		entries, err = dvio.GetFrameListFromIndexFile(indexPath)
	} else {
		entries, err = dvio.GetFrameListFromStreamFile(streamPath)
	}
	if err != nil {
		return nil, fmt.Errorf("dv: load index: %w", err)
	}

	r, err := dvio.OpenStreamFile(streamPath)
	if err != nil {
		return nil, err
	}
	d, err := newDV(r, entries)
	if err != nil {
		r.Close()
		return nil, err
	}
	d.streamPath = streamPath
	d.indexPath = indexPath
	return d, nil
}

// New returns a DV over an already open seekable reader and its index. The
// DV takes ownership of r.
func New(r *dvio.StreamReader, entries []format.IndexEntry) (*DV, error) {
	if !r.Seekable() {
		return nil, dvio.ErrNotSeekable
	}
	return newDV(r, entries)
}

func newDV(r *dvio.StreamReader, entries []format.IndexEntry) (*DV, error) {
	h, err := r.ReadHeader()
	if err != nil {
		return nil, fmt.Errorf("dv: %w", err)
	}
	rate, err := h.FrameRate()
	if err != nil {
		return nil, err
	}
	d := &DV{
		reader:    r,
		header:    *h,
		frameRate: rate,
		entries:   entries,
	}

	// Aspect ratio and sampling rate come from the first frame.
	first, err := r.ReadFrameData(false, false)
	if err != nil {
		return nil, fmt.Errorf("dv: first frame: %w", err)
	}
	if first != nil {
		d.aspect = first.Video.DisplayAspectRatio()
		d.samplingRate = first.Audio.SamplingRate()
	}
	return d, nil
}

// Header returns a copy of the stream header.
func (d *DV) Header() *format.Header {
	h := d.header
	return &h
}

func (d *DV) Width() int                     { return d.header.Width() }
func (d *DV) Height() int                    { return d.header.Height() }
func (d *DV) Scanning() format.FrameScanning { return d.header.Scanning }
func (d *DV) FrameRate() format.Ratio        { return d.frameRate }
func (d *DV) FrameCount() int                { return len(d.entries) }

// StreamPath returns the stream file path, or "" for a DV built with New.
func (d *DV) StreamPath() string { return d.streamPath }

// IndexPath returns the index file path, or "" when the index was derived.
func (d *DV) IndexPath() string { return d.indexPath }

// DisplayAspectRatio returns the display aspect of the most recently read
// video payload, initially that of the first frame.
func (d *DV) DisplayAspectRatio() format.Ratio {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aspect
}

// AudioSamplingRate returns the sampling rate of the most recently read
// audio block, initially that of the first frame.
func (d *DV) AudioSamplingRate() format.Ratio {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.samplingRate
}

// Index returns the index entry of frame n.
func (d *DV) Index(n int) (format.IndexEntry, error) {
	if err := d.checkFrame(n); err != nil {
		return format.IndexEntry{}, err
	}
	return d.entries[n], nil
}

// Entries returns a copy of the index.
func (d *DV) Entries() []format.IndexEntry {
	return append([]format.IndexEntry(nil), d.entries...)
}

// ForEachIndex calls fn for every index entry in order, stopping at the
// first error.
func (d *DV) ForEachIndex(fn func(n int, e format.IndexEntry) error) error {
	if d.isClosed() {
		return ErrClosed
	}
	for n, e := range d.entries {
		if err := fn(n, e); err != nil {
			return err
		}
	}
	return nil
}

// Frame reads frame n.
func (d *DV) Frame(n int, readVideo, readAudio bool) (*format.FrameData, error) {
	f := new(format.FrameData)
	if err := d.FrameInto(n, f, readVideo, readAudio); err != nil {
		return nil, err
	}
	return f, nil
}

// FrameInto reads frame n into buf, reusing its payload buffers.
func (d *DV) FrameInto(n int, buf *format.FrameData, readVideo, readAudio bool) error {
	if err := d.checkFrame(n); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.readFrameLocked(n, buf, readVideo, readAudio)
}

func (d *DV) readFrameLocked(n int, buf *format.FrameData, readVideo, readAudio bool) error {
	if _, err := d.reader.SeekToFrame(d.entries[n]); err != nil {
		return fmt.Errorf("dv: seek frame %d: %w", n, err)
	}
	ok, err := d.reader.ReadFrameDataInto(buf, readAudio, readVideo)
	if err != nil {
		return fmt.Errorf("dv: frame %d: %w", n, err)
	}
	if !ok {
		return fmt.Errorf("dv: frame %d: %w", n, io.ErrUnexpectedEOF)
	}
	if readVideo {
		d.aspect = buf.Video.DisplayAspectRatio()
	}
	if readAudio {
		d.samplingRate = buf.Audio.SamplingRate()
	}
	return nil
}

// ReadFrameBytes returns the raw record bytes of frame n.
func (d *DV) ReadFrameBytes(n int) ([]byte, error) {
	if err := d.checkFrame(n); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.reader.ReadFrameBytes(d.entries[n])
}

// ForEachOptions selects the frames and payloads ForEachFrame visits.
type ForEachOptions struct {
	Start int
	// Count is the number of frames to visit; 0 visits every frame from
	// Start to the end.
	Count int

	SkipVideo bool
	SkipAudio bool

	// ReuseBuffer passes the same FrameData to every call. Callbacks must
	// not retain it.
	ReuseBuffer bool
}

// ForEachFrame reads the frames selected by opts in order and calls fn with
// each. It stops at the first error, returning it. fn may call other
// methods of d.
func (d *DV) ForEachFrame(opts ForEachOptions, fn func(n int, f *format.FrameData) error) error {
	if d.isClosed() {
		return ErrClosed
	}
	count := opts.Count
	if count == 0 {
		count = len(d.entries) - opts.Start
	}
	if err := d.checkRange(opts.Start, count); err != nil {
		return err
	}

	var buf *format.FrameData
	for n := opts.Start; n < opts.Start+count; n++ {
		if buf == nil || !opts.ReuseBuffer {
			buf = new(format.FrameData)
		}
		d.mu.Lock()
		err := ErrClosed
		if !d.closed {
			err = d.readFrameLocked(n, buf, !opts.SkipVideo, !opts.SkipAudio)
		}
		d.mu.Unlock()
		if err != nil {
			return err
		}
		if err := fn(n, buf); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the stream file. It is safe to call more than once.
func (d *DV) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.reader.Close()
}

func (d *DV) String() string {
	scan := "(?)"
	switch d.header.Scanning {
	case format.Progressive:
		scan = "p"
	case format.Interlaced:
		scan = "i"
	}
	return fmt.Sprintf("{Format=%dx%d%s, FrameCount=%d, StreamFile='%s', IndexFile='%s'}",
		d.Width(), d.Height(), scan, d.FrameCount(), filepath.ToSlash(d.streamPath), filepath.ToSlash(d.indexPath))
}

func (d *DV) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *DV) checkFrame(n int) error {
	if d.isClosed() {
		return ErrClosed
	}
	if n < 0 || n >= len(d.entries) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrFrameOutOfRange, n, len(d.entries))
	}
	return nil
}

func (d *DV) checkRange(start, count int) error {
	if start < 0 || count < 0 || start+count > len(d.entries) || (count > 0 && start >= len(d.entries)) {
		return fmt.Errorf("%w: [%d, %d) not in [0, %d)", ErrFrameOutOfRange, start, start+count, len(d.entries))
	}
	return nil
}
