package dvio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zsiec/pv4/format"
)

// StreamAndIndexWriter writes a stream file and, optionally, its index in
// lockstep. It stamps each frame's precedent audio sample count from the
// running total, so callers only fill in per-frame counts.
type StreamAndIndexWriter struct {
	stream *StreamWriter
	index  *IndexWriter
	closed bool
	err    error // first write that left stream and index out of step

	frames  int64
	samples uint64
}

// NewStreamAndIndexWriter writes h to stream and returns the combined
// writer. index may be nil, in which case no index is written. Neither
// writer is owned.
func NewStreamAndIndexWriter(h *format.Header, stream io.Writer, index io.Writer) (*StreamAndIndexWriter, error) {
	w := &StreamAndIndexWriter{stream: NewStreamWriter(stream)}
	if index != nil {
		w.index = NewIndexWriter(index)
	}
	if err := w.stream.WriteHeader(h); err != nil {
		return nil, fmt.Errorf("dvio: write header: %w", err)
	}
	return w, nil
}

// CreateStreamAndIndexFile creates the stream file at path and, when
// withIndex is set, its companion index file. Close closes both files.
func CreateStreamAndIndexFile(h *format.Header, path string, withIndex bool) (*StreamAndIndexWriter, error) {
	stream, err := CreateStreamFile(StreamFilePath(path))
	if err != nil {
		return nil, err
	}
	w := &StreamAndIndexWriter{stream: stream}
	if withIndex {
		w.index, err = CreateIndexFile(IndexFilePath(path))
		if err != nil {
			stream.Close()
			return nil, err
		}
	}
	if err := w.stream.WriteHeader(h); err != nil {
		w.Close()
		return nil, fmt.Errorf("dvio: write header: %w", err)
	}
	return w, nil
}

// Write appends f to the stream and its entry to the index. The precedent
// audio sample count of f is overwritten. A frame rejected before any byte
// was written leaves the writer usable; any other failure makes every later
// Write return ErrWriterFailed.
func (w *StreamAndIndexWriter) Write(f *format.FrameData) error {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return fmt.Errorf("%w: %w", ErrWriterFailed, w.err)
	}

	offset := w.stream.Position()
	f.Audio.PrecedentSampleCount = w.samples

	n, err := w.stream.Write(f)
	if err != nil {
		if n > 0 {
			w.err = err
		}
		return fmt.Errorf("dvio: write frame %d: %w", w.frames, err)
	}

	if w.index != nil {
		entry, err := NewIndexEntryFor(f, offset, n)
		if err == nil {
			err = w.index.Write(entry)
		}
		if err != nil {
			w.err = err
			return fmt.Errorf("dvio: index frame %d: %w", w.frames, err)
		}
	}

	w.frames++
	w.samples += uint64(f.Audio.SampleCount)
	return nil
}

// NewIndexEntryFor returns the index entry of f written at offset spanning
// size bytes.
func NewIndexEntryFor(f *format.FrameData, offset, size int64) (format.IndexEntry, error) {
	e, err := format.NewIndexEntry(offset, size)
	if err != nil {
		return format.IndexEntry{}, err
	}
	e.SetAudio(f)
	return e, nil
}

// FramesWritten returns the number of frames written so far.
func (w *StreamAndIndexWriter) FramesWritten() int64 { return w.frames }

// SamplesWritten returns the running audio sample total.
func (w *StreamAndIndexWriter) SamplesWritten() uint64 { return w.samples }

// Position returns the stream file offset of the next frame.
func (w *StreamAndIndexWriter) Position() int64 { return w.stream.Position() }

// Flush flushes both writers.
func (w *StreamAndIndexWriter) Flush() error {
	if w.closed {
		return ErrClosed
	}
	err := w.stream.Flush()
	if w.index != nil {
		err = errors.Join(err, w.index.Flush())
	}
	return err
}

// Close closes both writers. It is safe to call more than once.
func (w *StreamAndIndexWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.stream.Close()
	if w.index != nil {
		err = errors.Join(err, w.index.Close())
	}
	return err
}

// RemoveFiles deletes the stream and index files that belong to path. Missing
// files are ignored.
func RemoveFiles(path string) error {
	var errs []error
	for _, p := range []string{StreamFilePath(path), IndexFilePath(path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
