package dvio

import (
	"bufio"
	"io"
	"os"

	"github.com/zsiec/pv4/format"
)

// IndexWriter appends fixed-size records to an index file.
type IndexWriter struct {
	w      *bufio.Writer
	closer io.Closer
	closed bool
	buf    [format.IndexEntrySize]byte
}

// NewIndexWriter returns a writer over w. The writer does not take
// ownership of w; Close flushes but leaves it open.
func NewIndexWriter(w io.Writer) *IndexWriter {
	return &IndexWriter{w: bufio.NewWriter(w)}
}

// CreateIndexFile creates or truncates path. Close closes the file.
func CreateIndexFile(path string) (*IndexWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := NewIndexWriter(f)
	w.closer = f
	return w, nil
}

// Write appends one entry.
func (w *IndexWriter) Write(e format.IndexEntry) error {
	if w.closed {
		return ErrClosed
	}
	if err := e.PutBinary(w.buf[:]); err != nil {
		return err
	}
	_, err := w.w.Write(w.buf[:])
	return err
}

// Flush writes buffered entries to the underlying writer.
func (w *IndexWriter) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.w.Flush()
}

// Close flushes and releases the writer. It is safe to call more than once.
func (w *IndexWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
