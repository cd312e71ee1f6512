package dvio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zsiec/pv4/format"
)

// IndexReader reads fixed-size records from a headerless index file.
type IndexReader struct {
	r      io.Reader
	closer io.Closer
	closed bool
	buf    [format.IndexEntrySize]byte
}

// NewIndexReader returns a reader over r. The reader does not take
// ownership of r.
func NewIndexReader(r io.Reader) *IndexReader {
	return &IndexReader{r: r}
}

// OpenIndexFile opens path for reading. Close closes the file.
func OpenIndexFile(path string) (*IndexReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &IndexReader{r: f, closer: f}, nil
}

// ReadEntry reads the next entry. It reports false with a zero entry when
// fewer than IndexEntrySize bytes remain; that is the end of the index, not
// an error.
func (r *IndexReader) ReadEntry() (format.IndexEntry, bool, error) {
	if r.closed {
		return format.IndexEntry{}, false, ErrClosed
	}
	if _, err := io.ReadFull(r.r, r.buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return format.IndexEntry{}, false, nil
		}
		return format.IndexEntry{}, false, fmt.Errorf("dvio: read index entry: %w", err)
	}
	var e format.IndexEntry
	if err := e.UnmarshalBinary(r.buf[:]); err != nil {
		return format.IndexEntry{}, false, err
	}
	return e, true, nil
}

// ReadAllEntry reads entries up to the first short read. On seekable
// sources the result is pre-sized from the remaining length.
func (r *IndexReader) ReadAllEntry() ([]format.IndexEntry, error) {
	if r.closed {
		return nil, ErrClosed
	}

	var entries []format.IndexEntry
	if sk, ok := r.r.(io.Seeker); ok {
		if n, ok := remaining(sk); ok {
			entries = make([]format.IndexEntry, 0, n/format.IndexEntrySize)
		}
	}

	for {
		e, ok, err := r.ReadEntry()
		if err != nil {
			return entries, err
		}
		if !ok {
			return entries, nil
		}
		entries = append(entries, e)
	}
}

// Close releases the reader. It is safe to call more than once.
func (r *IndexReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func remaining(sk io.Seeker) (int64, bool) {
	cur, err := sk.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, false
	}
	end, err := sk.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, false
	}
	if _, err := sk.Seek(cur, io.SeekStart); err != nil {
		return 0, false
	}
	return end - cur, true
}
