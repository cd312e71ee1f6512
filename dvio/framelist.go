package dvio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/zsiec/pv4/format"
)

// GetFrameList returns the frame index of the container at path, which may
// name either the stream or the index file. The index file is used when it
// exists. Otherwise the index is derived by scanning the stream file if
// allowGenerate is set, or ErrIndexNotFound is returned.
func GetFrameList(path string, allowGenerate bool) ([]format.IndexEntry, error) {
	entries, err := GetFrameListFromIndexFile(IndexFilePath(path))
	switch {
	case err == nil:
		return entries, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	case !allowGenerate:
		return nil, ErrIndexNotFound
	}
	return GetFrameListFromStreamFile(StreamFilePath(path))
}

// GetFrameListFromIndexFile reads the index file at path.
func GetFrameListFromIndexFile(path string) ([]format.IndexEntry, error) {
	return LoadIndexFile(path)
}

// GetFrameListFromStreamFile derives the index of the stream file at path by
// walking its frame records.
func GetFrameListFromStreamFile(path string) ([]format.IndexEntry, error) {
	r, err := OpenStreamFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return FrameListFromStream(r)
}

// FrameListFromStream derives an index from r, which must be positioned at
// the start of a stream. Payloads are skipped, so seekable readers only
// touch frame preambles. The result equals the index StreamAndIndexWriter
// would have written for the same frames.
func FrameListFromStream(r *StreamReader) ([]format.IndexEntry, error) {
	if _, err := r.ReadHeader(); err != nil {
		return nil, err
	}

	var (
		entries []format.IndexEntry
		frame   format.FrameData
	)
	for {
		offset := r.Position()
		ok, err := r.ReadFrameDataInto(&frame, false, false)
		if err != nil {
			return entries, fmt.Errorf("dvio: scan frame %d: %w", len(entries), err)
		}
		if !ok {
			return entries, nil
		}
		e, err := NewIndexEntryFor(&frame, offset, r.Position()-offset)
		if err != nil {
			return entries, fmt.Errorf("dvio: scan frame %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
}

// WriteIndexFile writes entries to a new index file at path.
func WriteIndexFile(path string, entries []format.IndexEntry) (err error) {
	w, err := CreateIndexFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			return err
		}
	}
	return nil
}

// ReadIndex reads every entry from r.
func ReadIndex(r io.Reader) ([]format.IndexEntry, error) {
	return NewIndexReader(r).ReadAllEntry()
}

func decodeEntries(b []byte) ([]format.IndexEntry, error) {
	entries := make([]format.IndexEntry, len(b)/format.IndexEntrySize)
	for i := range entries {
		if err := entries[i].UnmarshalBinary(b[i*format.IndexEntrySize:]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
