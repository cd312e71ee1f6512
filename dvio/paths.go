package dvio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zsiec/pv4/format"
)

// StreamFilePath returns the stream file path that belongs to a stream or
// index file path.
func StreamFilePath(streamOrIndexPath string) string {
	return withExt(streamOrIndexPath, format.StreamFileExtension)
}

// IndexFilePath returns the index file path that belongs to a stream or
// index file path.
func IndexFilePath(streamOrIndexPath string) string {
	return withExt(streamOrIndexPath, format.IndexFileExtension)
}

func withExt(p, ext string) string {
	return strings.TrimSuffix(p, filepath.Ext(p)) + ext
}

// IsStreamFile reports whether path is large enough to hold a header and
// starts with the stream preamble.
func IsStreamFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() < format.HeaderSize {
		return false, nil
	}

	var magic [len(format.Preamble)]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false, nil
	}
	return bytes.Equal(magic[:], format.Preamble[:]), nil
}
