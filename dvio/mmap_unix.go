//go:build unix

package dvio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/zsiec/pv4/format"
)

// LoadIndexFile reads every entry of the index file at path. The file is
// memory-mapped and decoded in one pass; a trailing partial record is
// ignored, as IndexReader does.
func LoadIndexFile(path string) ([]format.IndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := int(info.Size())
	if size < format.IndexEntrySize {
		return []format.IndexEntry{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("dvio: mmap %s: %w", path, err)
	}
	defer unix.Munmap(data)

	return decodeEntries(data)
}
