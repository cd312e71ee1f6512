//go:build !unix

package dvio

import "github.com/zsiec/pv4/format"

// LoadIndexFile reads every entry of the index file at path.
func LoadIndexFile(path string) ([]format.IndexEntry, error) {
	r, err := OpenIndexFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAllEntry()
}
