package dv

import (
	"context"
	"errors"
	"fmt"

	"github.com/zsiec/pv4/dvio"
	"github.com/zsiec/pv4/format"
)

// PreprocessFunc transforms frame n before it is written to the extracted
// container. Returning an error aborts the extraction.
type PreprocessFunc func(n int, f *format.FrameData) error

// ExtractToFile copies frames [start, start+count) of src into a new
// container at dst, together with a freshly written index. The header is
// copied unchanged. preprocess may be nil.
//
// On failure the partially written files are left in place.
func ExtractToFile(src *DV, start, count int, dst string, preprocess PreprocessFunc) (err error) {
	if count == 0 {
		return fmt.Errorf("%w: empty range", ErrFrameOutOfRange)
	}
	if err := src.checkRange(start, count); err != nil {
		return err
	}

	w, err := dvio.CreateStreamAndIndexFile(src.Header(), dst, true)
	if err != nil {
		return fmt.Errorf("dv: extract: %w", err)
	}
	defer func() {
		err = errors.Join(err, w.Close())
	}()

	opts := ForEachOptions{Start: start, Count: count, ReuseBuffer: true}
	return src.ForEachFrame(opts, func(n int, f *format.FrameData) error {
		if preprocess != nil {
			if err := preprocess(n, f); err != nil {
				return fmt.Errorf("dv: preprocess frame %d: %w", n, err)
			}
		}
		return w.Write(f)
	})
}

// ExtractPathToFile opens the container at path, deriving its index if
// needed, and extracts a frame range from it like ExtractToFile.
func ExtractPathToFile(path string, start, count int, dst string, preprocess PreprocessFunc) error {
	src, err := Open(path, true)
	if err != nil {
		return err
	}
	defer src.Close()
	return ExtractToFile(src, start, count, dst, preprocess)
}

// Source is the input of an asynchronous extraction: a path or an already
// open container.
type Source struct {
	path string
	dv   *DV
}

// FromPath returns a Source that opens path when the extraction starts.
func FromPath(path string) Source { return Source{path: path} }

// FromDV returns a Source over an open container. The container must stay
// open until the extraction is done.
func FromDV(d *DV) Source { return Source{dv: d} }

func (s Source) String() string {
	if s.dv != nil {
		return s.dv.StreamPath()
	}
	return s.path
}

// Extraction is a running asynchronous extraction.
type Extraction struct {
	done chan struct{}
	err  error
}

// ExtractAsync starts extracting a frame range in the background. ctx only
// gates the start: if it is already done the extraction fails with its
// error, but once frames are being copied the extraction runs to
// completion.
func ExtractAsync(ctx context.Context, src Source, start, count int, dst string, preprocess PreprocessFunc) *Extraction {
	x := &Extraction{done: make(chan struct{})}
	go func() {
		defer close(x.done)
		if err := ctx.Err(); err != nil {
			x.err = err
			return
		}
		if src.dv != nil {
			x.err = ExtractToFile(src.dv, start, count, dst, preprocess)
			return
		}
		x.err = ExtractPathToFile(src.path, start, count, dst, preprocess)
	}()
	return x
}

// Done is closed when the extraction has finished.
func (x *Extraction) Done() <-chan struct{} { return x.done }

// Wait blocks until the extraction has finished and returns its error.
func (x *Extraction) Wait() error {
	<-x.done
	return x.err
}

// Err returns the extraction error, or nil while it is still running.
func (x *Extraction) Err() error {
	select {
	case <-x.done:
		return x.err
	default:
		return nil
	}
}
