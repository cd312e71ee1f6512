package dvio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
)

var (
	// ErrClosed is returned by every operation on a closed reader or writer.
	ErrClosed = errors.New("dvio: use of closed reader or writer")

	// ErrNotSeekable is returned when a positioning operation is requested
	// on a source or sink that does not implement io.Seeker.
	ErrNotSeekable = errors.New("dvio: stream is not seekable")

	// ErrWriterFailed is returned by StreamAndIndexWriter.Write once a
	// previous write left the stream or the index partially written.
	ErrWriterFailed = errors.New("dvio: writer failed")

	// ErrIndexNotFound is returned by GetFrameList when no index file exists
	// and deriving one from the stream file is not allowed.
	ErrIndexNotFound = fmt.Errorf("dvio: index file not found: %w", fs.ErrNotExist)
)

// unexpected maps a clean EOF inside a fixed-size structure to
// io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
