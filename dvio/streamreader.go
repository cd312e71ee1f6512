package dvio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zsiec/pv4/format"
)

// StreamReader reads a stream file sequentially: the header, then one frame
// record after another. Positioning operations need an io.Seeker; on other
// sources (pipes, network streams) unrequested payloads are skipped by
// discarding bytes.
type StreamReader struct {
	r      io.Reader
	seeker io.Seeker
	closer io.Closer
	pos    int64
	size   int64 // last known length of a seekable source
	closed bool

	preamble [format.FramePreambleSize]byte
}

// NewStreamReader returns a reader over r. The reader does not take
// ownership of r; Close leaves it open.
func NewStreamReader(r io.Reader) *StreamReader {
	s := &StreamReader{r: r}
	if sk, ok := r.(io.Seeker); ok {
		// Pipes satisfy io.Seeker through *os.File but fail to seek.
		if pos, err := sk.Seek(0, io.SeekCurrent); err == nil {
			s.seeker = sk
			s.pos = pos
		}
	}
	return s
}

// OpenStreamFile opens path for reading. Close closes the file.
func OpenStreamFile(path string) (*StreamReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := NewStreamReader(f)
	s.closer = f
	return s, nil
}

// Seekable reports whether the underlying source supports seeking.
func (s *StreamReader) Seekable() bool { return s.seeker != nil }

// Position returns the current offset in the stream.
func (s *StreamReader) Position() int64 { return s.pos }

// Close releases the reader. It is safe to call more than once.
func (s *StreamReader) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Seek repositions the underlying source.
func (s *StreamReader) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.seeker == nil {
		return s.pos, ErrNotSeekable
	}
	pos, err := s.seeker.Seek(offset, whence)
	if err != nil {
		return s.pos, err
	}
	s.pos = pos
	return pos, nil
}

// SeekToHeader moves to the start of the stream.
func (s *StreamReader) SeekToHeader() (int64, error) {
	return s.Seek(0, io.SeekStart)
}

// SeekToFirstFrame moves to the first frame record, just past the header.
func (s *StreamReader) SeekToFirstFrame() (int64, error) {
	return s.Seek(format.HeaderSize, io.SeekStart)
}

// SeekToFrame moves to the frame record described by entry.
func (s *StreamReader) SeekToFrame(entry format.IndexEntry) (int64, error) {
	return s.Seek(entry.FrameOffset(), io.SeekStart)
}

// ReadHeader reads and parses the header region. If the reader is not at
// offset 0 it seeks there first.
func (s *StreamReader) ReadHeader() (*format.Header, error) {
	b, err := s.ReadHeaderBytes()
	if err != nil {
		return nil, err
	}
	return format.ParseHeader(b)
}

// ReadHeaderBytes returns the raw HeaderSize-byte header region.
func (s *StreamReader) ReadHeaderBytes() ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.pos != 0 {
		if _, err := s.SeekToHeader(); err != nil {
			return nil, fmt.Errorf("dvio: read header: %w", err)
		}
	}
	b := make([]byte, format.HeaderSize)
	if err := s.readFull(b); err != nil {
		return nil, fmt.Errorf("dvio: read header: %w", unexpected(err))
	}
	return b, nil
}

// ReadFrameData reads the next frame record. It returns nil, nil at the end
// of the sequence, that is when no byte is left at a frame boundary.
// Payloads that are not requested are skipped and their Data left nil.
func (s *StreamReader) ReadFrameData(readAudio, readVideo bool) (*format.FrameData, error) {
	f := new(format.FrameData)
	ok, err := s.ReadFrameDataInto(f, readAudio, readVideo)
	if err != nil || !ok {
		return nil, err
	}
	return f, nil
}

// ReadFrameDataInto reads the next frame record into buf, reusing its payload
// slices when they are large enough. It reports false at the end of the
// sequence.
func (s *StreamReader) ReadFrameDataInto(buf *format.FrameData, readAudio, readVideo bool) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}

	n, err := io.ReadFull(s.r, s.preamble[:])
	s.pos += int64(n)
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("dvio: read frame preamble at %d: %w", s.pos-int64(n), unexpected(err))
	}

	if err := buf.ParsePreamble(s.preamble[:]); err != nil {
		return false, fmt.Errorf("dvio: frame at %d: %w", s.pos-int64(n), err)
	}

	audioLen := buf.Audio.AlignedDataLength()
	if readAudio {
		buf.Audio.Data = grow(buf.Audio.Data, audioLen)
		if err := s.readFull(buf.Audio.Data); err != nil {
			return false, fmt.Errorf("dvio: read audio block: %w", unexpected(err))
		}
	} else {
		buf.Audio.Data = nil
		if err := s.skip(int64(audioLen), int64(audioLen)); err != nil {
			return false, fmt.Errorf("dvio: skip audio block: %w", err)
		}
	}

	videoLen := buf.Video.AlignedDataLength()
	videoRaw := buf.Video.RawLength()
	if readVideo {
		buf.Video.Data = grow(buf.Video.Data, videoLen)
		n, err := io.ReadFull(s.r, buf.Video.Data)
		s.pos += int64(n)
		// The padding after the last frame may be missing.
		if n < videoRaw {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return false, fmt.Errorf("dvio: read video payload: %w", err)
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return false, fmt.Errorf("dvio: read video payload: %w", err)
		}
		clear(buf.Video.Data[n:])
	} else {
		buf.Video.Data = nil
		if err := s.skip(int64(videoLen), int64(videoRaw)); err != nil {
			return false, fmt.Errorf("dvio: skip video payload: %w", err)
		}
	}

	return true, nil
}

// ReadFrameBytes returns the raw bytes of the frame record described by
// entry, up to its indexed size.
func (s *StreamReader) ReadFrameBytes(entry format.IndexEntry) ([]byte, error) {
	if _, err := s.SeekToFrame(entry); err != nil {
		return nil, err
	}
	b := make([]byte, entry.FrameSize())
	n, err := io.ReadFull(s.r, b)
	s.pos += int64(n)
	if n < format.FramePreambleSize && err != nil {
		return nil, fmt.Errorf("dvio: read frame at %d: %w", entry.FrameOffset(), unexpected(err))
	}
	return b[:n], nil
}

func (s *StreamReader) readFull(b []byte) error {
	n, err := io.ReadFull(s.r, b)
	s.pos += int64(n)
	return err
}

// skip advances n bytes, of which at least need must exist in the source.
func (s *StreamReader) skip(n, need int64) error {
	if n == 0 {
		return nil
	}
	if s.seeker != nil {
		ok, err := s.available(need)
		if err != nil {
			return err
		}
		if !ok {
			return io.ErrUnexpectedEOF
		}
		_, err = s.Seek(n, io.SeekCurrent)
		return err
	}
	copied, err := io.CopyN(io.Discard, s.r, n)
	s.pos += copied
	if copied < need {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// available reports whether a seekable source holds need bytes past the
// current position. The length is looked up again whenever the cached one
// falls short, so files that are still being written are followed.
func (s *StreamReader) available(need int64) (bool, error) {
	if s.pos+need <= s.size {
		return true, nil
	}
	end, err := s.seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return false, err
	}
	if _, err := s.seeker.Seek(s.pos, io.SeekStart); err != nil {
		return false, err
	}
	s.size = end
	return s.pos+need <= end, nil
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
