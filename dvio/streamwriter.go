package dvio

import (
	"bufio"
	"io"
	"os"

	"github.com/zsiec/pv4/format"
)

var zeros [format.Alignment]byte

// StreamWriter writes a stream file sequentially. Output is buffered; call
// Flush or Close to push it to the underlying writer. The position is
// counted from the bytes written, so plain io.Writers are supported.
type StreamWriter struct {
	w      *bufio.Writer
	seeker io.Seeker
	closer io.Closer
	pos    int64
	closed bool

	preamble [format.FramePreambleSize]byte
}

// NewStreamWriter returns a writer over w. The writer does not take
// ownership of w; Close flushes but leaves it open.
func NewStreamWriter(w io.Writer) *StreamWriter {
	s := &StreamWriter{w: bufio.NewWriterSize(w, 64<<10)}
	if sk, ok := w.(io.Seeker); ok {
		if pos, err := sk.Seek(0, io.SeekCurrent); err == nil {
			s.seeker = sk
			s.pos = pos
		}
	}
	return s
}

// CreateStreamFile creates or truncates path. Close closes the file.
func CreateStreamFile(path string) (*StreamWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := NewStreamWriter(f)
	s.closer = f
	return s, nil
}

// Position returns the offset the next byte will be written at.
func (s *StreamWriter) Position() int64 { return s.pos }

// WriteHeader writes the full HeaderSize-byte header region at the current
// position.
func (s *StreamWriter) WriteHeader(h *format.Header) error {
	if s.closed {
		return ErrClosed
	}
	b, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	return s.write(b)
}

// Write writes one frame record: the preamble, the audio block and the video
// payload, each padded to its aligned length. Nil or short payloads are
// zero-filled, which produces blank placeholder frames. It returns the
// number of bytes written.
func (s *StreamWriter) Write(f *format.FrameData) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	start := s.pos

	if err := f.PutPreamble(s.preamble[:]); err != nil {
		return 0, err
	}
	if err := s.write(s.preamble[:]); err != nil {
		return s.pos - start, err
	}
	if err := s.writePadded(f.Audio.Data, f.Audio.AlignedDataLength()); err != nil {
		return s.pos - start, err
	}
	if err := s.writePadded(f.Video.Data, f.Video.AlignedDataLength()); err != nil {
		return s.pos - start, err
	}
	return s.pos - start, nil
}

// Seek flushes pending output and repositions the underlying writer.
func (s *StreamWriter) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.seeker == nil {
		return s.pos, ErrNotSeekable
	}
	if err := s.w.Flush(); err != nil {
		return s.pos, err
	}
	pos, err := s.seeker.Seek(offset, whence)
	if err != nil {
		return s.pos, err
	}
	s.pos = pos
	return pos, nil
}

// SeekToFirstFrame moves to the first frame record, just past the header.
func (s *StreamWriter) SeekToFirstFrame() (int64, error) {
	return s.Seek(format.HeaderSize, io.SeekStart)
}

// SeekToFrame moves to the frame record described by entry.
func (s *StreamWriter) SeekToFrame(entry format.IndexEntry) (int64, error) {
	return s.Seek(entry.FrameOffset(), io.SeekStart)
}

// Flush writes buffered data to the underlying writer.
func (s *StreamWriter) Flush() error {
	if s.closed {
		return ErrClosed
	}
	return s.w.Flush()
}

// Close flushes and releases the writer. It is safe to call more than once.
func (s *StreamWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *StreamWriter) write(b []byte) error {
	n, err := s.w.Write(b)
	s.pos += int64(n)
	return err
}

func (s *StreamWriter) writePadded(data []byte, n int) error {
	if len(data) >= n {
		return s.write(data[:n])
	}
	if err := s.write(data); err != nil {
		return err
	}
	for rem := n - len(data); rem > 0; {
		chunk := min(rem, len(zeros))
		if err := s.write(zeros[:chunk]); err != nil {
			return err
		}
		rem -= chunk
	}
	return nil
}
