package format

import (
	"encoding/binary"
	"fmt"
	"math"
)

// IndexEntrySize is the size of one index file record.
const IndexEntrySize = 16

// Companion file extensions.
const (
	StreamFileExtension = ".dv"
	IndexFileExtension  = ".dvi"
)

// IndexEntry locates one frame record in the stream file. Offset and size
// are stored in 4096-byte units, so the accessors return multiples of 4096.
// IndexEntry is comparable with ==.
type IndexEntry struct {
	OffsetUnits               uint32
	SizeUnits                 uint16
	PrecedentAudioSampleCount uint64
	AudioSampleCount          uint16
	EncodingQuality           uint8
	Reserved                  uint8
}

// NewIndexEntry returns an entry for a frame record at offset spanning size
// bytes. Both are rounded up to the next 4096-byte unit.
func NewIndexEntry(offset, size int64) (IndexEntry, error) {
	var e IndexEntry
	if err := e.SetFrameOffset(offset); err != nil {
		return IndexEntry{}, err
	}
	if err := e.SetFrameSize(size); err != nil {
		return IndexEntry{}, err
	}
	return e, nil
}

func units(v int64) int64 {
	return (v + Alignment - 1) >> 12
}

// FrameOffset returns the byte offset of the frame record.
func (e IndexEntry) FrameOffset() int64 { return int64(e.OffsetUnits) << 12 }

// FrameSize returns the byte size of the frame record.
func (e IndexEntry) FrameSize() int64 { return int64(e.SizeUnits) << 12 }

// SetFrameOffset stores offset rounded up to a 4096-byte unit.
func (e *IndexEntry) SetFrameOffset(offset int64) error {
	u := units(offset)
	if offset < 0 || u > math.MaxUint32 {
		return &ParseError{Field: "frame_offset", Err: fmt.Errorf("%w: %d", ErrOutOfRange, offset)}
	}
	e.OffsetUnits = uint32(u)
	return nil
}

// SetFrameSize stores size rounded up to a 4096-byte unit.
func (e *IndexEntry) SetFrameSize(size int64) error {
	u := units(size)
	if size < 0 || u > math.MaxUint16 {
		return &ParseError{Field: "frame_size", Err: fmt.Errorf("%w: %d", ErrOutOfRange, size)}
	}
	e.SizeUnits = uint16(u)
	return nil
}

// SetAudio copies the audio counters and the encoding quality of f.
func (e *IndexEntry) SetAudio(f *FrameData) {
	e.PrecedentAudioSampleCount = f.Audio.PrecedentSampleCount
	e.AudioSampleCount = f.Audio.SampleCount
	e.EncodingQuality = f.Video.EncodingQuality
}

// UnmarshalBinary decodes an entry from the first IndexEntrySize bytes of b.
func (e *IndexEntry) UnmarshalBinary(b []byte) error {
	if len(b) < IndexEntrySize {
		return &ParseError{Field: "index_entry", Err: ErrShortBuffer}
	}
	e.OffsetUnits = binary.BigEndian.Uint32(b[0:])
	e.SizeUnits = binary.BigEndian.Uint16(b[4:])
	e.PrecedentAudioSampleCount = getUint48(b[6:])
	e.AudioSampleCount = binary.BigEndian.Uint16(b[12:])
	e.EncodingQuality = b[14]
	e.Reserved = b[15]
	return nil
}

// PutBinary encodes the entry into the first IndexEntrySize bytes of b.
func (e IndexEntry) PutBinary(b []byte) error {
	if len(b) < IndexEntrySize {
		return ErrShortBuffer
	}
	if e.PrecedentAudioSampleCount > maxUint48 {
		return &ParseError{Field: "precedent_audio_sample_count", Err: ErrOutOfRange}
	}
	binary.BigEndian.PutUint32(b[0:], e.OffsetUnits)
	binary.BigEndian.PutUint16(b[4:], e.SizeUnits)
	putUint48(b[6:], e.PrecedentAudioSampleCount)
	binary.BigEndian.PutUint16(b[12:], e.AudioSampleCount)
	b[14] = e.EncodingQuality
	b[15] = e.Reserved
	return nil
}

// MarshalBinary returns the 16-byte encoding of the entry.
func (e IndexEntry) MarshalBinary() ([]byte, error) {
	b := make([]byte, IndexEntrySize)
	if err := e.PutBinary(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (e IndexEntry) String() string {
	return fmt.Sprintf("{FrameOffset=0x%012x(%dx4096), FrameSize=0x%08x(%dx4096), PrecedentAudioSampleCount=%d, AudioSampleCount=%d, EncodingQuality=%d}",
		e.FrameOffset(), e.OffsetUnits, e.FrameSize(), e.SizeUnits,
		e.PrecedentAudioSampleCount, e.AudioSampleCount, e.EncodingQuality)
}
