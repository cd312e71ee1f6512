package format

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Layout constants of a frame record.
const (
	// FramePreambleSize is the fixed-size head of every frame record.
	FramePreambleSize = 512

	// Alignment is the boundary frame records are padded to.
	Alignment = 4096

	// AudioAlignmentFloor is the smallest aligned audio block: the remainder
	// of the first 4096-byte unit after the preamble.
	AudioAlignmentFloor = Alignment - FramePreambleSize

	// VideoBlockAlignment is the granularity every video block length must
	// honour.
	VideoBlockAlignment = 32

	// VideoBlockCount is the number of video sub-blocks per frame.
	VideoBlockCount = 4

	AudioChannels       = 2
	AudioBitsPerSample  = 16
	AudioBytesPerSample = AudioChannels * AudioBitsPerSample / 8
)

// Preamble field offsets.
const (
	offPrecedentSampleCount = 0
	offSampleCount          = 6
	offSamplingFrequency    = 8
	offAspectH              = 256
	offAspectV              = 258
	offEncodingQuality      = 260
	offBlockLength          = 384
)

// AudioAlignedLength returns the on-disk length of an audio block holding
// sampleCount stereo 16-bit samples. Short blocks take the 3584-byte floor so
// that preamble and audio fill exactly one 4096-byte unit; longer blocks are
// rounded up so that preamble plus audio ends on a 4096-byte boundary.
func AudioAlignedLength(sampleCount int) int {
	raw := sampleCount * AudioBytesPerSample
	if raw <= AudioAlignmentFloor {
		return AudioAlignmentFloor
	}
	return (raw+FramePreambleSize+Alignment-1)&^(Alignment-1) - FramePreambleSize
}

// VideoAlignedLength returns the on-disk length of a video payload made of
// the given blocks: their sum rounded up to the next 4096-byte boundary.
func VideoAlignedLength(blocks [VideoBlockCount]uint32) int {
	var sum int64
	for _, n := range blocks {
		sum += int64(n)
	}
	return int((sum + Alignment - 1) &^ (Alignment - 1))
}

// AudioData is the audio half of a frame record: interleaved 16-bit stereo
// PCM plus its counters.
type AudioData struct {
	// PrecedentSampleCount is the running total of samples in all earlier
	// frames of the stream. Writers stamp it; callers never set it.
	PrecedentSampleCount uint64
	SampleCount          uint16
	SamplingFrequency    uint32

	// Data holds at least AlignedDataLength bytes when the audio block was
	// read, and is nil when it was skipped.
	Data []byte
}

// RawLength returns the number of meaningful PCM bytes.
func (a *AudioData) RawLength() int {
	return int(a.SampleCount) * AudioBytesPerSample
}

// AlignedDataLength returns the on-disk length of the audio block.
func (a *AudioData) AlignedDataLength() int {
	return AudioAlignedLength(int(a.SampleCount))
}

// SamplingRate returns the sampling frequency in Hz as a ratio.
func (a *AudioData) SamplingRate() Ratio {
	return Ratio{Num: int64(a.SamplingFrequency), Den: 1}
}

// VideoData is the video half of a frame record.
type VideoData struct {
	DisplayAspectH  uint16
	DisplayAspectV  uint16
	EncodingQuality uint8
	BlockLength     [VideoBlockCount]uint32

	// Data holds at least AlignedDataLength bytes when the video payload was
	// read, and is nil when it was skipped.
	Data []byte
}

// RawLength returns the sum of the four block lengths.
func (v *VideoData) RawLength() int {
	var sum int64
	for _, n := range v.BlockLength {
		sum += int64(n)
	}
	return int(sum)
}

// AlignedDataLength returns the on-disk length of the video payload.
func (v *VideoData) AlignedDataLength() int {
	return VideoAlignedLength(v.BlockLength)
}

// DisplayAspectRatio returns the display aspect ratio, e.g. 16/9.
func (v *VideoData) DisplayAspectRatio() Ratio {
	return Ratio{Num: int64(v.DisplayAspectH), Den: int64(v.DisplayAspectV)}
}

// SetDisplayAspectRatio stores r, which must fit the 16-bit fields.
func (v *VideoData) SetDisplayAspectRatio(r Ratio) error {
	if r.Num < 0 || r.Num > math.MaxUint16 || r.Den < 0 || r.Den > math.MaxUint16 {
		return fmt.Errorf("format: display aspect %s: %w", r, ErrOutOfRange)
	}
	v.DisplayAspectH = uint16(r.Num)
	v.DisplayAspectV = uint16(r.Den)
	return nil
}

// Validate checks that every block length is a multiple of 32.
func (v *VideoData) Validate() error {
	for i, n := range v.BlockLength {
		if n&(VideoBlockAlignment-1) != 0 {
			return &BlockLengthError{Block: i, Length: n}
		}
	}
	return nil
}

// Block returns the bytes of block i. Data must have been read.
func (v *VideoData) Block(i int) ([]byte, error) {
	if i < 0 || i >= VideoBlockCount {
		return nil, fmt.Errorf("format: video block %d: %w", i, ErrOutOfRange)
	}
	start := 0
	for j := 0; j < i; j++ {
		start += int(v.BlockLength[j])
	}
	end := start + int(v.BlockLength[i])
	if end > len(v.Data) {
		return nil, fmt.Errorf("format: video block %d: %w", i, ErrShortBuffer)
	}
	return v.Data[start:end], nil
}

// FrameData is one audio+video record of the stream file.
type FrameData struct {
	Audio AudioData
	Video VideoData
}

// Size returns the number of bytes the record occupies on disk.
func (f *FrameData) Size() int64 {
	return int64(FramePreambleSize) + int64(f.Audio.AlignedDataLength()) + int64(f.Video.AlignedDataLength())
}

// ParsePreamble decodes the fixed 512-byte preamble from b. Payload slices
// are left as they are so that buffers can be reused across frames.
func (f *FrameData) ParsePreamble(b []byte) error {
	if len(b) < FramePreambleSize {
		return &ParseError{Field: "frame_preamble", Err: ErrShortBuffer}
	}

	f.Audio.PrecedentSampleCount = getUint48(b[offPrecedentSampleCount:])
	f.Audio.SampleCount = binary.BigEndian.Uint16(b[offSampleCount:])
	f.Audio.SamplingFrequency = binary.BigEndian.Uint32(b[offSamplingFrequency:])

	f.Video.DisplayAspectH = binary.BigEndian.Uint16(b[offAspectH:])
	f.Video.DisplayAspectV = binary.BigEndian.Uint16(b[offAspectV:])
	f.Video.EncodingQuality = b[offEncodingQuality]
	for i := range f.Video.BlockLength {
		f.Video.BlockLength[i] = binary.BigEndian.Uint32(b[offBlockLength+4*i:])
	}

	return f.Video.Validate()
}

// PutPreamble encodes the preamble into b, which must hold at least
// FramePreambleSize bytes. Reserved bytes are zeroed.
func (f *FrameData) PutPreamble(b []byte) error {
	if len(b) < FramePreambleSize {
		return ErrShortBuffer
	}
	if f.Audio.PrecedentSampleCount > maxUint48 {
		return &ParseError{Field: "precedent_sample_count", Err: ErrOutOfRange}
	}
	if err := f.Video.Validate(); err != nil {
		return err
	}

	clear(b[:FramePreambleSize])
	putUint48(b[offPrecedentSampleCount:], f.Audio.PrecedentSampleCount)
	binary.BigEndian.PutUint16(b[offSampleCount:], f.Audio.SampleCount)
	binary.BigEndian.PutUint32(b[offSamplingFrequency:], f.Audio.SamplingFrequency)

	binary.BigEndian.PutUint16(b[offAspectH:], f.Video.DisplayAspectH)
	binary.BigEndian.PutUint16(b[offAspectV:], f.Video.DisplayAspectV)
	b[offEncodingQuality] = f.Video.EncodingQuality
	for i, n := range f.Video.BlockLength {
		binary.BigEndian.PutUint32(b[offBlockLength+4*i:], n)
	}
	return nil
}

// SetVideoBlocks stores data as the video payload split into blocks of the
// given lengths, which must sum to len(data) and each be a multiple of 32.
func (f *FrameData) SetVideoBlocks(data []byte, lengths [VideoBlockCount]uint32) error {
	f.Video.BlockLength = lengths
	if err := f.Video.Validate(); err != nil {
		return err
	}
	if f.Video.RawLength() != len(data) {
		return fmt.Errorf("format: block lengths sum to %d, payload is %d bytes: %w",
			f.Video.RawLength(), len(data), ErrCorrupt)
	}
	f.Video.Data = data
	return nil
}

// Reset zeroes every field but keeps the payload buffers for reuse.
func (f *FrameData) Reset() {
	audio, video := f.Audio.Data[:0], f.Video.Data[:0]
	*f = FrameData{}
	f.Audio.Data, f.Video.Data = audio, video
}
