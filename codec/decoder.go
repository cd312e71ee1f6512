package codec

import (
	"fmt"
	"log/slog"

	"github.com/zsiec/pv4/dv"
	"github.com/zsiec/pv4/format"
)

// Config configures a Decoder.
type Config struct {
	// ThreadCount is the number of threads backends may use. 0 selects
	// DefaultThreadCount; 1 is single-threaded.
	ThreadCount int

	// Backend forces a backend by name. Empty selects the first available.
	Backend string

	Logger *slog.Logger
}

// Decoder decodes frames of one container. It reuses a scratch buffer
// between calls and must not be used from several goroutines at once;
// separate decoders over the same container are independent.
type Decoder struct {
	*Base
	backend Backend
	log     *slog.Logger

	frame     format.FrameData
	yuv       []byte
	yuvStride int
}

// NewDecoder returns a decoder over d. Closing the decoder does not close
// d.
func NewDecoder(d *dv.DV, cfg Config) (*Decoder, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	threads := cfg.ThreadCount
	if threads == 0 {
		threads = DefaultThreadCount()
	}

	base := NewBase(d, threads)
	be, err := selectBackend(base, cfg.Backend)
	if err != nil {
		return nil, err
	}

	dec := &Decoder{
		Base:    base,
		backend: be,
		log:     log.With("component", "decoder"),
	}
	dec.log.Debug("decoder created", "backend", be.Name(), "threads", base.ThreadCount(),
		"width", d.Width(), "height", d.Height())
	return dec, nil
}

// Backend returns the name of the selected backend.
func (d *Decoder) Backend() string { return d.backend.Name() }

// DecodeFrame decodes frame n as a progressive picture. dst is reused when
// it matches the frame size and has a decodable format; otherwise a new
// FormatRGB32 bitmap is allocated. It returns the bitmap written and the
// frame's display aspect ratio.
func (d *Decoder) DecodeFrame(n int, dst *Bitmap) (*Bitmap, format.Ratio, error) {
	if err := d.check(n); err != nil {
		return nil, format.Ratio{}, err
	}
	dst = d.ensureBitmap(dst)
	aspect, err := d.decodeXRGB(n, dst)
	if err != nil {
		return nil, format.Ratio{}, err
	}
	return dst, aspect, nil
}

// DecodeFrameInto decodes frame n into dst, which must be at least the
// frame size with a positive stride and a decodable format.
func (d *Decoder) DecodeFrameInto(n int, dst *Bitmap) (format.Ratio, error) {
	if err := d.check(n); err != nil {
		return format.Ratio{}, err
	}
	if err := dst.validFor(d.DV().Width(), d.DV().Height()); err != nil {
		return format.Ratio{}, err
	}
	return d.decodeXRGB(n, dst)
}

// DecodeFrameDeinterlaced decodes frame n of an interlaced container into
// two full-height pictures, the top field into first and the bottom field
// into second. Bitmaps are reused or allocated as in DecodeFrame.
func (d *Decoder) DecodeFrameDeinterlaced(n int, first, second *Bitmap) (*Bitmap, *Bitmap, format.Ratio, error) {
	if err := d.check(n); err != nil {
		return nil, nil, format.Ratio{}, err
	}
	if d.DV().Scanning() != format.Interlaced {
		return nil, nil, format.Ratio{}, ErrNotInterlaced
	}
	first = d.ensureBitmap(first)
	second = d.ensureBitmap(second)

	aspect, err := d.unpack(n)
	if err != nil {
		return nil, nil, format.Ratio{}, err
	}
	w, h := d.DV().Width(), d.DV().Height()
	if err := d.backend.ToFields(d.yuv, d.yuvStride, w, h, first, second); err != nil {
		return nil, nil, format.Ratio{}, fmt.Errorf("codec: frame %d: %w", n, err)
	}
	return first, second, aspect, nil
}

// DecodeFramePackedYUV422 writes the raw samples of frame n to buf, rows
// stride bytes apart, without color conversion.
func (d *Decoder) DecodeFramePackedYUV422(n int, buf []byte, stride int) (format.Ratio, error) {
	if err := d.check(n); err != nil {
		return format.Ratio{}, err
	}
	w, h := d.DV().Width(), d.DV().Height()
	if buf == nil || stride <= 0 {
		return format.Ratio{}, fmt.Errorf("%w: buffer of %d bytes at stride %d", ErrInvalidDestination, len(buf), stride)
	}
	if stride < w*2 || len(buf) < (h-1)*stride+w*2 {
		return format.Ratio{}, fmt.Errorf("%w: buffer of %d bytes at stride %d", ErrInvalidDestination, len(buf), stride)
	}

	if err := d.DV().FrameInto(n, &d.frame, true, false); err != nil {
		return format.Ratio{}, err
	}
	if err := d.backend.UnpackYUV422(&d.frame.Video, w, h, buf, stride); err != nil {
		return format.Ratio{}, fmt.Errorf("codec: frame %d: %w", n, err)
	}
	return d.frame.Video.DisplayAspectRatio(), nil
}

func (d *Decoder) check(n int) error {
	if err := d.CheckClosed(); err != nil {
		return err
	}
	if c := d.DV().FrameCount(); n < 0 || n >= c {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrFrameOutOfRange, n, c)
	}
	return nil
}

func (d *Decoder) ensureBitmap(b *Bitmap) *Bitmap {
	w, h := d.DV().Width(), d.DV().Height()
	if b != nil && b.Width == w && b.Height == h && b.validFor(w, h) == nil {
		return b
	}
	return NewBitmap(w, h, FormatRGB32)
}

// unpack reads frame n into the scratch buffer, allocating it on first use.
func (d *Decoder) unpack(n int) (format.Ratio, error) {
	w, h := d.DV().Width(), d.DV().Height()
	if d.yuv == nil {
		d.yuvStride = w * 2
		d.yuv = make([]byte, d.yuvStride*h)
	}
	if err := d.DV().FrameInto(n, &d.frame, true, false); err != nil {
		return format.Ratio{}, err
	}
	if err := d.backend.UnpackYUV422(&d.frame.Video, w, h, d.yuv, d.yuvStride); err != nil {
		return format.Ratio{}, fmt.Errorf("codec: frame %d: %w", n, err)
	}
	return d.frame.Video.DisplayAspectRatio(), nil
}

func (d *Decoder) decodeXRGB(n int, dst *Bitmap) (format.Ratio, error) {
	aspect, err := d.unpack(n)
	if err != nil {
		return format.Ratio{}, err
	}
	w, h := d.DV().Width(), d.DV().Height()
	if err := d.backend.ToXRGB(d.yuv, d.yuvStride, w, h, dst.Pix, dst.Stride); err != nil {
		return format.Ratio{}, fmt.Errorf("codec: frame %d: %w", n, err)
	}
	return aspect, nil
}
