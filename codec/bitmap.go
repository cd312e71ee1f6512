package codec

import (
	"fmt"
	"image"
	"image/color"
)

// PixelFormat is the memory layout of a Bitmap.
type PixelFormat int

// Pixel formats. The 32-bit formats store B, G, R, A bytes in that order.
const (
	FormatUnknown PixelFormat = iota
	// FormatRGB32 ignores the fourth byte.
	FormatRGB32
	FormatARGB32
	// FormatPARGB32 has color channels premultiplied by alpha.
	FormatPARGB32
	FormatRGB24
	FormatGray8
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB32:
		return "RGB32"
	case FormatARGB32:
		return "ARGB32"
	case FormatPARGB32:
		return "PARGB32"
	case FormatRGB24:
		return "RGB24"
	case FormatGray8:
		return "Gray8"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// BytesPerPixel returns the size of one pixel, or 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB32, FormatARGB32, FormatPARGB32:
		return 4
	case FormatRGB24:
		return 3
	case FormatGray8:
		return 1
	default:
		return 0
	}
}

// Decodable reports whether the decoder can write this format.
func (f PixelFormat) Decodable() bool {
	switch f {
	case FormatRGB32, FormatARGB32, FormatPARGB32:
		return true
	default:
		return false
	}
}

// Bitmap is a decode destination. Row y starts at Pix[y*Stride].
type Bitmap struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
	Format PixelFormat
}

// NewBitmap allocates a tightly packed bitmap.
func NewBitmap(width, height int, f PixelFormat) *Bitmap {
	stride := width * f.BytesPerPixel()
	return &Bitmap{
		Pix:    make([]byte, stride*height),
		Stride: stride,
		Width:  width,
		Height: height,
		Format: f,
	}
}

// validFor checks that b can receive a width x height 32-bit picture.
func (b *Bitmap) validFor(width, height int) error {
	if b == nil {
		return fmt.Errorf("%w: nil bitmap", ErrInvalidDestination)
	}
	if !b.Format.Decodable() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, b.Format)
	}
	if b.Width < width || b.Height < height {
		return fmt.Errorf("%w: %dx%d smaller than frame %dx%d", ErrInvalidDestination, b.Width, b.Height, width, height)
	}
	if b.Stride <= 0 || b.Stride < width*4 {
		return fmt.Errorf("%w: stride %d", ErrInvalidDestination, b.Stride)
	}
	if height > 0 && len(b.Pix) < (height-1)*b.Stride+width*4 {
		return fmt.Errorf("%w: %d bytes of pixels", ErrInvalidDestination, len(b.Pix))
	}
	return nil
}

// Image returns a copy of the bitmap as an *image.NRGBA, suitable for
// image/png. Only 32-bit formats are supported.
func (b *Bitmap) Image() (*image.NRGBA, error) {
	if !b.Format.Decodable() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, b.Format)
	}
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		src := b.Pix[y*b.Stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < b.Width; x++ {
			p := src[x*4 : x*4+4]
			c := color.NRGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
			switch b.Format {
			case FormatRGB32:
				c.A = 0xff
			case FormatPARGB32:
				c = color.NRGBAModel.Convert(color.RGBA{R: p[2], G: p[1], B: p[0], A: p[3]}).(color.NRGBA)
			}
			dst[x*4+0] = c.R
			dst[x*4+1] = c.G
			dst[x*4+2] = c.B
			dst[x*4+3] = c.A
		}
	}
	return img, nil
}
