// Package yuv converts packed YUV422 samples (Y0 Cb Y1 Cr per pixel pair,
// BT.601 studio range) to 24- and 32-bit BGR pixels in fixed-point
// arithmetic scaled by 2^10.
//
// Kernels take explicit strides and never allocate.
package yuv

import "errors"

var (
	ErrOddWidth    = errors.New("yuv: width must be even")
	ErrShortBuffer = errors.New("yuv: buffer too small")
	ErrBadStride   = errors.New("yuv: stride smaller than a row")
	ErrBadSize     = errors.New("yuv: negative width or height")
)

// Bytes per pixel of each output layout.
const (
	BytesPerPixelYUV422 = 2
	BytesPerPixelRGB    = 3
	BytesPerPixelXRGB   = 4
)

// Fixed-point coefficients, scaled by 2^10.
const (
	coefY  = 1192
	coefBU = 2066
	coefGU = -400
	coefGV = -833
	coefRV = 1634
)

// clampGuard is the out-of-range margin on either side of the clamp table.
const clampGuard = 192

var clampTable [256 + 2*clampGuard]byte

func init() {
	for i := range clampTable {
		switch {
		case i < clampGuard:
			clampTable[i] = 0x00
		case i >= clampGuard+256:
			clampTable[i] = 0xff
		default:
			clampTable[i] = byte(i - clampGuard)
		}
	}
}

// Clamp saturates v to [0, 255] through the clamp table. Values beyond the
// table's guard band saturate as well.
func Clamp(v int) byte {
	i := v + clampGuard
	if i < 0 {
		i = 0
	} else if i >= len(clampTable) {
		i = len(clampTable) - 1
	}
	return clampTable[i]
}

// pixel holds the scaled luma pair and chroma deltas of one pixel pair.
type pixel struct {
	y0, y1     int
	db, dg, dr int
}

func decode(p []byte) pixel {
	return scaled(coefY*(int(p[0])-16), coefY*(int(p[2])-16), int(p[1])-128, int(p[3])-128)
}

func scaled(y0, y1, cb, cr int) pixel {
	return pixel{
		y0: y0,
		y1: y1,
		db: coefBU * cb,
		dg: coefGU*cb + coefGV*cr,
		dr: coefRV * cr,
	}
}

func (p pixel) put3(d []byte) {
	_ = d[5]
	d[0] = Clamp((p.y0 + p.db) >> 10)
	d[1] = Clamp((p.y0 + p.dg) >> 10)
	d[2] = Clamp((p.y0 + p.dr) >> 10)
	d[3] = Clamp((p.y1 + p.db) >> 10)
	d[4] = Clamp((p.y1 + p.dg) >> 10)
	d[5] = Clamp((p.y1 + p.dr) >> 10)
}

func (p pixel) put4(d []byte) {
	_ = d[7]
	d[0] = Clamp((p.y0 + p.db) >> 10)
	d[1] = Clamp((p.y0 + p.dg) >> 10)
	d[2] = Clamp((p.y0 + p.dr) >> 10)
	d[3] = 0xff
	d[4] = Clamp((p.y1 + p.db) >> 10)
	d[5] = Clamp((p.y1 + p.dg) >> 10)
	d[6] = Clamp((p.y1 + p.dr) >> 10)
	d[7] = 0xff
}

// ToRGB converts width x height pixels to 3-byte B, G, R pixels.
func ToRGB(src []byte, srcStride, width, height int, dst []byte, dstStride int) error {
	if err := Check(src, srcStride, width, height, BytesPerPixelYUV422); err != nil {
		return err
	}
	if err := Check(dst, dstStride, width, height, BytesPerPixelRGB); err != nil {
		return err
	}
	for y := 0; y < height; y++ {
		s := src[y*srcStride:]
		d := dst[y*dstStride:]
		for x := 0; x < width; x += 2 {
			decode(s[x*2:]).put3(d[x*3:])
		}
	}
	return nil
}

// ToARGB converts width x height pixels to 4-byte B, G, R, 0xff pixels, the
// little-endian layout of 32-bit ARGB.
func ToARGB(src []byte, srcStride, width, height int, dst []byte, dstStride int) error {
	if err := Check(src, srcStride, width, height, BytesPerPixelYUV422); err != nil {
		return err
	}
	if err := Check(dst, dstStride, width, height, BytesPerPixelXRGB); err != nil {
		return err
	}
	for y := 0; y < height; y++ {
		convertRow4(src[y*srcStride:], width, dst[y*dstStride:])
	}
	return nil
}

func convertRow4(s []byte, width int, d []byte) {
	for x := 0; x < width; x += 2 {
		decode(s[x*2:]).put4(d[x*4:])
	}
}

// ToDeinterlacedXRGB expands one field of an interlaced picture to a full
// height x width frame of 4-byte B, G, R, 0xff pixels. The field lines are
// the even source rows when topField is set and the odd rows otherwise.
// Each field line is converted into its own row; the row below it is
// synthesized from that line and the next field line by averaging scaled
// luma and centered chroma with (a+b+1)>>1. Rows the field cannot reach are
// copied from the nearest converted row.
func ToDeinterlacedXRGB(src []byte, srcStride, width, height int, dst []byte, dstStride int, topField bool) error {
	if err := Check(src, srcStride, width, height, BytesPerPixelYUV422); err != nil {
		return err
	}
	if err := Check(dst, dstStride, width, height, BytesPerPixelXRGB); err != nil {
		return err
	}

	y := 0
	if !topField {
		y = 1
	}
	if y >= height {
		// A single-row picture has no bottom field.
		if height > 0 {
			convertRow4(src, width, dst)
		}
		return nil
	}
	first := y

	for ; y < height-2; y += 2 {
		l0 := src[y*srcStride:]
		l1 := src[(y+2)*srcStride:]
		d0 := dst[y*dstStride:]
		d1 := dst[(y+1)*dstStride:]
		for x := 0; x < width; x += 2 {
			s0, s1 := l0[x*2:x*2+4], l1[x*2:x*2+4]

			y0 := coefY * (int(s0[0]) - 16)
			cb := int(s0[1]) - 128
			y1 := coefY * (int(s0[2]) - 16)
			cr := int(s0[3]) - 128
			scaled(y0, y1, cb, cr).put4(d0[x*4:])

			scaled(
				(coefY*(int(s1[0])-16)+y0+1)>>1,
				(coefY*(int(s1[2])-16)+y1+1)>>1,
				((int(s1[1])-128)+cb+1)>>1,
				((int(s1[3])-128)+cr+1)>>1,
			).put4(d1[x*4:])
		}
	}

	// Last field line.
	convertRow4(src[y*srcStride:], width, dst[y*dstStride:])
	last := y

	row := width * BytesPerPixelXRGB
	for r := 0; r < first; r++ {
		copy(dst[r*dstStride:r*dstStride+row], dst[first*dstStride:])
	}
	for r := last + 1; r < height; r++ {
		copy(dst[r*dstStride:r*dstStride+row], dst[last*dstStride:])
	}
	return nil
}

// Check validates a buffer holding height rows of width pixels at bpp bytes
// per pixel, stride bytes apart.
func Check(b []byte, stride, width, height, bpp int) error {
	if width < 0 || height < 0 {
		return ErrBadSize
	}
	if width&1 != 0 {
		return ErrOddWidth
	}
	if height == 0 || width == 0 {
		return nil
	}
	row := width * bpp
	if stride < row {
		return ErrBadStride
	}
	if len(b) < (height-1)*stride+row {
		return ErrShortBuffer
	}
	return nil
}
