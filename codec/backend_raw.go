package codec

import (
	"github.com/zsiec/pv4/format"
	"github.com/zsiec/pv4/internal/yuv"
)

// rawBackend is the portable single-threaded backend.
type rawBackend struct{}

func newRawBackend(*Base) (Backend, bool) { return rawBackend{}, true }

func (rawBackend) Name() string { return "raw" }

func (rawBackend) UnpackYUV422(v *format.VideoData, width, height int, dst []byte, stride int) error {
	return unpackRaw(v, width, height, dst, stride)
}

func (rawBackend) ToXRGB(src []byte, srcStride, width, height int, dst []byte, dstStride int) error {
	return yuv.ToARGB(src, srcStride, width, height, dst, dstStride)
}

func (rawBackend) ToFields(src []byte, srcStride, width, height int, first, second *Bitmap) error {
	if err := yuv.ToDeinterlacedXRGB(src, srcStride, width, height, first.Pix, first.Stride, true); err != nil {
		return err
	}
	return yuv.ToDeinterlacedXRGB(src, srcStride, width, height, second.Pix, second.Stride, false)
}
