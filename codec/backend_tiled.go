package codec

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/pv4/format"
	"github.com/zsiec/pv4/internal/yuv"
)

// tiledBackend splits conversions into horizontal tiles, one per thread,
// and converts the two fields of a deinterlaced frame concurrently. Every
// unit of work holds one of the base's handles.
type tiledBackend struct {
	base  *Base
	tiles int
}

func newTiledBackend(b *Base) (Backend, bool) {
	if b.ThreadCount() <= 1 {
		return nil, false
	}
	return &tiledBackend{base: b, tiles: b.ThreadCount()}, true
}

func (t *tiledBackend) Name() string { return "tiled" }

func (t *tiledBackend) UnpackYUV422(v *format.VideoData, width, height int, dst []byte, stride int) error {
	return unpackRaw(v, width, height, dst, stride)
}

type tile struct{ start, rows int }

// splitRows divides height rows into at most n tiles. The first tile takes
// the remainder.
func splitRows(height, n int) []tile {
	n = min(n, height)
	if n <= 0 {
		return nil
	}
	base := height / n
	tiles := make([]tile, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		rows := base
		if i == 0 {
			rows += height - base*n
		}
		tiles = append(tiles, tile{start: start, rows: rows})
		start += rows
	}
	return tiles
}

func (t *tiledBackend) ToXRGB(src []byte, srcStride, width, height int, dst []byte, dstStride int) error {
	if err := yuv.Check(src, srcStride, width, height, yuv.BytesPerPixelYUV422); err != nil {
		return err
	}
	if err := yuv.Check(dst, dstStride, width, height, yuv.BytesPerPixelXRGB); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, tl := range splitRows(height, t.tiles) {
		g.Go(func() error {
			if err := t.base.Acquire(ctx); err != nil {
				return err
			}
			defer t.base.Release()
			return yuv.ToARGB(src[tl.start*srcStride:], srcStride, width, tl.rows, dst[tl.start*dstStride:], dstStride)
		})
	}
	return g.Wait()
}

func (t *tiledBackend) ToFields(src []byte, srcStride, width, height int, first, second *Bitmap) error {
	g, ctx := errgroup.WithContext(context.Background())
	for _, f := range []struct {
		dst *Bitmap
		top bool
	}{{first, true}, {second, false}} {
		g.Go(func() error {
			if err := t.base.Acquire(ctx); err != nil {
				return err
			}
			defer t.base.Release()
			return yuv.ToDeinterlacedXRGB(src, srcStride, width, height, f.dst.Pix, f.dst.Stride, f.top)
		})
	}
	return g.Wait()
}
