package raster

import (
	"image"

	"mosaic-builder/pkg/geometry"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Renderer warps and blends with golang.org/x/image/draw. It needs no cgo
// and produces identical output on every platform.
type Renderer struct {
	// Interp samples the source raster. Nil means bilinear.
	Interp draw.Interpolator
}

// Warp maps src through t into frame, a rectangle in destination
// coordinates. Pixel (x, y) of the result shows destination point
// (frame.Min.X+x, frame.Min.Y+y). The mask marks every pixel the source covers.
func (r Renderer) Warp(src *image.Gray, t geometry.AffineTransform, frame image.Rectangle) (*image.Gray, *image.Alpha) {
	size := image.Rect(0, 0, frame.Dx(), frame.Dy())
	out := image.NewGray(size)
	mask := image.NewAlpha(size)
	if src == nil || size.Empty() {
		return out, mask
	}

	toFrame := geometry.Translation(-float64(frame.Min.X), -float64(frame.Min.Y)).Compose(t)

	if d, ok := toFrame.IntegerTranslation(); ok {
		placed := src.Bounds().Add(d).Intersect(size)
		draw.Draw(out, placed, src, placed.Min.Sub(d), draw.Src)
		draw.Draw(mask, placed, image.Opaque, image.Point{}, draw.Src)
		return out, mask
	}

	m := f64.Aff3{toFrame.A, toFrame.B, toFrame.TX, toFrame.C, toFrame.D, toFrame.TY}
	interp := r.Interp
	if interp == nil {
		interp = draw.BiLinear
	}
	interp.Transform(out, m, src, src.Bounds(), draw.Src, nil)

	coverage := image.NewAlpha(src.Bounds())
	draw.Draw(coverage, coverage.Bounds(), image.Opaque, image.Point{}, draw.Src)
	draw.NearestNeighbor.Transform(mask, m, coverage, coverage.Bounds(), draw.Src, nil)
	binarize(mask)

	return out, mask
}

// Blend draws overlay onto base wherever mask is set and returns base.
// Overlay pixels replace base pixels inside the mask.
func (Renderer) Blend(base, overlay *image.Gray, mask *image.Alpha) *image.Gray {
	draw.DrawMask(base, base.Bounds(), overlay, overlay.Bounds().Min, mask, mask.Bounds().Min, draw.Over)
	return base
}

func binarize(mask *image.Alpha) {
	for i, a := range mask.Pix {
		if a != 0 {
			mask.Pix[i] = 0xff
		}
	}
}
