package cv

import (
	"image"
	"image/color"

	"mosaic-builder/pkg/geometry"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Renderer warps and blends with OpenCV. Output matches raster.Renderer in
// layout: pixel (x, y) of a warp shows destination point
// (frame.Min.X+x, frame.Min.Y+y).
type Renderer struct{}

// Warp implements mosaic.Renderer.
func (Renderer) Warp(src *image.Gray, t geometry.AffineTransform, frame image.Rectangle) (*image.Gray, *image.Alpha) {
	size := image.Rect(0, 0, frame.Dx(), frame.Dy())
	if src == nil || size.Empty() {
		return image.NewGray(size), image.NewAlpha(size)
	}

	in, err := grayToMat(src)
	if err != nil {
		log.Warn().Err(err).Msg("warp input")
		return image.NewGray(size), image.NewAlpha(size)
	}
	defer in.Close()

	toFrame := geometry.Translation(-float64(frame.Min.X), -float64(frame.Min.Y)).Compose(t)
	m := transformMat(toFrame)
	defer m.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.WarpAffineWithParams(in, &out, m, image.Pt(size.Dx(), size.Dy()),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})

	coverage := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), in.Rows(), in.Cols(), gocv.MatTypeCV8UC1)
	defer coverage.Close()
	maskMat := gocv.NewMat()
	defer maskMat.Close()
	gocv.WarpAffineWithParams(coverage, &maskMat, m, image.Pt(size.Dx(), size.Dy()),
		gocv.InterpolationNearestNeighbor, gocv.BorderConstant, color.RGBA{})

	warped, err := matToGray(out)
	if err != nil {
		log.Warn().Err(err).Msg("warp output")
		return image.NewGray(size), image.NewAlpha(size)
	}
	mask, err := matToAlpha(maskMat)
	if err != nil {
		log.Warn().Err(err).Msg("warp mask")
		return warped, image.NewAlpha(size)
	}
	return warped, mask
}

// Blend copies overlay onto base wherever mask is set and returns base.
func (Renderer) Blend(base, overlay *image.Gray, mask *image.Alpha) *image.Gray {
	dst, err := grayToMat(base)
	if err != nil {
		return base
	}
	defer dst.Close()
	src, err := grayToMat(overlay)
	if err != nil {
		return base
	}
	defer src.Close()
	m, err := alphaToMat(mask)
	if err != nil {
		return base
	}
	defer m.Close()

	src.CopyToWithMask(&dst, m)
	blended, err := matToGray(dst)
	if err != nil {
		log.Warn().Err(err).Msg("blend output")
		return base
	}
	b := base.Bounds()
	for y := 0; y < b.Dy(); y++ {
		copy(base.Pix[base.PixOffset(b.Min.X, b.Min.Y+y):][:b.Dx()], blended.Pix[y*blended.Stride:][:b.Dx()])
	}
	return base
}

func transformMat(t geometry.AffineTransform) gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	for r, row := range t.ToMatrix() {
		for c, v := range row {
			m.SetDoubleAt(r, c, v)
		}
	}
	return m
}
