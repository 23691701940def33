package mosaic

import (
	"fmt"
	"image"
	"time"

	"mosaic-builder/internal/metrics"
	"mosaic-builder/pkg/geometry"
)

// Canvas is the composite of every tile, rendered into the pixel frame of
// the mosaic bounds.
type Canvas struct {
	Image  *image.Gray          // nil when the mosaic has no tiles
	Origin image.Point          // mosaic coordinates of pixel (0, 0)
	Bounds geometry.BoundingBox // mosaic bounds the canvas was built for
}

// Empty reports whether there is anything to show.
func (c *Canvas) Empty() bool {
	return c == nil || c.Image == nil
}

// Frame returns the canvas rectangle in mosaic coordinates.
func (c *Canvas) Frame() image.Rectangle {
	if c.Empty() {
		return image.Rectangle{}
	}
	return c.Image.Bounds().Add(c.Origin)
}

// ToPixel converts a mosaic point into canvas pixel coordinates.
func (c *Canvas) ToPixel(p geometry.Point2D) geometry.Point2D {
	return geometry.Point2D{X: p.X - float64(c.Origin.X), Y: p.Y - float64(c.Origin.Y)}
}

// CanvasManager renders the composite. It always rebuilds from scratch: every
// tile's placement depends on the current bounds, which can move with each
// addition.
type CanvasManager struct {
	renderer Renderer
}

func NewCanvasManager(renderer Renderer) *CanvasManager {
	return &CanvasManager{renderer: renderer}
}

// Rebuild warps every tile, in insertion order, into a fresh canvas covering
// bounds. Each tile replaces what lies under its own footprint, so the most
// recently added tile wins where tiles overlap.
func (m *CanvasManager) Rebuild(tiles []*Tile, bounds geometry.BoundingBox) (*Canvas, error) {
	if len(tiles) == 0 || bounds.Empty() {
		return &Canvas{Bounds: bounds}, nil
	}

	start := time.Now()
	frame := bounds.PixelFrame()
	canvas := image.NewGray(image.Rect(0, 0, frame.Dx(), frame.Dy()))

	for _, t := range tiles {
		if !bounds.Contains(t.Box) {
			return nil, fmt.Errorf("tile %d box %+v lies outside mosaic bounds %+v", t.Index, t.Box, bounds)
		}
		warped, mask := m.renderer.Warp(t.Raster, t.Transform, frame)
		canvas = m.renderer.Blend(canvas, warped, mask)
	}

	metrics.ObserveRebuild(time.Since(start))
	return &Canvas{Image: canvas, Origin: frame.Min, Bounds: bounds}, nil
}
