package mosaic

import (
	"fmt"
	"image"

	"mosaic-builder/internal/features"
	"mosaic-builder/pkg/geometry"
)

// Tile is one registered image. Tiles are never modified after they are
// appended to a store; later additions do not revise earlier transforms.
type Tile struct {
	Index     int
	Raster    *image.Gray
	Transform geometry.AffineTransform // tile-local -> mosaic
	Box       geometry.BoundingBox     // image of the raster extent under Transform
	Features  []features.Feature       // positions in mosaic coordinates

	Reference int // tile this one was registered against; -1 for the seed
	Matches   int // correspondences with Reference
	Inliers   int // correspondences consistent with Transform
}

func (t *Tile) Width() int  { return t.Raster.Bounds().Dx() }
func (t *Tile) Height() int { return t.Raster.Bounds().Dy() }

// Outline returns the tile corners in mosaic coordinates.
func (t *Tile) Outline() []geometry.Point2D {
	return geometry.Outline(t.Transform, t.Width(), t.Height())
}

// TileStore is the ordered collection of registered tiles. Insertion order is
// significant: it breaks match ties and sets compositing order.
type TileStore struct {
	tiles []*Tile
}

func (s *TileStore) Len() int { return len(s.tiles) }

// At returns the i-th tile in insertion order.
func (s *TileStore) At(i int) *Tile { return s.tiles[i] }

// All returns the tiles in insertion order. The slice is a copy.
func (s *TileStore) All() []*Tile {
	out := make([]*Tile, len(s.tiles))
	copy(out, s.tiles)
	return out
}

// Append adds a tile whose Index must equal the current length.
func (s *TileStore) Append(t *Tile) error {
	if t == nil || t.Raster == nil {
		return fmt.Errorf("cannot append empty tile")
	}
	if t.Index != len(s.tiles) {
		return fmt.Errorf("tile index %d out of sequence, store has %d tiles", t.Index, len(s.tiles))
	}
	s.tiles = append(s.tiles, t)
	return nil
}

// Bounds returns the union of every tile's box.
func (s *TileStore) Bounds() geometry.BoundingBox {
	b := geometry.EmptyBox()
	for _, t := range s.tiles {
		b = b.Union(t.Box)
	}
	return b
}
