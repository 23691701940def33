package mosaic

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mosaic-builder/internal/alignment"
	"mosaic-builder/internal/features"
	"mosaic-builder/internal/raster"
	"mosaic-builder/internal/testutil/testlog"
	"mosaic-builder/pkg/geometry"
)

const (
	sceneWidth  = 260
	sceneHeight = 160
	landmarkGap = 20
	landmarkMin = 200
)

// scene draws a textured background below landmarkMin with a grid of
// two-pixel landmarks. Each landmark's pixel pair is unique in the scene.
func scene() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, sceneWidth, sceneHeight))
	for y := 0; y < sceneHeight; y++ {
		for x := 0; x < sceneWidth; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(20 + (x*7+y*3)%150)})
		}
	}
	k := 0
	for y := 8; y < sceneHeight; y += landmarkGap {
		for x := 8; x+1 < sceneWidth; x += landmarkGap {
			img.Pix[img.PixOffset(x, y)] = uint8(landmarkMin + k%50)
			img.Pix[img.PixOffset(x+1, y)] = uint8(landmarkMin + k/50)
			k++
		}
	}
	return img
}

// crop copies a w x h window of src starting at (x, y) into a new raster
// with a zero origin.
func crop(src *image.Gray, x, y, w, h int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, w, h))
	for j := 0; j < h; j++ {
		copy(out.Pix[j*out.Stride:j*out.Stride+w], src.Pix[src.PixOffset(x, y+j):])
	}
	return out
}

// landmarkDetector reports the left pixel of every landmark pair, with the
// pair as descriptor.
type landmarkDetector struct {
	calls int
}

func (d *landmarkDetector) Detect(img *image.Gray) ([]features.Feature, error) {
	d.calls++
	b := img.Bounds()
	var out []features.Feature
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := img.GrayAt(x, y).Y
			if v < landmarkMin {
				continue
			}
			if x > b.Min.X && img.GrayAt(x-1, y).Y >= landmarkMin {
				continue
			}
			next := uint8(0)
			if x+1 < b.Max.X {
				next = img.GrayAt(x+1, y).Y
			}
			out = append(out, features.Feature{
				Position:   geometry.Point2D{X: float64(x - b.Min.X), Y: float64(y - b.Min.Y)},
				Descriptor: []byte{v, next},
			})
		}
	}
	return out, nil
}

// exactMatcher pairs features whose descriptors are identical.
type exactMatcher struct{}

func (exactMatcher) Match(a, b []features.Feature) []features.Correspondence {
	var out []features.Correspondence
	for i := range a {
		for j := range b {
			if features.Hamming(a[i].Descriptor, b[j].Descriptor) == 0 {
				out = append(out, features.Correspondence{IndexA: i, IndexB: j})
				break
			}
		}
	}
	return out
}

type failingEstimator struct{}

func (failingEstimator) EstimateSimilarity([]alignment.PointPair, float64, int) (alignment.Estimate, error) {
	return alignment.Estimate{}, alignment.ErrNoConsensus
}

type shearEstimator struct{}

func (shearEstimator) EstimateSimilarity([]alignment.PointPair, float64, int) (alignment.Estimate, error) {
	return alignment.Estimate{Transform: geometry.AffineTransform{A: 1, B: 0.4, D: 1}}, nil
}

// fixedEstimator ignores the pairs and returns t.
type fixedEstimator struct {
	t geometry.AffineTransform
}

func (e fixedEstimator) EstimateSimilarity([]alignment.PointPair, float64, int) (alignment.Estimate, error) {
	return alignment.Estimate{Transform: e.t}, nil
}

type recordingExporter struct {
	err   error
	dest  string
	name  string
	snaps []Snapshot
}

func (e *recordingExporter) Export(dest, name string, snap Snapshot) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.dest, e.name = dest, name
	e.snaps = append(e.snaps, snap)
	return filepath.Join(dest, "out"), nil
}

func testCollaborators() Collaborators {
	return Collaborators{
		Detector:  &landmarkDetector{},
		Matcher:   exactMatcher{},
		Estimator: alignment.NewSimilarityEstimator(1),
		Renderer:  raster.Renderer{},
	}
}

func newTestSession(t *testing.T, c Collaborators) *Session {
	t.Helper()
	s, err := NewSession(c, DefaultOptions())
	require.NoError(t, err)
	return s
}

func assertBoxNear(t *testing.T, want, got geometry.BoundingBox) {
	t.Helper()
	assert.InDelta(t, want.XMin, got.XMin, 1e-6, "x_min")
	assert.InDelta(t, want.XMax, got.XMax, 1e-6, "x_max")
	assert.InDelta(t, want.YMin, got.YMin, 1e-6, "y_min")
	assert.InDelta(t, want.YMax, got.YMax, 1e-6, "y_max")
}

func TestSeedSingleImage(t *testing.T) {
	testlog.Start(t)
	s := newTestSession(t, testCollaborators())
	assert.Equal(t, StateEmpty, s.State())
	assert.True(t, s.Bounds().Empty())
	assert.True(t, s.Canvas().Empty())

	img := crop(scene(), 0, 0, 100, 100)
	tile, err := s.AddImage(img)
	require.NoError(t, err)

	assert.Equal(t, StateSeeded, s.State())
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, geometry.Identity(), tile.Transform)
	assert.Equal(t, -1, tile.Reference)
	assert.Equal(t, geometry.BoundingBox{XMin: 0, XMax: 100, YMin: 0, YMax: 100}, tile.Box)
	assert.Equal(t, tile.Box, s.Bounds())

	canvas := s.Canvas()
	require.False(t, canvas.Empty())
	assert.Equal(t, image.Point{}, canvas.Origin)
	assert.True(t, raster.Equal(img, canvas.Image), "canvas must equal the seed image")
}

func TestSeedCopiesInput(t *testing.T) {
	testlog.Start(t)
	s := newTestSession(t, testCollaborators())

	img := crop(scene(), 0, 0, 40, 30)
	want := raster.Clone(img)
	_, err := s.AddImage(img)
	require.NoError(t, err)

	img.Pix[0] = 255
	tile, ok := s.Tile(0)
	require.True(t, ok)
	assert.True(t, raster.Equal(want, tile.Raster))
	assert.True(t, raster.Equal(want, s.Canvas().Image))
}

func TestTranslationGrowsBoundsToUnion(t *testing.T) {
	testlog.Start(t)
	s := newTestSession(t, testCollaborators())
	sc := scene()

	_, err := s.AddImage(crop(sc, 0, 0, 100, 100))
	require.NoError(t, err)
	tile, err := s.AddImage(crop(sc, 10, 5, 100, 100))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, tile.Reference)
	assert.GreaterOrEqual(t, tile.Matches, 4)
	assert.InDelta(t, 10, tile.Transform.TX, 1e-6)
	assert.InDelta(t, 5, tile.Transform.TY, 1e-6)
	assert.InDelta(t, 1, tile.Transform.ScaleFactor(), 1e-9)
	assert.InDelta(t, 0, tile.Transform.Angle(), 1e-9)

	assertBoxNear(t, geometry.BoundingBox{XMin: 10, XMax: 110, YMin: 5, YMax: 105}, tile.Box)
	assertBoxNear(t, geometry.BoundingBox{XMin: 0, XMax: 110, YMin: 0, YMax: 105}, s.Bounds())

	// Stored features are in mosaic coordinates: the landmark at local
	// (18, 3) lives at scene (28, 8).
	found := false
	for _, f := range tile.Features {
		if f.Position.Distance(geometry.Point2D{X: 28, Y: 8}) < 1e-9 {
			found = true
		}
	}
	assert.True(t, found, "expected a feature at mosaic (28, 8)")

	canvas := s.Canvas()
	assert.Equal(t, image.Rect(0, 0, 110, 105), canvas.Image.Bounds())
	assert.True(t, raster.Equal(crop(sc, 0, 0, 110, 105), cropMasked(canvas.Image, sc)),
		"canvas must reproduce the scene wherever a tile covers it")
}

// cropMasked fills the two corners of a 110x105 canvas that neither tile
// covers with scene pixels, so the whole canvas can be compared.
func cropMasked(canvas, sc *image.Gray) *image.Gray {
	out := raster.Clone(canvas)
	for y := 0; y < 105; y++ {
		for x := 0; x < 110; x++ {
			inA := x < 100 && y < 100
			inB := x >= 10 && y >= 5
			if !inA && !inB {
				out.SetGray(x, y, sc.GrayAt(x, y))
			}
		}
	}
	return out
}

func TestBoundsGrowMonotonically(t *testing.T) {
	testlog.Start(t)
	s := newTestSession(t, testCollaborators())
	sc := scene()

	offsets := []image.Point{{30, 20}, {10, 5}, {45, 35}, {0, 0}, {60, 50}}
	prev := s.Bounds()
	for i, o := range offsets {
		tile, err := s.AddImage(crop(sc, o.X, o.Y, 100, 100))
		require.NoError(t, err, "offset %v", o)

		b := s.Bounds()
		assert.True(t, b.Contains(prev), "step %d: bounds shrank", i)
		prev = b

		d := o.Sub(offsets[0])
		assert.InDelta(t, float64(d.X), tile.Transform.TX, 1e-6)
		assert.InDelta(t, float64(d.Y), tile.Transform.TY, 1e-6)
	}

	assertBoxNear(t, geometry.BoundingBox{XMin: -30, XMax: 130, YMin: -20, YMax: 130}, s.Bounds())
	assert.Equal(t, image.Pt(-30, -20), s.Canvas().Origin)
	assert.Equal(t, image.Rect(-30, -20, 130, 130), s.Canvas().Frame())
}

func TestNoOverlapIsRejected(t *testing.T) {
	testlog.Start(t)
	s := newTestSession(t, testCollaborators())
	sc := scene()

	_, err := s.AddImage(crop(sc, 0, 0, 100, 100))
	require.NoError(t, err)
	bounds := s.Bounds()
	canvas := s.Canvas()
	pixels := raster.Clone(canvas.Image)

	_, err = s.AddImage(crop(sc, 150, 50, 100, 100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientOverlap))

	var regErr *RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, 0, regErr.Reference)
	assert.Equal(t, 0, regErr.Score)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, bounds, s.Bounds())
	assert.Same(t, canvas, s.Canvas())
	assert.True(t, raster.Equal(pixels, s.Canvas().Image))
}

func TestTransformFailureRollsBack(t *testing.T) {
	testlog.Start(t)
	c := testCollaborators()
	c.Estimator = failingEstimator{}
	s := newTestSession(t, c)
	sc := scene()

	_, err := s.AddImage(crop(sc, 0, 0, 100, 100))
	require.NoError(t, err)
	bounds := s.Bounds()
	pixels := raster.Clone(s.Canvas().Image)

	_, err = s.AddImage(crop(sc, 10, 5, 100, 100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransformNotFound))
	assert.True(t, errors.Is(err, alignment.ErrNoConsensus))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, bounds, s.Bounds())
	assert.True(t, raster.Equal(pixels, s.Canvas().Image))
}

func TestNonSimilarityEstimateIsRejected(t *testing.T) {
	testlog.Start(t)
	c := testCollaborators()
	c.Estimator = shearEstimator{}
	s := newTestSession(t, c)
	sc := scene()

	_, err := s.AddImage(crop(sc, 0, 0, 100, 100))
	require.NoError(t, err)

	_, err = s.AddImage(crop(sc, 10, 5, 100, 100))
	assert.True(t, errors.Is(err, ErrTransformNotFound))
	assert.Equal(t, 1, s.Len())
}

func TestOutOfRangePlacementIsRejected(t *testing.T) {
	testlog.Start(t)
	for name, tr := range map[string]geometry.AffineTransform{
		"huge scale": geometry.Similarity(1e6, 0, 0, 0),
		"tiny scale": geometry.Similarity(1e-6, 0, 0, 0),
		"far away":   geometry.Translation(1e9, 0),
	} {
		det := &landmarkDetector{}
		c := testCollaborators()
		c.Detector = det
		c.Estimator = fixedEstimator{t: tr}
		s := newTestSession(t, c)
		sc := scene()

		_, err := s.AddImage(crop(sc, 0, 0, 100, 100))
		require.NoError(t, err)
		bounds := s.Bounds()
		pixels := raster.Clone(s.Canvas().Image)

		_, err = s.AddImage(crop(sc, 10, 5, 100, 100))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrTransformNotFound), name)

		// Only the detection of the raw image ran; nothing was warped.
		assert.Equal(t, 2, det.calls, name)
		assert.Equal(t, 1, s.Len(), name)
		assert.Equal(t, bounds, s.Bounds(), name)
		assert.True(t, raster.Equal(pixels, s.Canvas().Image), name)
	}
}

func TestRotatedScaledTilePlacement(t *testing.T) {
	testlog.Start(t)
	tr := geometry.Similarity(1.5, 0.3, 12.25, -7.5)
	c := testCollaborators()
	c.Estimator = fixedEstimator{t: tr}
	s := newTestSession(t, c)
	sc := scene()

	_, err := s.AddImage(crop(sc, 0, 0, 100, 100))
	require.NoError(t, err)
	tile, err := s.AddImage(crop(sc, 10, 5, 100, 100))
	require.NoError(t, err)

	assert.Equal(t, geometry.TransformBox(tr, geometry.Extent(100, 100)), tile.Box)
	assert.Equal(t, geometry.Extent(100, 100).Union(tile.Box), s.Bounds())

	canvas := s.Canvas()
	frame := s.Bounds().PixelFrame()
	assert.Equal(t, frame, canvas.Frame())
	assert.Equal(t, frame.Min, canvas.Origin)

	// Features re-detected on the warped tile lie inside its footprint.
	for _, f := range tile.Features {
		p := f.Position
		inside := p.X >= tile.Box.XMin-1 && p.X <= tile.Box.XMax+1 &&
			p.Y >= tile.Box.YMin-1 && p.Y <= tile.Box.YMax+1
		assert.True(t, inside, "feature %v outside %+v", p, tile.Box)
	}

	// The last tile wins inside its own coverage.
	warped, mask := raster.Renderer{}.Warp(tile.Raster, tr, frame)
	covered := 0
	for y := 0; y < frame.Dy(); y++ {
		for x := 0; x < frame.Dx(); x++ {
			if mask.AlphaAt(x, y).A == 0 {
				continue
			}
			covered++
			require.Equal(t, warped.GrayAt(x, y).Y, canvas.Image.GrayAt(x, y).Y, "pixel (%d, %d)", x, y)
		}
	}
	assert.InDelta(t, 1.5*1.5*100*100, float64(covered), 0.05*1.5*1.5*100*100)

	centre := canvas.ToPixel(tr.Apply(geometry.Point2D{X: 50, Y: 50})).Round()
	assert.NotZero(t, mask.AlphaAt(centre.X, centre.Y).A)
}

func TestEmptyInputIsRejected(t *testing.T) {
	testlog.Start(t)
	det := &landmarkDetector{}
	c := testCollaborators()
	c.Detector = det
	s := newTestSession(t, c)

	for _, img := range []*image.Gray{nil, image.NewGray(image.Rect(0, 0, 0, 10))} {
		_, err := s.AddImage(img)
		assert.True(t, errors.Is(err, ErrEmptyInput))
		_, err = s.PreviewImage(img)
		assert.True(t, errors.Is(err, ErrEmptyInput))
	}
	assert.Zero(t, det.calls, "empty input must be rejected before detection")
	assert.Equal(t, StateEmpty, s.State())
}

func TestPreviewDoesNotMutate(t *testing.T) {
	testlog.Start(t)
	s := newTestSession(t, testCollaborators())
	sc := scene()

	_, err := s.AddImage(crop(sc, 0, 0, 100, 100))
	require.NoError(t, err)
	bounds := s.Bounds()
	canvas := s.Canvas()
	pixels := raster.Clone(canvas.Image)

	next := crop(sc, 10, 5, 100, 100)
	for i := 0; i < 3; i++ {
		p, err := s.PreviewImage(next)
		require.NoError(t, err)
		assert.Equal(t, 0, p.Reference)
		assertBoxNear(t, geometry.BoundingBox{XMin: 10, XMax: 110, YMin: 5, YMax: 105}, p.Box)
		assertBoxNear(t, geometry.BoundingBox{XMin: 0, XMax: 110, YMin: 0, YMax: 105}, p.Bounds)
		require.Len(t, p.CanvasOutline, 4)
		assert.InDelta(t, 10, p.CanvasOutline[0].X, 1e-6)
		assert.InDelta(t, 5, p.CanvasOutline[0].Y, 1e-6)
		assert.InDelta(t, 90.0*95/(100*100), p.Overlap, 1e-6)
		assert.Same(t, canvas, p.Canvas)
	}
	_, err = s.PreviewImage(crop(sc, 150, 50, 100, 100))
	assert.True(t, errors.Is(err, ErrInsufficientOverlap))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, bounds, s.Bounds())
	assert.Same(t, canvas, s.Canvas())
	assert.True(t, raster.Equal(pixels, s.Canvas().Image))

	// Preview on an empty session shows where the seed would go.
	empty := newTestSession(t, testCollaborators())
	p, err := empty.PreviewImage(next)
	require.NoError(t, err)
	assert.Equal(t, -1, p.Reference)
	assert.Zero(t, p.Overlap)
	assert.Equal(t, geometry.Extent(100, 100), p.Bounds)
	assert.Equal(t, StateEmpty, empty.State())
}

func TestTieBreakPrefersEarliestTile(t *testing.T) {
	testlog.Start(t)
	sc := scene()
	det := &landmarkDetector{}
	seedImg := crop(sc, 0, 0, 100, 100)
	seedFeats, err := det.Detect(seedImg)
	require.NoError(t, err)

	var store TileStore
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(&Tile{
			Index:     i,
			Raster:    seedImg,
			Transform: geometry.Identity(),
			Box:       geometry.Extent(100, 100),
			Features:  features.Clone(seedFeats),
			Reference: i - 1,
		}))
	}

	engine := NewEngine(det, exactMatcher{}, alignment.NewSimilarityEstimator(1), raster.Renderer{}, DefaultOptions())
	next := crop(sc, 10, 5, 100, 100)

	first, err := engine.Register(&store, store.Bounds(), next)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Tile.Reference)
	assert.Equal(t, first.Scores[0], first.Scores[1])
	assert.Equal(t, first.Scores[0], first.Scores[2])
	assert.Equal(t, 3, first.Tile.Index)

	for i := 0; i < 5; i++ {
		again, err := engine.Register(&store, store.Bounds(), next)
		require.NoError(t, err)
		assert.Equal(t, first.Tile.Reference, again.Tile.Reference)
		assert.Equal(t, first.Tile.Transform, again.Tile.Transform)
		assert.Equal(t, first.Bounds, again.Bounds)
	}
	assert.Equal(t, 3, store.Len())
}

func TestHigherScoreBeatsInsertionOrder(t *testing.T) {
	testlog.Start(t)
	sc := scene()
	det := &landmarkDetector{}
	weak := crop(sc, 0, 0, 30, 30)
	strong := crop(sc, 0, 0, 100, 100)

	var store TileStore
	for i, img := range []*image.Gray{weak, strong} {
		feats, err := det.Detect(img)
		require.NoError(t, err)
		require.NoError(t, store.Append(&Tile{
			Index: i, Raster: img, Transform: geometry.Identity(),
			Box: geometry.Extent(img.Rect.Dx(), img.Rect.Dy()), Features: feats,
		}))
	}

	engine := NewEngine(det, exactMatcher{}, alignment.NewSimilarityEstimator(1), raster.Renderer{}, DefaultOptions())
	reg, err := engine.Register(&store, store.Bounds(), crop(sc, 10, 5, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Tile.Reference)
	assert.Less(t, reg.Scores[0], reg.Scores[1])
}

func TestRebuildIsDeterministic(t *testing.T) {
	testlog.Start(t)
	s := newTestSession(t, testCollaborators())
	sc := scene()
	for _, o := range []image.Point{{0, 0}, {10, 5}, {45, 35}} {
		_, err := s.AddImage(crop(sc, o.X, o.Y, 100, 100))
		require.NoError(t, err)
	}

	m := NewCanvasManager(raster.Renderer{})
	a, err := m.Rebuild(s.Tiles(), s.Bounds())
	require.NoError(t, err)
	b, err := m.Rebuild(s.Tiles(), s.Bounds())
	require.NoError(t, err)

	assert.NotSame(t, a.Image, b.Image)
	assert.True(t, raster.Equal(a.Image, b.Image))
	assert.True(t, raster.Equal(a.Image, s.Canvas().Image))
	assert.Equal(t, a.Origin, b.Origin)
}

func TestLastTileWinsOverlap(t *testing.T) {
	testlog.Start(t)
	dark := image.NewGray(image.Rect(0, 0, 10, 10))
	light := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range light.Pix {
		dark.Pix[i] = 10
		light.Pix[i] = 90
	}
	tiles := []*Tile{
		{Index: 0, Raster: dark, Transform: geometry.Identity(), Box: geometry.Extent(10, 10)},
		{Index: 1, Raster: light, Transform: geometry.Translation(5, 0), Box: geometry.Extent(10, 10).Offset(geometry.Point2D{X: 5})},
	}
	bounds := tiles[0].Box.Union(tiles[1].Box)

	c, err := NewCanvasManager(raster.Renderer{}).Rebuild(tiles, bounds)
	require.NoError(t, err)
	assert.Equal(t, uint8(10), c.Image.GrayAt(2, 2).Y)
	assert.Equal(t, uint8(90), c.Image.GrayAt(7, 2).Y)
	assert.Equal(t, uint8(90), c.Image.GrayAt(12, 2).Y)
}

func TestRebuildRejectsTileOutsideBounds(t *testing.T) {
	testlog.Start(t)
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	tiles := []*Tile{{Raster: img, Transform: geometry.Translation(50, 0), Box: geometry.Extent(10, 10).Offset(geometry.Point2D{X: 50})}}

	_, err := NewCanvasManager(raster.Renderer{}).Rebuild(tiles, geometry.Extent(10, 10))
	assert.Error(t, err)

	c, err := NewCanvasManager(raster.Renderer{}).Rebuild(nil, geometry.EmptyBox())
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestSaveMosaicExportsSnapshot(t *testing.T) {
	testlog.Start(t)
	exp := &recordingExporter{}
	c := testCollaborators()
	c.Exporter = exp
	s := newTestSession(t, c)
	sc := scene()
	for _, o := range []image.Point{{0, 0}, {10, 5}} {
		_, err := s.AddImage(crop(sc, o.X, o.Y, 100, 100))
		require.NoError(t, err)
	}

	dir, err := s.SaveMosaic("/data")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "out"), dir)
	assert.Equal(t, "", exp.name)
	require.Len(t, exp.snaps, 1)
	assert.Len(t, exp.snaps[0].Tiles, 2)
	assert.Equal(t, s.Bounds(), exp.snaps[0].Bounds)
	assert.True(t, raster.Equal(s.Canvas().Image, exp.snaps[0].Canvas.Image))

	_, err = s.SaveMosaicAs("/data", "run1")
	require.NoError(t, err)
	assert.Equal(t, "run1", exp.name)
}

func TestSaveFailureKeepsMosaic(t *testing.T) {
	testlog.Start(t)
	exp := &recordingExporter{err: os.ErrPermission}
	c := testCollaborators()
	c.Exporter = exp
	s := newTestSession(t, c)

	_, err := s.AddImage(crop(scene(), 0, 0, 100, 100))
	require.NoError(t, err)
	bounds := s.Bounds()
	pixels := raster.Clone(s.Canvas().Image)

	_, err = s.SaveMosaic(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, os.ErrPermission))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, bounds, s.Bounds())
	assert.True(t, raster.Equal(pixels, s.Canvas().Image))

	noExporter := newTestSession(t, testCollaborators())
	_, err = noExporter.SaveMosaic(t.TempDir())
	assert.True(t, errors.Is(err, ErrPersistence))
}

func TestNewSessionRequiresCollaborators(t *testing.T) {
	testlog.Start(t)
	c := testCollaborators()
	c.Matcher = nil
	_, err := NewSession(c, DefaultOptions())
	assert.Error(t, err)
}
