package project

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mosaic-builder/internal/mosaic"
	"mosaic-builder/internal/raster"
	"mosaic-builder/internal/testutil/testlog"
	"mosaic-builder/internal/version"
	"mosaic-builder/pkg/geometry"
)

func patterned(w, h int, seed uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = seed + uint8(i%97)
	}
	return img
}

func testSnapshot() mosaic.Snapshot {
	a := &mosaic.Tile{
		Index:     0,
		Raster:    patterned(20, 10, 0),
		Transform: geometry.Identity(),
		Box:       geometry.Extent(20, 10),
		Reference: -1,
	}
	b := &mosaic.Tile{
		Index:     1,
		Raster:    patterned(20, 10, 40),
		Transform: geometry.Similarity(1, 0.25, 4, -3),
		Reference: 0,
		Matches:   12,
		Inliers:   11,
	}
	b.Box = geometry.TransformBox(b.Transform, geometry.Extent(20, 10))
	bounds := a.Box.Union(b.Box)
	frame := bounds.PixelFrame()

	return mosaic.Snapshot{
		Canvas: &mosaic.Canvas{
			Image:  patterned(frame.Dx(), frame.Dy(), 7),
			Origin: frame.Min,
			Bounds: bounds,
		},
		Tiles:  []*mosaic.Tile{a, b},
		Bounds: bounds,
	}
}

func TestDefaultName(t *testing.T) {
	testlog.Start(t)
	at := time.Date(2024, time.March, 7, 9, 5, 3, 0, time.UTC)
	assert.Equal(t, "Composite_3_7_2024_09:05:03", DefaultName(at))
}

func TestExportWritesLayout(t *testing.T) {
	testlog.Start(t)
	dest := t.TempDir()
	snap := testSnapshot()
	at := time.Date(2024, time.December, 31, 23, 59, 58, 0, time.UTC)
	exp := &Exporter{Format: raster.FormatPNG, Now: func() time.Time { return at }}

	dir, err := exp.Export(dest, "", snap)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "Composite_12_31_2024_23:59:58"), dir)

	composite, err := raster.Load(filepath.Join(dir, "composite.png"))
	require.NoError(t, err)
	assert.True(t, raster.Equal(snap.Canvas.Image, composite))

	for i, tile := range snap.Tiles {
		got, err := raster.Load(filepath.Join(dir, TilesDir, []string{"tile_000.png", "tile_001.png"}[i]))
		require.NoError(t, err)
		assert.True(t, raster.Equal(tile.Raster, got), "tile %d", i)
	}

	m, err := Load(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, "Composite_12_31_2024_23:59:58", m.Name)
	assert.Equal(t, raster.FormatPNG, m.Format)
	assert.Equal(t, version.Generator(), m.Generator)
	assert.Equal(t, "composite.png", m.Composite)
	assert.Equal(t, [2]int{snap.Canvas.Origin.X, snap.Canvas.Origin.Y}, m.Origin)
	require.NotNil(t, m.Bounds)
	assert.InDelta(t, snap.Bounds.XMin, m.Bounds.XMin, 1e-9)
	assert.InDelta(t, snap.Bounds.YMax, m.Bounds.YMax, 1e-9)

	require.Len(t, m.Tiles, 2)
	assert.Equal(t, "tiles/tile_001.png", m.Tiles[1].Path)
	assert.Equal(t, 0, m.Tiles[1].Reference)
	assert.Equal(t, 12, m.Tiles[1].Matches)
	assert.Equal(t, 11, m.Tiles[1].Inliers)
	assert.InDelta(t, 1, m.Tiles[1].Scale, 1e-12)

	want := snap.Tiles[1].Transform
	got := m.Tiles[1].Transform()
	for _, v := range [][2]float64{{got.A, want.A}, {got.B, want.B}, {got.TX, want.TX}, {got.C, want.C}, {got.D, want.D}, {got.TY, want.TY}} {
		assert.InDelta(t, v[1], v[0], 1e-9)
	}
}

func TestExportDefaultsToTIFF(t *testing.T) {
	testlog.Start(t)
	snap := testSnapshot()

	dir, err := NewExporter("").Export(t.TempDir(), "named", snap)
	require.NoError(t, err)
	assert.Equal(t, "named", filepath.Base(dir))

	composite, err := raster.Load(filepath.Join(dir, "composite.tif"))
	require.NoError(t, err)
	assert.True(t, raster.Equal(snap.Canvas.Image, composite))
	assert.FileExists(t, filepath.Join(dir, TilesDir, "tile_001.tif"))
}

func TestExportEmptyMosaic(t *testing.T) {
	testlog.Start(t)
	snap := mosaic.Snapshot{Canvas: &mosaic.Canvas{}, Bounds: geometry.EmptyBox()}

	dir, err := NewExporter(raster.FormatPNG).Export(t.TempDir(), "empty", snap)
	require.NoError(t, err)

	m, err := Load(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	assert.Nil(t, m.Bounds)
	assert.Empty(t, m.Composite)
	assert.Empty(t, m.Tiles)
}

func TestExportUnwritableDestination(t *testing.T) {
	testlog.Start(t)
	// A regular file where the destination directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewExporter(raster.FormatPNG).Export(blocker, "run", testSnapshot())
	require.Error(t, err)
}

func TestExportUnknownFormat(t *testing.T) {
	testlog.Start(t)
	_, err := NewExporter("bmp").Export(t.TempDir(), "run", testSnapshot())
	require.Error(t, err)
}

func TestLoadMissingManifest(t *testing.T) {
	testlog.Start(t)
	_, err := Load(filepath.Join(t.TempDir(), ManifestFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
