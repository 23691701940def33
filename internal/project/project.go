// Package project provides mosaic export and the manifest that describes it.
package project

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"time"

	"mosaic-builder/internal/mosaic"
	"mosaic-builder/internal/raster"
	"mosaic-builder/internal/version"
	"mosaic-builder/pkg/geometry"

	"github.com/rs/zerolog/log"
)

const (
	// NameLayout formats the default export name,
	// Composite_<month>_<day>_<year>_<hour>:<minute>:<second>.
	NameLayout = "Composite_1_2_2006_15:04:05"

	ManifestFile  = "manifest.json"
	CompositeBase = "composite"
	TilesDir      = "tiles"

	manifestVersion = 1
)

// DefaultName returns the export name for a save made at t.
func DefaultName(t time.Time) string {
	return t.Format(NameLayout)
}

// File is the manifest written next to an exported mosaic.
type File struct {
	Version   int                   `json:"version"`
	Name      string                `json:"name"`
	Created   time.Time             `json:"created"`
	Generator string                `json:"generator"`
	Format    string                `json:"format"`
	Composite string                `json:"composite,omitempty"`
	Origin    [2]int                `json:"origin"`           // mosaic coordinates of composite pixel (0,0)
	Bounds    *geometry.BoundingBox `json:"bounds,omitempty"` // nil for an empty mosaic
	Tiles     []TileEntry           `json:"tiles"`
}

// TileEntry records one tile's placement and provenance.
type TileEntry struct {
	Index     int                  `json:"index"`
	Path      string               `json:"path"`
	Width     int                  `json:"width"`
	Height    int                  `json:"height"`
	Scale     float64              `json:"scale"`
	Rotation  float64              `json:"rotation_deg"`
	TX        float64              `json:"tx"`
	TY        float64              `json:"ty"`
	Box       geometry.BoundingBox `json:"box"`
	Reference int                  `json:"reference"`
	Matches   int                  `json:"matches,omitempty"`
	Inliers   int                  `json:"inliers,omitempty"`
	Features  int                  `json:"features"`
}

// Transform rebuilds the tile-to-mosaic similarity.
func (e TileEntry) Transform() geometry.AffineTransform {
	return geometry.Similarity(e.Scale, e.Rotation*math.Pi/180, e.TX, e.TY)
}

// Load loads a manifest from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the manifest to path.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Exporter writes a mosaic snapshot as
//
//	<dest>/<name>/composite.<ext>
//	<dest>/<name>/tiles/tile_NNN.<ext>
//	<dest>/<name>/manifest.json
type Exporter struct {
	Format string           // raster.FormatTIFF or raster.FormatPNG; empty means TIFF
	Now    func() time.Time // clock for default names; nil means time.Now
}

// NewExporter returns an exporter for the given output format.
func NewExporter(format string) *Exporter {
	return &Exporter{Format: format}
}

// Export implements mosaic.Exporter.
func (e *Exporter) Export(dest, name string, snap mosaic.Snapshot) (string, error) {
	format := e.Format
	if format == "" {
		format = raster.FormatTIFF
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	created := now()
	if name == "" {
		name = DefaultName(created)
	}

	dir := filepath.Join(dest, name)
	if err := os.MkdirAll(filepath.Join(dir, TilesDir), 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	manifest := &File{
		Version:   manifestVersion,
		Name:      name,
		Created:   created,
		Generator: version.Generator(),
		Format:    format,
		Tiles:     []TileEntry{},
	}
	if !snap.Bounds.Empty() {
		b := snap.Bounds
		manifest.Bounds = &b
	}

	ext := raster.Extension(format)
	if !snap.Canvas.Empty() {
		manifest.Composite = CompositeBase + ext
		manifest.Origin = [2]int{snap.Canvas.Origin.X, snap.Canvas.Origin.Y}
		if err := writeRaster(filepath.Join(dir, manifest.Composite), snap.Canvas.Image, format); err != nil {
			return "", err
		}
	}

	for _, t := range snap.Tiles {
		rel := filepath.Join(TilesDir, fmt.Sprintf("tile_%03d%s", t.Index, ext))
		if err := writeRaster(filepath.Join(dir, rel), t.Raster, format); err != nil {
			return "", err
		}
		manifest.Tiles = append(manifest.Tiles, entryFor(t, filepath.ToSlash(rel)))
	}

	if err := manifest.Save(filepath.Join(dir, ManifestFile)); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}

	log.Debug().Str("dir", dir).Str("format", format).Int("tiles", len(snap.Tiles)).Msg("export written")
	return dir, nil
}

func entryFor(t *mosaic.Tile, path string) TileEntry {
	return TileEntry{
		Index:     t.Index,
		Path:      path,
		Width:     t.Width(),
		Height:    t.Height(),
		Scale:     t.Transform.ScaleFactor(),
		Rotation:  t.Transform.Angle() * 180 / math.Pi,
		TX:        t.Transform.TX,
		TY:        t.Transform.TY,
		Box:       t.Box,
		Reference: t.Reference,
		Matches:   t.Matches,
		Inliers:   t.Inliers,
		Features:  len(t.Features),
	}
}

func writeRaster(path string, img *image.Gray, format string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err := raster.Encode(f, img, format); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return nil
}
