// Package mosaic assembles a panorama from overlapping images added one at a
// time. A Session owns the registered tiles, the mosaic bounds and the
// composite canvas; every mutating call either completes or leaves all three
// untouched.
package mosaic

import (
	"errors"
	"fmt"
	"image"

	"mosaic-builder/internal/features"
	"mosaic-builder/internal/metrics"
	"mosaic-builder/pkg/geometry"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle position of a session.
type State int

const (
	StateEmpty State = iota
	StateSeeded
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateSeeded:
		return "seeded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is the read-only view of a session handed to an Exporter.
type Snapshot struct {
	Canvas *Canvas
	Tiles  []*Tile
	Bounds geometry.BoundingBox
}

// Exporter writes a snapshot under dest. An empty name asks the exporter to
// pick one. It returns the directory it wrote.
type Exporter interface {
	Export(dest, name string, snap Snapshot) (string, error)
}

// Collaborators are the services a session delegates to. Exporter may be nil
// for sessions that are never saved.
type Collaborators struct {
	Detector  features.Detector
	Matcher   features.Matcher
	Estimator Estimator
	Renderer  Renderer
	Exporter  Exporter
}

// Preview is the would-be placement of an image that was not added.
type Preview struct {
	Canvas        *Canvas
	Box           geometry.BoundingBox
	Outline       []geometry.Point2D // tile corners, mosaic coordinates
	CanvasOutline []geometry.Point2D // tile corners, current canvas pixels
	Bounds        geometry.BoundingBox
	Reference     int
	Score         int
	Overlap       float64 // fraction of the tile covered by its reference
	Transform     geometry.AffineTransform
}

// Session is one panorama in progress. It is not safe for concurrent use.
type Session struct {
	engine   *Engine
	canvases *CanvasManager
	exporter Exporter

	store  TileStore
	bounds geometry.BoundingBox
	canvas *Canvas
}

// NewSession returns an empty session.
func NewSession(c Collaborators, opts Options) (*Session, error) {
	switch {
	case c.Detector == nil:
		return nil, errors.New("mosaic: detector is required")
	case c.Matcher == nil:
		return nil, errors.New("mosaic: matcher is required")
	case c.Estimator == nil:
		return nil, errors.New("mosaic: estimator is required")
	case c.Renderer == nil:
		return nil, errors.New("mosaic: renderer is required")
	}
	bounds := geometry.EmptyBox()
	return &Session{
		engine:   NewEngine(c.Detector, c.Matcher, c.Estimator, c.Renderer, opts),
		canvases: NewCanvasManager(c.Renderer),
		exporter: c.Exporter,
		bounds:   bounds,
		canvas:   &Canvas{Bounds: bounds},
	}, nil
}

// AddImage registers raw and, on success, appends it as a new tile and
// rebuilds the composite.
func (s *Session) AddImage(raw *image.Gray) (*Tile, error) {
	reg, err := s.engine.Register(&s.store, s.bounds, raw)
	if err != nil {
		metrics.ObserveRegistration(resultOf(err))
		log.Warn().Err(err).Int("tiles", s.store.Len()).Msg("image not added")
		return nil, err
	}

	tiles := append(s.store.All(), reg.Tile)
	canvas, err := s.canvases.Rebuild(tiles, reg.Bounds)
	if err != nil {
		metrics.ObserveRegistration(metrics.ResultError)
		return nil, fmt.Errorf("rebuild canvas: %w", err)
	}
	if err := s.store.Append(reg.Tile); err != nil {
		metrics.ObserveRegistration(metrics.ResultError)
		return nil, err
	}
	s.bounds = reg.Bounds
	s.canvas = canvas

	if reg.Tile.Reference < 0 {
		metrics.ObserveRegistration(metrics.ResultSeeded)
	} else {
		metrics.ObserveRegistration(metrics.ResultRegistered)
	}
	metrics.SetTiles(s.store.Len())

	log.Info().Int("tile", reg.Tile.Index).Int("reference", reg.Tile.Reference).
		Int("matches", reg.Tile.Matches).
		Float64("x_min", s.bounds.XMin).Float64("x_max", s.bounds.XMax).
		Float64("y_min", s.bounds.YMin).Float64("y_max", s.bounds.YMax).
		Msg("tile added")
	return reg.Tile, nil
}

// PreviewImage runs the same registration as AddImage and reports where raw
// would land. The session is not modified.
func (s *Session) PreviewImage(raw *image.Gray) (*Preview, error) {
	reg, err := s.engine.Register(&s.store, s.bounds, raw)
	if err != nil {
		return nil, err
	}
	t := reg.Tile
	outline := t.Outline()
	canvasOutline := make([]geometry.Point2D, len(outline))
	for i, p := range outline {
		canvasOutline[i] = s.canvas.ToPixel(p)
	}
	var overlap float64
	if ref, ok := s.Tile(t.Reference); ok {
		if area := geometry.PolygonArea(outline); area > 0 {
			overlap = geometry.OverlapArea(outline, ref.Outline()) / area
		}
	}
	return &Preview{
		Canvas:        s.canvas,
		Box:           t.Box,
		Outline:       outline,
		CanvasOutline: canvasOutline,
		Bounds:        reg.Bounds,
		Reference:     t.Reference,
		Score:         t.Matches,
		Overlap:       overlap,
		Transform:     t.Transform,
	}, nil
}

// SaveMosaic rebuilds the composite and exports it with every tile under
// dest, using the exporter's default name.
func (s *Session) SaveMosaic(dest string) (string, error) {
	return s.SaveMosaicAs(dest, "")
}

// SaveMosaicAs is SaveMosaic with a caller-chosen name. Failures wrap
// ErrPersistence and leave the in-memory mosaic as it was.
func (s *Session) SaveMosaicAs(dest, name string) (string, error) {
	if s.exporter == nil {
		metrics.ObserveSave(false)
		return "", fmt.Errorf("%w: no exporter configured", ErrPersistence)
	}

	tiles := s.store.All()
	canvas, err := s.canvases.Rebuild(tiles, s.bounds)
	if err != nil {
		metrics.ObserveSave(false)
		return "", fmt.Errorf("rebuild canvas: %w", err)
	}
	s.canvas = canvas

	dir, err := s.exporter.Export(dest, name, Snapshot{Canvas: canvas, Tiles: tiles, Bounds: s.bounds})
	if err != nil {
		metrics.ObserveSave(false)
		log.Error().Err(err).Str("dest", dest).Msg("save failed")
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	metrics.ObserveSave(true)
	log.Info().Str("dir", dir).Int("tiles", len(tiles)).Msg("mosaic saved")
	return dir, nil
}

func (s *Session) Len() int { return s.store.Len() }

// Tiles returns the tiles in insertion order.
func (s *Session) Tiles() []*Tile { return s.store.All() }

func (s *Session) Tile(i int) (*Tile, bool) {
	if i < 0 || i >= s.store.Len() {
		return nil, false
	}
	return s.store.At(i), true
}

func (s *Session) Bounds() geometry.BoundingBox { return s.bounds }

func (s *Session) Canvas() *Canvas { return s.canvas }

func (s *Session) State() State {
	if s.store.Len() == 0 {
		return StateEmpty
	}
	return StateSeeded
}

// Snapshot returns the current state without rebuilding.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{Canvas: s.canvas, Tiles: s.store.All(), Bounds: s.bounds}
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, ErrEmptyInput):
		return metrics.ResultEmptyInput
	case errors.Is(err, ErrInsufficientOverlap):
		return metrics.ResultInsufficientOverlap
	case errors.Is(err, ErrTransformNotFound):
		return metrics.ResultTransformNotFound
	default:
		return metrics.ResultError
	}
}
