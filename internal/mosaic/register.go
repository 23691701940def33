package mosaic

import (
	"fmt"
	"image"

	"mosaic-builder/internal/alignment"
	"mosaic-builder/internal/features"
	"mosaic-builder/internal/raster"
	"mosaic-builder/pkg/geometry"

	"github.com/rs/zerolog/log"
)

// similarityTolerance bounds the shear an estimator may return before the
// result is rejected as not a similarity.
const similarityTolerance = 1e-6

// Estimator fits a similarity transform to point pairs robustly.
type Estimator interface {
	EstimateSimilarity(pairs []alignment.PointPair, confidence float64, maxTrials int) (alignment.Estimate, error)
}

// Renderer warps rasters into an output frame and blends them through a mask.
type Renderer interface {
	Warp(src *image.Gray, t geometry.AffineTransform, frame image.Rectangle) (*image.Gray, *image.Alpha)
	Blend(base, overlay *image.Gray, mask *image.Alpha) *image.Gray
}

// Options configures registration.
type Options struct {
	// MinCorrespondences is the score below which an image is rejected with
	// ErrInsufficientOverlap. Never lower than alignment.MinSample.
	MinCorrespondences int
	Confidence         float64
	MaxTrials          int

	// MinScale and MaxScale bound the scale of an accepted transform.
	// MaxCanvasPixels bounds the area of the mosaic bounds after placement.
	// Zero selects the default.
	MinScale        float64
	MaxScale        float64
	MaxCanvasPixels float64
}

// DefaultOptions returns default registration options.
func DefaultOptions() Options {
	return Options{
		MinCorrespondences: 4,
		Confidence:         0.99,
		MaxTrials:          2000,
		MinScale:           0.2,
		MaxScale:           5,
		MaxCanvasPixels:    1 << 28,
	}
}

// Registration is a fully formed tile ready to append, plus the mosaic
// bounds that would result from appending it.
type Registration struct {
	Tile   *Tile
	Bounds geometry.BoundingBox
	Scores []int // correspondence count per existing tile, insertion order
}

// Engine places new images relative to the tiles already in a store. It
// reads the store but never modifies it.
type Engine struct {
	detector  features.Detector
	matcher   features.Matcher
	estimator Estimator
	renderer  Renderer
	opts      Options
}

// NewEngine wires the collaborators used for registration.
func NewEngine(detector features.Detector, matcher features.Matcher, estimator Estimator, renderer Renderer, opts Options) *Engine {
	opts.MinCorrespondences = max(opts.MinCorrespondences, alignment.MinSample)
	defaults := DefaultOptions()
	if opts.MinScale <= 0 {
		opts.MinScale = defaults.MinScale
	}
	if opts.MaxScale <= 0 {
		opts.MaxScale = defaults.MaxScale
	}
	if opts.MaxCanvasPixels <= 0 {
		opts.MaxCanvasPixels = defaults.MaxCanvasPixels
	}
	return &Engine{
		detector:  detector,
		matcher:   matcher,
		estimator: estimator,
		renderer:  renderer,
		opts:      opts,
	}
}

// Register computes where img belongs in the mosaic described by store and
// bounds. An empty store makes img the seed tile at the origin.
func (e *Engine) Register(store *TileStore, bounds geometry.BoundingBox, img *image.Gray) (*Registration, error) {
	if img == nil {
		return nil, &RegistrationError{Kind: ErrEmptyInput, Reference: -1, Err: raster.ErrEmpty}
	}
	if err := raster.Check(img); err != nil {
		return nil, &RegistrationError{Kind: ErrEmptyInput, Reference: -1, Err: err}
	}
	img = raster.Clone(raster.Normalize(img))

	feats, err := e.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("feature detection: %w", err)
	}

	if store.Len() == 0 {
		return e.seed(img, feats), nil
	}

	best, scores, matches := e.selectReference(store, feats)
	score := scores[best]
	if score < e.opts.MinCorrespondences {
		log.Debug().Int("best", best).Int("score", score).Int("required", e.opts.MinCorrespondences).
			Msg("no tile overlaps enough")
		return nil, &RegistrationError{Kind: ErrInsufficientOverlap, Reference: best, Score: score}
	}

	ref := store.At(best)
	pairs := make([]alignment.PointPair, len(matches))
	for i, c := range matches {
		pairs[i] = alignment.PointPair{
			Src: feats[c.IndexA].Position,
			Dst: ref.Features[c.IndexB].Position,
		}
	}

	// Reference features are stored in mosaic coordinates, so this fit is
	// already new-image -> reference -> mosaic.
	est, err := e.estimator.EstimateSimilarity(pairs, e.opts.Confidence, e.opts.MaxTrials)
	if err != nil {
		return nil, &RegistrationError{Kind: ErrTransformNotFound, Reference: best, Score: score, Err: err}
	}
	t := est.Transform
	if !t.IsFinite() || !t.IsSimilarity(similarityTolerance) {
		return nil, &RegistrationError{Kind: ErrTransformNotFound, Reference: best, Score: score,
			Err: fmt.Errorf("estimator returned a non-similarity transform %v", t.ToMatrix())}
	}

	if k := t.ScaleFactor(); k < e.opts.MinScale || k > e.opts.MaxScale {
		return nil, &RegistrationError{Kind: ErrTransformNotFound, Reference: best, Score: score,
			Err: fmt.Errorf("scale %g outside [%g, %g]", k, e.opts.MinScale, e.opts.MaxScale)}
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	box := geometry.TransformBox(t, geometry.Extent(w, h))
	grown := bounds.Union(box)
	if area := grown.Width() * grown.Height(); area > e.opts.MaxCanvasPixels {
		return nil, &RegistrationError{Kind: ErrTransformNotFound, Reference: best, Score: score,
			Err: fmt.Errorf("placement grows the mosaic to %.0f pixels, limit %.0f", area, e.opts.MaxCanvasPixels)}
	}

	mosaicFeats, err := e.mosaicFeatures(img, t, box)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("reference", best).Int("score", score).Int("inliers", len(est.Inliers)).
		Float64("scale", t.ScaleFactor()).Float64("angle", t.Angle()).
		Float64("tx", t.TX).Float64("ty", t.TY).Msg("registered image")

	tile := &Tile{
		Index:     store.Len(),
		Raster:    img,
		Transform: t,
		Box:       box,
		Features:  mosaicFeats,
		Reference: best,
		Matches:   score,
		Inliers:   len(est.Inliers),
	}
	return &Registration{Tile: tile, Bounds: grown, Scores: scores}, nil
}

func (e *Engine) seed(img *image.Gray, feats []features.Feature) *Registration {
	box := geometry.Extent(img.Bounds().Dx(), img.Bounds().Dy())
	log.Debug().Int("features", len(feats)).Msg("seeding mosaic")
	tile := &Tile{
		Index:     0,
		Raster:    img,
		Transform: geometry.Identity(),
		Box:       box,
		Features:  features.Clone(feats),
		Reference: -1,
	}
	return &Registration{Tile: tile, Bounds: box}
}

// selectReference scores every tile and returns the earliest tile with the
// highest score, all scores, and the correspondences for the winner.
func (e *Engine) selectReference(store *TileStore, feats []features.Feature) (int, []int, []features.Correspondence) {
	scores := make([]int, store.Len())
	best := 0
	var bestMatches []features.Correspondence
	for i := 0; i < store.Len(); i++ {
		matches := features.Unique(e.matcher.Match(feats, store.At(i).Features))
		scores[i] = len(matches)
		log.Debug().Int("tile", i).Int("score", scores[i]).Msg("match score")
		if i == 0 || scores[i] > scores[best] {
			best = i
			bestMatches = matches
		}
	}
	return best, scores, bestMatches
}

// mosaicFeatures re-detects features on the image warped into its own
// mosaic-aligned frame and shifts them into mosaic coordinates.
func (e *Engine) mosaicFeatures(img *image.Gray, t geometry.AffineTransform, box geometry.BoundingBox) ([]features.Feature, error) {
	frame := box.PixelFrame()
	warped, _ := e.renderer.Warp(img, t, frame)
	feats, err := e.detector.Detect(warped)
	if err != nil {
		return nil, fmt.Errorf("feature detection on warped tile: %w", err)
	}
	return features.Translate(feats, geometry.Point2D{X: float64(frame.Min.X), Y: float64(frame.Min.Y)}), nil
}
