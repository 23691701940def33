package cv

import (
	"mosaic-builder/internal/alignment"
	"mosaic-builder/internal/config"
	"mosaic-builder/internal/mosaic"
	"mosaic-builder/internal/project"
	"mosaic-builder/internal/raster"
)

// NewSession builds a mosaic session from settings: ORB detection, Hamming
// matching, RANSAC estimation, the configured render backend and the file
// exporter. The returned function releases the OpenCV objects.
func NewSession(cfg config.Config) (*mosaic.Session, func(), error) {
	detector := NewORBDetector(ORBParams{
		MaxFeatures:   cfg.Features.MaxFeatures,
		ScaleFactor:   cfg.Features.ScaleFactor,
		Levels:        cfg.Features.Levels,
		FastThreshold: cfg.Features.FastThreshold,
	})
	matcher := NewBFMatcher(cfg.Features.MaxDistance)
	release := func() {
		detector.Close()
		matcher.Close()
	}

	var renderer mosaic.Renderer = raster.Renderer{}
	if cfg.Render.Backend == "opencv" {
		renderer = Renderer{}
	}

	session, err := mosaic.NewSession(mosaic.Collaborators{
		Detector: detector,
		Matcher:  matcher,
		Estimator: alignment.SimilarityEstimator{
			Threshold:  cfg.Registration.InlierThreshold,
			MinInliers: alignment.DefaultMinInliers,
			Seed:       cfg.Registration.Seed,
		},
		Renderer: renderer,
		Exporter: project.NewExporter(cfg.Output.Format),
	}, mosaic.Options{
		MinCorrespondences: cfg.Registration.MinCorrespondences,
		Confidence:         cfg.Registration.Confidence,
		MaxTrials:          cfg.Registration.MaxTrials,
		MinScale:           cfg.Registration.MinScale,
		MaxScale:           cfg.Registration.MaxScale,
		MaxCanvasPixels:    cfg.Registration.MaxCanvasPixels,
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return session, release, nil
}
