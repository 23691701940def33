// Package config loads mosaic session settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where the tools look for settings when no -config flag is given.
const DefaultPath = "mosaic.toml"

type Config struct {
	Registration RegistrationConfig `toml:"registration"`
	Features     FeaturesConfig     `toml:"features"`
	Camera       CameraConfig       `toml:"camera"`
	Output       OutputConfig       `toml:"output"`
	Render       RenderConfig       `toml:"render"`
	Log          LogConfig          `toml:"log"`
	Metrics      MetricsConfig      `toml:"metrics"`
	Watch        WatchConfig        `toml:"watch"`
}

// RegistrationConfig tunes tile selection and the robust estimator.
type RegistrationConfig struct {
	MinCorrespondences int     `toml:"min_correspondences"`
	Confidence         float64 `toml:"confidence"`
	MaxTrials          int     `toml:"max_trials"`
	InlierThreshold    float64 `toml:"inlier_threshold"`
	Seed               int64   `toml:"seed"`
	MinScale           float64 `toml:"min_scale"`
	MaxScale           float64 `toml:"max_scale"`
	MaxCanvasPixels    float64 `toml:"max_canvas_pixels"`
}

// FeaturesConfig tunes ORB detection and descriptor matching.
type FeaturesConfig struct {
	MaxFeatures   int     `toml:"max_features"`
	ScaleFactor   float64 `toml:"scale_factor"`
	Levels        int     `toml:"levels"`
	FastThreshold int     `toml:"fast_threshold"`
	MaxDistance   float64 `toml:"max_distance"`
}

type CameraConfig struct {
	Device   int `toml:"device"`
	Averages int `toml:"averages"`
}

type OutputConfig struct {
	Dir      string `toml:"dir"`
	Format   string `toml:"format"`
	Autosave bool   `toml:"autosave"`
}

// RenderConfig selects the warp backend: "go" (x/image) or "opencv".
type RenderConfig struct {
	Backend string `toml:"backend"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// WatchConfig enables ingestion of image files dropped into Dir by an
// external capture program.
type WatchConfig struct {
	Dir        string `toml:"dir"`
	IntervalMS int    `toml:"interval_ms"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		Registration: RegistrationConfig{
			MinCorrespondences: 4,
			Confidence:         0.99,
			MaxTrials:          2000,
			InlierThreshold:    3.0,
			Seed:               1,
			MinScale:           0.2,
			MaxScale:           5,
			MaxCanvasPixels:    1 << 28,
		},
		Features: FeaturesConfig{
			MaxFeatures:   1000,
			ScaleFactor:   1.2,
			Levels:        8,
			FastThreshold: 20,
			MaxDistance:   64,
		},
		Camera: CameraConfig{
			Device:   0,
			Averages: 4,
		},
		Output: OutputConfig{
			Dir:    ".",
			Format: "tiff",
		},
		Render: RenderConfig{
			Backend: "go",
		},
		Log: LogConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			IntervalMS: 500,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
	cfg.Render.Backend = strings.ToLower(strings.TrimSpace(cfg.Render.Backend))
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise surface as confusing
// registration failures.
func (c Config) Validate() error {
	r := c.Registration
	if r.MinCorrespondences < 2 {
		return fmt.Errorf("registration.min_correspondences must be >= 2, got %d", r.MinCorrespondences)
	}
	if r.Confidence <= 0 || r.Confidence >= 1 {
		return fmt.Errorf("registration.confidence must be in (0,1), got %g", r.Confidence)
	}
	if r.MaxTrials < 1 {
		return fmt.Errorf("registration.max_trials must be >= 1, got %d", r.MaxTrials)
	}
	if r.InlierThreshold <= 0 {
		return fmt.Errorf("registration.inlier_threshold must be > 0, got %g", r.InlierThreshold)
	}
	if r.MinScale <= 0 || r.MaxScale < r.MinScale {
		return fmt.Errorf("registration scale range [%g, %g] is invalid", r.MinScale, r.MaxScale)
	}
	if r.MaxCanvasPixels < 1 {
		return fmt.Errorf("registration.max_canvas_pixels must be >= 1, got %g", r.MaxCanvasPixels)
	}
	if c.Features.MaxFeatures < 1 {
		return fmt.Errorf("features.max_features must be >= 1, got %d", c.Features.MaxFeatures)
	}
	if c.Camera.Averages < 1 {
		return fmt.Errorf("camera.averages must be >= 1, got %d", c.Camera.Averages)
	}
	if c.Watch.Dir != "" && c.Watch.IntervalMS < 1 {
		return fmt.Errorf("watch.interval_ms must be >= 1, got %d", c.Watch.IntervalMS)
	}
	switch c.Output.Format {
	case "tiff", "png":
	default:
		return fmt.Errorf("output.format must be tiff or png, got %q", c.Output.Format)
	}
	switch c.Render.Backend {
	case "go", "opencv":
	default:
		return fmt.Errorf("render.backend must be go or opencv, got %q", c.Render.Backend)
	}
	return nil
}
