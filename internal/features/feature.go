// Package features defines keypoint/descriptor sets, correspondences between
// them, and the detector and matcher contracts the registration engine uses.
package features

import (
	"image"

	"mosaic-builder/pkg/geometry"
)

// Feature is a keypoint position with its binary descriptor.
type Feature struct {
	Position   geometry.Point2D `json:"position"`
	Descriptor []byte           `json:"descriptor"`
	Response   float64          `json:"response,omitempty"`
}

// Correspondence pairs feature IndexA of one set with IndexB of another.
type Correspondence struct {
	IndexA   int
	IndexB   int
	Distance float64
}

// Detector extracts features from a grayscale raster.
type Detector interface {
	Detect(img *image.Gray) ([]Feature, error)
}

// Matcher finds correspondences between two feature sets. Implementations
// must never match a feature of either set twice.
type Matcher interface {
	Match(a, b []Feature) []Correspondence
}

// Translate returns a copy of fs with every position shifted by d.
// Descriptors are shared with the input.
func Translate(fs []Feature, d geometry.Point2D) []Feature {
	out := make([]Feature, len(fs))
	for i, f := range fs {
		f.Position = f.Position.Add(d)
		out[i] = f
	}
	return out
}

// Clone returns a deep copy of fs.
func Clone(fs []Feature) []Feature {
	out := make([]Feature, len(fs))
	for i, f := range fs {
		f.Descriptor = append([]byte(nil), f.Descriptor...)
		out[i] = f
	}
	return out
}

// Unique drops correspondences that reuse an index already claimed on either
// side. Earlier entries win.
func Unique(cs []Correspondence) []Correspondence {
	usedA := make(map[int]bool, len(cs))
	usedB := make(map[int]bool, len(cs))
	out := make([]Correspondence, 0, len(cs))
	for _, c := range cs {
		if usedA[c.IndexA] || usedB[c.IndexB] {
			continue
		}
		usedA[c.IndexA] = true
		usedB[c.IndexB] = true
		out = append(out, c)
	}
	return out
}
