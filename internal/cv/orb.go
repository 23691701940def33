package cv

import (
	"fmt"
	"image"
	"sync"

	"mosaic-builder/internal/features"
	"mosaic-builder/pkg/geometry"

	"gocv.io/x/gocv"
)

// ORBParams configures the ORB detector.
type ORBParams struct {
	MaxFeatures   int
	ScaleFactor   float64
	Levels        int
	FastThreshold int
}

// DefaultORBParams returns OpenCV's ORB defaults.
func DefaultORBParams() ORBParams {
	return ORBParams{MaxFeatures: 500, ScaleFactor: 1.2, Levels: 8, FastThreshold: 20}
}

// ORBDetector extracts ORB keypoints and 32-byte binary descriptors.
type ORBDetector struct {
	mu  sync.Mutex
	orb gocv.ORB
}

// NewORBDetector allocates the OpenCV detector. Call Close when done.
func NewORBDetector(p ORBParams) *ORBDetector {
	const (
		edgeThreshold = 31
		firstLevel    = 0
		wtaK          = 2
		patchSize     = 31
	)
	orb := gocv.NewORBWithParams(p.MaxFeatures, float32(p.ScaleFactor), p.Levels,
		edgeThreshold, firstLevel, wtaK, gocv.ORBScoreTypeHarris, patchSize, p.FastThreshold)
	return &ORBDetector{orb: orb}
}

// Detect implements features.Detector.
func (d *ORBDetector) Detect(img *image.Gray) ([]features.Feature, error) {
	mat, err := grayToMat(img)
	if err != nil {
		return nil, fmt.Errorf("orb input: %w", err)
	}
	defer mat.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	d.mu.Lock()
	kps, desc := d.orb.DetectAndCompute(mat, mask)
	d.mu.Unlock()
	defer desc.Close()

	if len(kps) == 0 || desc.Empty() {
		return nil, nil
	}
	if desc.Rows() != len(kps) {
		return nil, fmt.Errorf("orb returned %d descriptors for %d keypoints", desc.Rows(), len(kps))
	}

	width := desc.Cols()
	raw := desc.ToBytes()
	out := make([]features.Feature, len(kps))
	for i, kp := range kps {
		out[i] = features.Feature{
			Position:   geometry.Point2D{X: kp.X, Y: kp.Y},
			Descriptor: append([]byte(nil), raw[i*width:(i+1)*width]...),
			Response:   kp.Response,
		}
	}
	return out, nil
}

func (d *ORBDetector) Close() error {
	return d.orb.Close()
}
