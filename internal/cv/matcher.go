package cv

import (
	"sync"

	"mosaic-builder/internal/features"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// BFMatcher matches binary descriptors with OpenCV's brute-force Hamming
// matcher in cross-check mode.
type BFMatcher struct {
	// MaxDistance drops pairs further apart than this many bits. Zero keeps all.
	MaxDistance float64

	mu sync.Mutex
	bf gocv.BFMatcher
}

func NewBFMatcher(maxDistance float64) *BFMatcher {
	return &BFMatcher{
		MaxDistance: maxDistance,
		bf:          gocv.NewBFMatcherWithParams(gocv.NormHamming, true),
	}
}

// Match implements features.Matcher.
func (m *BFMatcher) Match(a, b []features.Feature) []features.Correspondence {
	qa, ok := descriptorMat(a)
	if !ok {
		return nil
	}
	defer qa.Close()
	tb, ok := descriptorMat(b)
	if !ok {
		return nil
	}
	defer tb.Close()

	m.mu.Lock()
	knn := m.bf.KnnMatch(qa, tb, 1)
	m.mu.Unlock()

	out := make([]features.Correspondence, 0, len(knn))
	for _, candidates := range knn {
		if len(candidates) == 0 {
			continue
		}
		dm := candidates[0]
		if m.MaxDistance > 0 && dm.Distance > m.MaxDistance {
			continue
		}
		out = append(out, features.Correspondence{IndexA: dm.QueryIdx, IndexB: dm.TrainIdx, Distance: dm.Distance})
	}
	return features.Unique(out)
}

func (m *BFMatcher) Close() error {
	return m.bf.Close()
}

// descriptorMat packs descriptors into a CV_8UC1 Mat, one row per feature.
// Sets with missing or ragged descriptors are rejected.
func descriptorMat(fs []features.Feature) (gocv.Mat, bool) {
	if len(fs) == 0 {
		return gocv.Mat{}, false
	}
	width := len(fs[0].Descriptor)
	if width == 0 {
		return gocv.Mat{}, false
	}
	data := make([]byte, 0, width*len(fs))
	for _, f := range fs {
		if len(f.Descriptor) != width {
			log.Warn().Int("want", width).Int("got", len(f.Descriptor)).Msg("ragged descriptors, skipping match")
			return gocv.Mat{}, false
		}
		data = append(data, f.Descriptor...)
	}
	mat, err := gocv.NewMatFromBytes(len(fs), width, gocv.MatTypeCV8UC1, data)
	if err != nil {
		log.Warn().Err(err).Msg("descriptor mat")
		return gocv.Mat{}, false
	}
	return mat, true
}
