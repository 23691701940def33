// Package alignment estimates the similarity transform between two point
// sets in the presence of outliers.
package alignment

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"mosaic-builder/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

const (
	// MinSample is the number of pairs that determine a similarity transform.
	MinSample = 2

	DefaultMinInliers = 3
	DefaultThreshold  = 3.0
)

// ErrNoConsensus is returned when no candidate transform gathers enough inliers.
var ErrNoConsensus = errors.New("no similarity transform reached consensus")

// PointPair maps Src in one frame to Dst in another.
type PointPair struct {
	Src geometry.Point2D
	Dst geometry.Point2D
}

// Estimate is the outcome of a robust fit.
type Estimate struct {
	Transform geometry.AffineTransform
	Inliers   []int
	Trials    int
	MeanError float64
}

// SimilarityEstimator fits scale + rotation + translation with RANSAC and
// refines the winner by least squares over its inliers.
type SimilarityEstimator struct {
	Threshold  float64 // inlier distance in destination pixels
	MinInliers int     // consensus required to accept a model
	Seed       int64   // sampling seed; fixed seeds give reproducible fits
}

// NewSimilarityEstimator returns an estimator with the default threshold
// and consensus size.
func NewSimilarityEstimator(seed int64) SimilarityEstimator {
	return SimilarityEstimator{
		Threshold:  DefaultThreshold,
		MinInliers: DefaultMinInliers,
		Seed:       seed,
	}
}

// EstimateSimilarity runs RANSAC until the trial count implied by confidence
// and the best inlier ratio so far is reached, capped at maxTrials.
func (e SimilarityEstimator) EstimateSimilarity(pairs []PointPair, confidence float64, maxTrials int) (Estimate, error) {
	if len(pairs) < MinSample {
		return Estimate{}, fmt.Errorf("need at least %d point pairs, got %d", MinSample, len(pairs))
	}
	if maxTrials < 1 {
		return Estimate{}, fmt.Errorf("max trials must be positive, got %d", maxTrials)
	}
	threshold := e.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	minInliers := max(e.MinInliers, MinSample)

	rng := rand.New(rand.NewSource(e.Seed))
	n := len(pairs)

	var bestInliers []int
	var bestError float64
	trials := maxTrials
	iter := 0
	for ; iter < trials; iter++ {
		i0 := rng.Intn(n)
		i1 := rng.Intn(n - 1)
		if i1 >= i0 {
			i1++
		}

		transform, err := computeSimilarityFrom2(pairs[i0], pairs[i1])
		if err != nil {
			continue
		}

		inliers, sumErr := countInliers(pairs, transform, threshold)
		if len(inliers) > len(bestInliers) ||
			(len(inliers) == len(bestInliers) && len(inliers) > 0 && sumErr < bestError) {
			bestInliers = inliers
			bestError = sumErr
			trials = min(maxTrials, requiredTrials(confidence, float64(len(inliers))/float64(n), iter+1))
		}
	}

	if len(bestInliers) < minInliers {
		return Estimate{Trials: iter}, fmt.Errorf("%w: best model had %d inliers of %d, need %d",
			ErrNoConsensus, len(bestInliers), n, minInliers)
	}

	inlierPairs := make([]PointPair, len(bestInliers))
	for i, idx := range bestInliers {
		inlierPairs[i] = pairs[idx]
	}

	final, err := computeSimilarityLeastSquares(inlierPairs)
	if err != nil {
		return Estimate{Trials: iter}, fmt.Errorf("%w: refinement failed: %v", ErrNoConsensus, err)
	}

	refined, _ := countInliers(pairs, final, threshold)
	if len(refined) < len(bestInliers) {
		refined = bestInliers
	}
	if !final.IsFinite() || final.ScaleFactor() <= 0 {
		return Estimate{Trials: iter}, fmt.Errorf("%w: degenerate refinement", ErrNoConsensus)
	}

	return Estimate{
		Transform: final,
		Inliers:   refined,
		Trials:    iter,
		MeanError: CalculateAlignmentError(pairs, refined, final),
	}, nil
}

// requiredTrials returns the number of samples needed to draw at least one
// all-inlier pair with the given confidence.
func requiredTrials(confidence, inlierRatio float64, done int) int {
	if inlierRatio >= 1 {
		return done
	}
	if inlierRatio <= 0 {
		return math.MaxInt32
	}
	good := math.Pow(inlierRatio, MinSample)
	denom := math.Log(1 - good)
	if denom >= 0 {
		return math.MaxInt32
	}
	n := math.Ceil(math.Log(1-confidence) / denom)
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return max(int(n), done)
}

func countInliers(pairs []PointPair, t geometry.AffineTransform, threshold float64) ([]int, float64) {
	var inliers []int
	var sum float64
	for i, p := range pairs {
		dist := t.Apply(p.Src).Distance(p.Dst)
		if dist < threshold {
			inliers = append(inliers, i)
			sum += dist
		}
	}
	return inliers, sum
}

// computeSimilarityFrom2 computes the similarity that maps both sources onto
// their destinations exactly.
func computeSimilarityFrom2(p0, p1 PointPair) (geometry.AffineTransform, error) {
	sx, sy := p1.Src.X-p0.Src.X, p1.Src.Y-p0.Src.Y
	dx, dy := p1.Dst.X-p0.Dst.X, p1.Dst.Y-p0.Dst.Y

	srcLen := math.Sqrt(sx*sx + sy*sy)
	dstLen := math.Sqrt(dx*dx + dy*dy)
	if srcLen < 0.001 || dstLen < 0.001 {
		return geometry.AffineTransform{}, fmt.Errorf("degenerate points")
	}

	scale := dstLen / srcLen
	theta := math.Atan2(dy, dx) - math.Atan2(sy, sx)
	a := scale * math.Cos(theta)
	b := scale * math.Sin(theta)

	// d0 = S * s0 + t  =>  t = d0 - S * s0
	tx := p0.Dst.X - (a*p0.Src.X - b*p0.Src.Y)
	ty := p0.Dst.Y - (b*p0.Src.X + a*p0.Src.Y)

	return geometry.AffineTransform{
		A: a, B: -b, TX: tx,
		C: b, D: a, TY: ty,
	}, nil
}

// computeSimilarityLeastSquares fits [a -b tx; b a ty] to all pairs.
func computeSimilarityLeastSquares(pairs []PointPair) (geometry.AffineTransform, error) {
	n := len(pairs)
	if n < MinSample {
		return geometry.AffineTransform{}, fmt.Errorf("need at least %d points", MinSample)
	}

	A := mat.NewDense(n*2, 4, nil)
	B := mat.NewVecDense(n*2, nil)

	for i, p := range pairs {
		x, y := p.Src.X, p.Src.Y

		// x' = a*x - b*y + tx
		A.Set(i*2, 0, x)
		A.Set(i*2, 1, -y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, p.Dst.X)

		// y' = b*x + a*y + ty
		A.Set(i*2+1, 0, y)
		A.Set(i*2+1, 1, x)
		A.Set(i*2+1, 3, 1)
		B.SetVec(i*2+1, p.Dst.Y)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return geometry.AffineTransform{}, err
	}

	a, b := params.AtVec(0), params.AtVec(1)
	return geometry.AffineTransform{
		A: a, B: -b, TX: params.AtVec(2),
		C: b, D: a, TY: params.AtVec(3),
	}, nil
}

// CalculateAlignmentError returns the mean distance between transformed
// sources and destinations over the selected pairs.
func CalculateAlignmentError(pairs []PointPair, selected []int, t geometry.AffineTransform) float64 {
	if len(selected) == 0 {
		return math.Inf(1)
	}

	var total float64
	for _, idx := range selected {
		total += t.Apply(pairs[idx].Src).Distance(pairs[idx].Dst)
	}
	return total / float64(len(selected))
}
