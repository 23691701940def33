package features

import "math/bits"

// HammingMatcher is a brute-force matcher for binary descriptors with
// cross-checking: a pair is kept only when each feature is the other's
// nearest neighbour. Ties resolve to the lower index.
type HammingMatcher struct {
	// MaxDistance rejects pairs further apart than this many bits. Zero or
	// negative disables the limit.
	MaxDistance int
}

// Match implements Matcher.
func (m HammingMatcher) Match(a, b []Feature) []Correspondence {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	bestForA := make([]int, len(a))
	distForA := make([]int, len(a))
	bestForB := make([]int, len(b))
	distForB := make([]int, len(b))
	for j := range bestForB {
		bestForB[j] = -1
	}

	for i := range a {
		bestForA[i] = -1
		for j := range b {
			d := Hamming(a[i].Descriptor, b[j].Descriptor)
			if bestForA[i] < 0 || d < distForA[i] {
				bestForA[i], distForA[i] = j, d
			}
			if bestForB[j] < 0 || d < distForB[j] {
				bestForB[j], distForB[j] = i, d
			}
		}
	}

	var out []Correspondence
	for i, j := range bestForA {
		if j < 0 || bestForB[j] != i {
			continue
		}
		if m.MaxDistance > 0 && distForA[i] > m.MaxDistance {
			continue
		}
		out = append(out, Correspondence{IndexA: i, IndexB: j, Distance: float64(distForA[i])})
	}
	return out
}

// Hamming returns the bit distance between two descriptors. Bytes present in
// only one descriptor count as fully different.
func Hamming(a, b []byte) int {
	n := min(len(a), len(b))
	d := 0
	for i := 0; i < n; i++ {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	d += 8 * (max(len(a), len(b)) - n)
	return d
}
