package geometry

import "math"

// Outline returns the corners of a width x height raster mapped through t,
// in the order top-left, top-right, bottom-right, bottom-left of the source.
func Outline(t AffineTransform, width, height int) []Point2D {
	return TransformPoints(t, Extent(width, height).Corners())
}

// SignedArea is the shoelace sum over the ring. It is positive for
// counter-clockwise winding in a y-up frame.
func SignedArea(ring []Point2D) float64 {
	if len(ring) < 3 {
		return 0
	}
	var twice float64
	prev := ring[len(ring)-1]
	for _, p := range ring {
		twice += cross(prev, p)
		prev = p
	}
	return twice / 2
}

// PolygonArea is the absolute value of SignedArea.
func PolygonArea(ring []Point2D) float64 {
	return math.Abs(SignedArea(ring))
}

// OverlapArea returns the area shared by two convex rings.
func OverlapArea(a, b []Point2D) float64 {
	return PolygonArea(IntersectPolygons(a, b))
}

// IntersectPolygons clips the convex ring subject by the convex ring window,
// one half-plane per window edge. Either winding is accepted. The result is
// nil when the rings are disjoint or degenerate.
func IntersectPolygons(subject, window []Point2D) []Point2D {
	if len(subject) < 3 || len(window) < 3 {
		return nil
	}
	out := ccw(subject)
	window = ccw(window)

	prev := window[len(window)-1]
	for _, p := range window {
		out = clipHalfPlane(out, prev, p)
		if len(out) < 3 {
			return nil
		}
		prev = p
	}
	return out
}

// ccw returns a copy of ring wound counter-clockwise.
func ccw(ring []Point2D) []Point2D {
	out := append([]Point2D(nil), ring...)
	if SignedArea(out) >= 0 {
		return out
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// clipHalfPlane keeps the part of ring on the left of the directed line a->b.
func clipHalfPlane(ring []Point2D, a, b Point2D) []Point2D {
	side := func(p Point2D) float64 {
		return cross(b.Sub(a), p.Sub(a))
	}

	kept := make([]Point2D, 0, len(ring)+1)
	prev := ring[len(ring)-1]
	prevSide := side(prev)
	for _, p := range ring {
		s := side(p)
		if (prevSide >= 0) != (s >= 0) {
			// The edge crosses the line; interpolate on the signed distances.
			if d := prevSide - s; math.Abs(d) > 1e-12 {
				kept = append(kept, prev.Lerp(p, prevSide/d))
			}
		}
		if s >= 0 {
			kept = append(kept, p)
		}
		prev, prevSide = p, s
	}
	return kept
}

func cross(a, b Point2D) float64 {
	return a.X*b.Y - a.Y*b.X
}
