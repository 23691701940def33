// Package geometry holds the planar types shared by registration, rendering
// and export: points, axis-aligned boxes in mosaic coordinates and 2x3
// affine transforms.
package geometry

import (
	"image"
	"math"
)

// pixelSnap is how close a coordinate must be to an integer to be treated as one
// when converting to pixel frames. Least-squares transforms recovered from exact
// correspondences land within a few ULPs of the true value.
const pixelSnap = 1e-6

// Point2D is a position in image or mosaic coordinates, y pointing down.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point2D) Add(q Point2D) Point2D { return Point2D{p.X + q.X, p.Y + q.Y} }
func (p Point2D) Sub(q Point2D) Point2D { return Point2D{p.X - q.X, p.Y - q.Y} }
func (p Point2D) Scale(k float64) Point2D { return Point2D{k * p.X, k * p.Y} }

// Lerp returns the point a fraction f of the way from p to q.
func (p Point2D) Lerp(q Point2D, f float64) Point2D {
	return p.Add(q.Sub(p).Scale(f))
}

// Distance is the Euclidean distance between p and q.
func (p Point2D) Distance(q Point2D) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Round snaps p to the nearest pixel.
func (p Point2D) Round() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// BoundingBox is an axis-aligned box in mosaic coordinates.
// The zero value is not empty; use EmptyBox for the identity of Union.
type BoundingBox struct {
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	YMin float64 `json:"y_min"`
	YMax float64 `json:"y_max"`
}

// EmptyBox returns a box that contains nothing and is absorbed by Union.
func EmptyBox() BoundingBox {
	return BoundingBox{
		XMin: math.Inf(1), XMax: math.Inf(-1),
		YMin: math.Inf(1), YMax: math.Inf(-1),
	}
}

// Extent returns the box covering an image of the given size placed at the origin.
func Extent(width, height int) BoundingBox {
	return BoundingBox{XMax: float64(width), YMax: float64(height)}
}

// Empty reports whether the box encloses no area.
func (b BoundingBox) Empty() bool {
	return !(b.XMin < b.XMax) || !(b.YMin < b.YMax)
}

// Width returns the horizontal extent.
func (b BoundingBox) Width() float64 {
	if b.Empty() {
		return 0
	}
	return b.XMax - b.XMin
}

// Height returns the vertical extent.
func (b BoundingBox) Height() float64 {
	if b.Empty() {
		return 0
	}
	return b.YMax - b.YMin
}

// Union returns the smallest box containing both boxes.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	if b.Empty() {
		return other
	}
	if other.Empty() {
		return b
	}
	return BoundingBox{
		XMin: math.Min(b.XMin, other.XMin),
		XMax: math.Max(b.XMax, other.XMax),
		YMin: math.Min(b.YMin, other.YMin),
		YMax: math.Max(b.YMax, other.YMax),
	}
}

// Contains reports whether other lies entirely inside b.
func (b BoundingBox) Contains(other BoundingBox) bool {
	if other.Empty() {
		return true
	}
	if b.Empty() {
		return false
	}
	return other.XMin >= b.XMin && other.XMax <= b.XMax &&
		other.YMin >= b.YMin && other.YMax <= b.YMax
}

// Corners returns the four corners clockwise from (XMin, YMin).
func (b BoundingBox) Corners() []Point2D {
	return []Point2D{
		{X: b.XMin, Y: b.YMin},
		{X: b.XMax, Y: b.YMin},
		{X: b.XMax, Y: b.YMax},
		{X: b.XMin, Y: b.YMax},
	}
}

// PixelFrame returns the integer rectangle covering the box.
func (b BoundingBox) PixelFrame() image.Rectangle {
	if b.Empty() {
		return image.Rectangle{}
	}
	return image.Rect(snapFloor(b.XMin), snapFloor(b.YMin), snapCeil(b.XMax), snapCeil(b.YMax))
}

// Offset returns the box translated by d.
func (b BoundingBox) Offset(d Point2D) BoundingBox {
	if b.Empty() {
		return b
	}
	return BoundingBox{XMin: b.XMin + d.X, XMax: b.XMax + d.X, YMin: b.YMin + d.Y, YMax: b.YMax + d.Y}
}

func snapFloor(v float64) int {
	if r := math.Round(v); math.Abs(v-r) < pixelSnap {
		return int(r)
	}
	return int(math.Floor(v))
}

func snapCeil(v float64) int {
	if r := math.Round(v); math.Abs(v-r) < pixelSnap {
		return int(r)
	}
	return int(math.Ceil(v))
}

// AffineTransform maps x' = A*x + B*y + TX, y' = C*x + D*y + TY.
// Tile transforms carry a tile's pixel coordinates into mosaic coordinates.
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

func Identity() AffineTransform { return Translation(0, 0) }

func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, TX: tx, D: 1, TY: ty}
}

// Rotation turns counter-clockwise in a y-up frame (clockwise on screen).
func Rotation(radians float64) AffineTransform {
	return Similarity(1, radians, 0, 0)
}

// Similarity scales by scale, rotates by radians and then shifts by (tx, ty).
func Similarity(scale, radians, tx, ty float64) AffineTransform {
	sin, cos := math.Sincos(radians)
	a, c := scale*cos, scale*sin
	return AffineTransform{A: a, B: -c, TX: tx, C: c, D: a, TY: ty}
}

// Apply maps p through t.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Compose returns the transform that applies u and then t.
func (t AffineTransform) Compose(u AffineTransform) AffineTransform {
	shift := t.Apply(Point2D{u.TX, u.TY})
	return AffineTransform{
		A: t.A*u.A + t.B*u.C, B: t.A*u.B + t.B*u.D, TX: shift.X,
		C: t.C*u.A + t.D*u.C, D: t.C*u.B + t.D*u.D, TY: shift.Y,
	}
}

// Inverse undoes t. ok is false when t collapses the plane.
func (t AffineTransform) Inverse() (inv AffineTransform, ok bool) {
	det := t.A*t.D - t.B*t.C
	if math.Abs(det) < 1e-10 {
		return AffineTransform{}, false
	}
	inv = AffineTransform{A: t.D / det, B: -t.B / det, C: -t.C / det, D: t.A / det}
	back := inv.Apply(Point2D{t.TX, t.TY})
	inv.TX, inv.TY = -back.X, -back.Y
	return inv, true
}

// ScaleFactor and Angle decompose a similarity; for other transforms they
// describe the image of the x axis only.
func (t AffineTransform) ScaleFactor() float64 { return math.Hypot(t.A, t.C) }
func (t AffineTransform) Angle() float64       { return math.Atan2(t.C, t.A) }

// IsSimilarity reports whether the transform has no shear or reflection.
func (t AffineTransform) IsSimilarity(tol float64) bool {
	return math.Abs(t.A-t.D) <= tol && math.Abs(t.B+t.C) <= tol && t.ScaleFactor() > 0
}

// IntegerTranslation reports whether the transform is a pure whole-pixel shift
// and returns that shift.
func (t AffineTransform) IntegerTranslation() (image.Point, bool) {
	if math.Abs(t.A-1) > pixelSnap || math.Abs(t.D-1) > pixelSnap ||
		math.Abs(t.B) > pixelSnap || math.Abs(t.C) > pixelSnap {
		return image.Point{}, false
	}
	rx, ry := math.Round(t.TX), math.Round(t.TY)
	if math.Abs(t.TX-rx) > pixelSnap || math.Abs(t.TY-ry) > pixelSnap {
		return image.Point{}, false
	}
	return image.Point{X: int(rx), Y: int(ry)}, true
}

// IsFinite reports whether every coefficient is a finite number.
func (t AffineTransform) IsFinite() bool {
	for _, row := range t.ToMatrix() {
		for _, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return false
			}
		}
	}
	return true
}

// ToMatrix lays the coefficients out row-major, as OpenCV expects.
func (t AffineTransform) ToMatrix() [2][3]float64 {
	return [2][3]float64{{t.A, t.B, t.TX}, {t.C, t.D, t.TY}}
}

// TransformBox returns the axis-aligned bounds of box mapped through t.
func TransformBox(t AffineTransform, box BoundingBox) BoundingBox {
	if box.Empty() {
		return box
	}
	return BoundsOf(TransformPoints(t, box.Corners()))
}

// TransformPoints maps every point through t.
func TransformPoints(t AffineTransform, points []Point2D) []Point2D {
	out := make([]Point2D, len(points))
	for i, p := range points {
		out[i] = t.Apply(p)
	}
	return out
}

// BoundsOf is the tightest box around points, or EmptyBox for none.
func BoundsOf(points []Point2D) BoundingBox {
	b := EmptyBox()
	for _, p := range points {
		b.XMin, b.XMax = math.Min(b.XMin, p.X), math.Max(b.XMax, p.X)
		b.YMin, b.YMax = math.Min(b.YMin, p.Y), math.Max(b.YMax, p.Y)
	}
	return b
}
