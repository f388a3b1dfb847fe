// Package geometry holds the planar primitives used to relate detector boxes
// to configured zones and to the middle line.
package geometry

// DefaultThreshold is the containment ratio a box must reach to count as
// being inside a zone.
const DefaultThreshold = 0.9

// Point is a location in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned rectangle given by its top-left (X1,Y1) and
// bottom-right (X2,Y2) corners. Zones use the same representation.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Line is a directed segment from A to B.
type Line struct {
	A Point `json:"a"`
	B Point `json:"b"`
}

// BoxFromCorners builds a box from two arbitrary opposite corners.
func BoxFromCorners(p, q Point) Box {
	return Box{
		X1: min(p.X, q.X),
		Y1: min(p.Y, q.Y),
		X2: max(p.X, q.X),
		Y2: max(p.Y, q.Y),
	}
}

// Width is clamped to zero for inverted boxes.
func (b Box) Width() float64 {
	return max(0, b.X2-b.X1)
}

// Height is clamped to zero for inverted boxes.
func (b Box) Height() float64 {
	return max(0, b.Y2-b.Y1)
}

// Centroid returns the center of the box.
func (b Box) Centroid() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Degenerate reports whether the box has no area.
func (b Box) Degenerate() bool {
	return Area(b) == 0
}

// ContainsPoint is the literal, edge-inclusive point-in-rectangle test.
func (b Box) ContainsPoint(p Point) bool {
	return b.X1 <= p.X && p.X <= b.X2 && b.Y1 <= p.Y && p.Y <= b.Y2
}

// Area returns width times height, zero for degenerate or inverted boxes.
func Area(b Box) float64 {
	return b.Width() * b.Height()
}

// IntersectionArea returns the overlap area of box and zone, zero if disjoint.
func IntersectionArea(box, zone Box) float64 {
	overlap := Box{
		X1: max(box.X1, zone.X1),
		Y1: max(box.Y1, zone.Y1),
		X2: min(box.X2, zone.X2),
		Y2: min(box.Y2, zone.Y2),
	}

	return Area(overlap)
}

// ContainmentRatio is the share of the box's own area that lies inside zone.
// A box without area has ratio zero.
func ContainmentRatio(box, zone Box) float64 {
	a := Area(box)
	if a == 0 {
		return 0
	}

	return IntersectionArea(box, zone) / a
}

// IsContained reports whether at least threshold of the box lies inside zone.
func IsContained(box, zone Box, threshold float64) bool {
	a := Area(box)
	if a == 0 {
		return false
	}

	return ContainmentRatio(box, zone) >= threshold
}

// SideOfLine classifies p against the directed line using the sign of the
// cross product of (B-A) and (p-A). Strictly positive is true; points on the
// line (zero cross product) resolve to false.
func SideOfLine(p Point, l Line) bool {
	return Cross(p, l) > 0
}

// Cross returns the z component of (B-A) x (p-A).
func Cross(p Point, l Line) float64 {
	return (l.B.X-l.A.X)*(p.Y-l.A.Y) - (l.B.Y-l.A.Y)*(p.X-l.A.X)
}
