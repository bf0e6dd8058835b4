// Package geom provides the pure 2-D polygon functions used for spatial
// territory queries. Everything here is allocation-free and safe for
// concurrent use.
package geom

import "math"

// Point is a position on the ground plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is a closed ring; the last vertex connects back to the first.
type Polygon []Point

// Epsilon is the tolerance used for horizontal edges in the ray cast.
const Epsilon = 1e-9

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Scale returns p * k.
func (p Point) Scale(k float64) Point { return Point{p.X * k, p.Y * k} }

// Dot returns the dot product.
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Dist returns the euclidean distance between p and q.
func Dist(p, q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Contains reports whether p lies inside poly using the ray-cast parity rule.
// Edges whose endpoints differ in y by less than Epsilon are skipped so a
// horizontal edge never toggles parity.
func (poly Polygon) Contains(p Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if math.Abs(a.Y-b.Y) < Epsilon {
			continue
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xCross := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// ClosestOnSegment projects p onto segment ab with t clamped to [0,1].
func ClosestOnSegment(p, a, b Point) Point {
	ab := b.Sub(a)
	den := ab.Dot(ab)
	if den == 0 {
		return a
	}
	t := p.Sub(a).Dot(ab) / den
	t = math.Max(0, math.Min(1, t))
	return a.Add(ab.Scale(t))
}

// ClosestPoint returns the point on the polygon's boundary nearest to p.
// An empty polygon returns p unchanged.
func (poly Polygon) ClosestPoint(p Point) Point {
	n := len(poly)
	if n == 0 {
		return p
	}
	if n == 1 {
		return poly[0]
	}
	best := poly[0]
	bestD := math.Inf(1)
	for i := 0; i < n; i++ {
		c := ClosestOnSegment(p, poly[i], poly[(i+1)%n])
		if d := Dist(p, c); d < bestD {
			bestD = d
			best = c
		}
	}
	return best
}

// DistanceToBorder returns the distance from p to the nearest edge.
func (poly Polygon) DistanceToBorder(p Point) float64 {
	if len(poly) == 0 {
		return math.Inf(1)
	}
	return Dist(p, poly.ClosestPoint(p))
}

// Centroid returns the area-weighted centroid, falling back to the vertex
// mean for degenerate rings.
func (poly Polygon) Centroid() Point {
	n := len(poly)
	if n == 0 {
		return Point{}
	}
	var area, cx, cy float64
	for i := 0; i < n; i++ {
		a, b := poly[i], poly[(i+1)%n]
		cross := a.X*b.Y - b.X*a.Y
		area += cross
		cx += (a.X + b.X) * cross
		cy += (a.Y + b.Y) * cross
	}
	if math.Abs(area) < Epsilon {
		var sx, sy float64
		for _, p := range poly {
			sx += p.X
			sy += p.Y
		}
		return Point{sx / float64(n), sy / float64(n)}
	}
	area *= 0.5
	return Point{cx / (6 * area), cy / (6 * area)}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
