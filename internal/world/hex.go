// Package world generates the territory map: a hex layout of regions, each
// subdivided into districts and outposts whose types come from layered noise.
// Uses axial coordinates (q, r) for the region grid.
package world

import (
	"math"

	"github.com/talgya/frontline/internal/geom"
)

// HexCoord represents a region position using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = HexCoord{Q: h.Q + dir.Q, R: h.R + dir.R}
	}
	return result
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	return max(dq, dr, ds)
}

// Spiral lists every coordinate within radius of the origin, center first,
// then ring by ring. The order is stable, so ids derived from it are too.
func Spiral(radius int) []HexCoord {
	out := []HexCoord{{}}
	for k := 1; k <= radius; k++ {
		// Start k steps out along direction 4, then walk the six sides.
		h := HexCoord{Q: HexNeighborDirections[4].Q * k, R: HexNeighborDirections[4].R * k}
		for side := 0; side < 6; side++ {
			for step := 0; step < k; step++ {
				out = append(out, h)
				d := HexNeighborDirections[side]
				h = HexCoord{Q: h.Q + d.Q, R: h.R + d.R}
			}
		}
	}
	return out
}

// Center converts the coordinate to a world-space point for hexes of the
// given circumradius (pointy-top layout).
func (h HexCoord) Center(size float64) geom.Point {
	return geom.Point{
		X: size * math.Sqrt(3) * (float64(h.Q) + float64(h.R)/2),
		Y: size * 1.5 * float64(h.R),
	}
}

// Corners returns the six vertices of a pointy-top hexagon, counter-clockwise.
func Corners(center geom.Point, size float64) geom.Polygon {
	poly := make(geom.Polygon, 6)
	for i := range poly {
		a := math.Pi / 180 * float64(60*i+30)
		poly[i] = geom.Point{X: center.X + size*math.Cos(a), Y: center.Y + size*math.Sin(a)}
	}
	return poly
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
