package geom

import (
	"math"
	"testing"
)

func square() Polygon {
	return Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
}

func TestContains(t *testing.T) {
	sq := square()
	cases := []struct {
		p    Point
		want bool
	}{
		{Point{5, 5}, true},
		{Point{0.1, 9.9}, true},
		{Point{-1, 5}, false},
		{Point{11, 5}, false},
		{Point{5, 10.5}, false},
		// Ray through a horizontal edge's height must not flip parity twice.
		{Point{5, 0}, true},
	}
	for _, c := range cases {
		if got := sq.Contains(c.p); got != c.want {
			t.Fatalf("Contains(%v): got %v want %v", c.p, got, c.want)
		}
	}
}

func TestContains_Degenerate(t *testing.T) {
	if (Polygon{{0, 0}, {1, 1}}).Contains(Point{0.5, 0.5}) {
		t.Fatal("two-vertex polygon should contain nothing")
	}
}

func TestClosestOnSegment_Clamps(t *testing.T) {
	a, b := Point{0, 0}, Point{10, 0}
	if got := ClosestOnSegment(Point{-5, 3}, a, b); got != a {
		t.Fatalf("before start: got %v want %v", got, a)
	}
	if got := ClosestOnSegment(Point{15, 3}, a, b); got != b {
		t.Fatalf("past end: got %v want %v", got, b)
	}
	if got := ClosestOnSegment(Point{4, 3}, a, b); got != (Point{4, 0}) {
		t.Fatalf("middle: got %v", got)
	}
}

func TestDistanceToBorder(t *testing.T) {
	sq := square()
	if d := sq.DistanceToBorder(Point{5, 2}); math.Abs(d-2) > 1e-12 {
		t.Fatalf("inside distance: got %v want 2", d)
	}
	if d := sq.DistanceToBorder(Point{13, 14}); math.Abs(d-5) > 1e-12 {
		t.Fatalf("corner distance: got %v want 5", d)
	}
	if got := sq.ClosestPoint(Point{13, 14}); got != (Point{10, 10}) {
		t.Fatalf("closest corner: got %v", got)
	}
}

func TestCentroid(t *testing.T) {
	c := square().Centroid()
	if math.Abs(c.X-5) > 1e-12 || math.Abs(c.Y-5) > 1e-12 {
		t.Fatalf("centroid: got %v want (5,5)", c)
	}
}
