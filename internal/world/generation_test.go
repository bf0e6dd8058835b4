package world

import (
	"reflect"
	"testing"

	"github.com/talgya/frontline/internal/territory"
)

func TestSpiral(t *testing.T) {
	coords := Spiral(2)
	if len(coords) != 19 {
		t.Fatalf("radius 2 spiral: got %d coords want 19", len(coords))
	}
	seen := make(map[HexCoord]bool)
	for i, c := range coords {
		if seen[c] {
			t.Fatalf("duplicate coordinate %+v", c)
		}
		seen[c] = true
		if Distance(c, HexCoord{}) > 2 {
			t.Fatalf("coordinate %+v outside radius", c)
		}
		if i > 0 && Distance(c, HexCoord{}) < Distance(coords[i-1], HexCoord{}) {
			t.Fatalf("ring order broken at %d", i)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(SmallTestConfig())
	b := Generate(SmallTestConfig())
	if !reflect.DeepEqual(a.Territories, b.Territories) {
		t.Fatal("same seed produced different territories")
	}
	if !reflect.DeepEqual(a.Links, b.Links) {
		t.Fatal("same seed produced different links")
	}
}

func TestGenerateShape(t *testing.T) {
	m := Generate(SmallTestConfig())

	// Sea level zero keeps every region and site on land.
	if got := len(m.Regions); got != 7 {
		t.Fatalf("regions: got %d want 7", got)
	}
	if got := len(m.Territories); got != 7*8 {
		t.Fatalf("territories: got %d want %d", got, 7*8)
	}

	byID := make(map[territory.ID]territory.Territory)
	for i, tt := range m.Territories {
		if tt.ID != territory.ID(i+1) {
			t.Fatalf("ids must be sequential: index %d has id %d", i, tt.ID)
		}
		byID[tt.ID] = tt
	}

	for _, tt := range m.Territories {
		if tt.StrategicValue < 1 || tt.StrategicValue > 10 {
			t.Fatalf("%s: strategic value %d out of range", tt.Name, tt.StrategicValue)
		}
		if tt.ResourceMultiplier <= 0 {
			t.Fatalf("%s: resource multiplier %v", tt.Name, tt.ResourceMultiplier)
		}
		if tt.Type == territory.TypeRegion {
			if tt.ParentID != 0 {
				t.Fatalf("region %s has a parent", tt.Name)
			}
			continue
		}
		parent, ok := byID[tt.ParentID]
		if !ok || parent.Type != territory.TypeRegion {
			t.Fatalf("%s: parent %d is not a region", tt.Name, tt.ParentID)
		}
		for _, v := range tt.Bounds.Polygon {
			if !parent.Bounds.Polygon.Contains(v) {
				t.Fatalf("%s: vertex %+v escapes region %s", tt.Name, v, parent.Name)
			}
		}
	}
}

func TestGeneratedSitesResolveToMostSpecific(t *testing.T) {
	m := Generate(SmallTestConfig())
	s := territory.New(territory.DefaultConfig(), nil, m.Territories)

	for _, tt := range m.Territories {
		if tt.Type == territory.TypeRegion {
			continue
		}
		if id, ok := s.TerritoryAt(tt.Bounds.Center); !ok || id != tt.ID {
			t.Fatalf("%s: center resolved to %d, want %d", tt.Name, id, tt.ID)
		}
	}
}

func TestStrategicValueClamp(t *testing.T) {
	if v := strategicValue(territory.TypeMilitary, 1.0); v != 10 {
		t.Fatalf("high military: got %d want 10", v)
	}
	if v := strategicValue(territory.TypeZone, 0); v != 1 {
		t.Fatalf("flat zone: got %d want 1", v)
	}
}
