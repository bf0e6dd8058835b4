package world

import (
	"fmt"

	"github.com/talgya/frontline/internal/territory"
)

// Link is an authored connection between two territories that the automatic
// proximity rule would not produce (sea lanes between coastal outposts).
type Link struct {
	A territory.ID `json:"a"`
	B territory.ID `json:"b"`
}

// Map holds a generated world: its territories, the region grid index, and
// the authored links.
type Map struct {
	Radius      int                       `json:"radius"`
	Seed        int64                     `json:"seed"`
	Territories []territory.Territory     `json:"-"`
	Regions     map[HexCoord]territory.ID `json:"-"`
	Links       []Link                    `json:"links"`
}

// NewMap creates an empty map with the given region radius.
func NewMap(radius int, seed int64) *Map {
	return &Map{
		Radius:  radius,
		Seed:    seed,
		Regions: make(map[HexCoord]territory.ID),
	}
}

// Region returns the region id at the given coordinate.
func (m *Map) Region(coord HexCoord) (territory.ID, bool) {
	id, ok := m.Regions[coord]
	return id, ok
}

// InBounds returns true if the coordinate is within the map radius.
func (m *Map) InBounds(coord HexCoord) bool {
	return Distance(coord, HexCoord{}) <= m.Radius
}

// TypeCounts returns how many territories of each type were generated.
func (m *Map) TypeCounts() map[territory.Type]int {
	counts := make(map[territory.Type]int)
	for _, t := range m.Territories {
		counts[t.Type]++
	}
	return counts
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(radius=%d, regions=%d, territories=%d, links=%d)",
		m.Radius, len(m.Regions), len(m.Territories), len(m.Links))
}
