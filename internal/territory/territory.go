// Package territory is the sole authority for territory membership, faction
// influence, controller identity, contested status and spatial queries.
package territory

import (
	"time"

	"github.com/talgya/frontline/internal/geom"
	"github.com/talgya/frontline/internal/social"
)

// ID uniquely identifies a territory. Valid ids are positive.
type ID int

// Type tags what a territory is used for.
type Type uint8

const (
	TypeRegion Type = iota
	TypeDistrict
	TypeZone
	TypeOutpost
	TypeMilitary
	TypeIndustrial
	TypeResearch
	TypeEconomic
)

var typeNames = [...]string{"region", "district", "zone", "outpost", "military", "industrial", "research", "economic"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// ParseType converts a type tag back to a Type.
func ParseType(s string) (Type, bool) {
	for i, n := range typeNames {
		if n == s {
			return Type(i), true
		}
	}
	return TypeRegion, false
}

// Trend records the direction of the most recent influence change.
type Trend uint8

const (
	TrendStable Trend = iota
	TrendGrowing
	TrendDeclining
)

var trendNames = [...]string{"stable", "growing", "declining"}

func (t Trend) String() string {
	if int(t) < len(trendNames) {
		return trendNames[t]
	}
	return "stable"
}

func parseTrend(s string) Trend {
	for i, n := range trendNames {
		if n == s {
			return Trend(i)
		}
	}
	return TrendStable
}

// Influence is one faction's standing in one territory.
type Influence struct {
	Faction       social.FactionID
	Level         float64 // [0, 100]
	ControlPoints int
	LastAction    time.Time
	Trend         Trend
}

// Bounds is the territory's spatial footprint.
type Bounds struct {
	Polygon geom.Polygon
	Center  geom.Point
	Radius  float64 // influence radius
}

// Territory is a spatial region with at most one controller.
type Territory struct {
	ID                 ID
	Name               string
	Type               Type
	ParentID           ID // 0 = root of the forest
	Bounds             Bounds
	Controller         social.FactionID
	Contested          bool
	StrategicValue     int     // [1, 10]
	ResourceMultiplier float64 // > 0
	Influences         []Influence
	LastContestedTime  time.Time
}

// Clone returns a deep copy safe to hand outside the state's lock.
func (t *Territory) Clone() Territory {
	c := *t
	c.Bounds.Polygon = append(geom.Polygon(nil), t.Bounds.Polygon...)
	c.Influences = append([]Influence(nil), t.Influences...)
	return c
}

// InfluenceOf returns a faction's influence level (0 when absent).
func (t *Territory) InfluenceOf(f social.FactionID) float64 {
	for _, in := range t.Influences {
		if in.Faction == f {
			return in.Level
		}
	}
	return 0
}

// countAtLeast returns how many factions hold at least level.
func (t *Territory) countAtLeast(level float64) int {
	n := 0
	for _, in := range t.Influences {
		if in.Level >= level {
			n++
		}
	}
	return n
}

// leader returns the faction with the highest influence and whether it is
// the unique maximum.
func (t *Territory) leader() (social.FactionID, float64, bool) {
	var best social.FactionID
	bestLevel := -1.0
	unique := false
	for _, in := range t.Influences {
		switch {
		case in.Level > bestLevel:
			best, bestLevel, unique = in.Faction, in.Level, true
		case in.Level == bestLevel:
			unique = false
		}
	}
	if bestLevel < 0 {
		return social.Neutral, 0, false
	}
	return best, bestLevel, unique
}

func (t *Territory) row(f social.FactionID) *Influence {
	for i := range t.Influences {
		if t.Influences[i].Faction == f {
			return &t.Influences[i]
		}
	}
	return nil
}
