// Package balance watches how territory, reputation, and convoy profit are
// spread across factions, raises alerts when they concentrate, and feeds
// corrective multipliers back into progression.
package balance

import (
	"github.com/talgya/frontline/internal/progression"
	"github.com/talgya/frontline/internal/routes"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// Sources are the read paths a cycle observes. Any may be nil.
type Sources struct {
	Territories interface{ All() []territory.Territory }
	Progression interface{ All() []progression.Snapshot }
	Routes      interface{ All() []routes.Route }
}

// FactionShare is one faction's holdings at observation time.
type FactionShare struct {
	Faction      social.FactionID `json:"faction"`
	Territories  int              `json:"territories"`
	Holdings     float64          `json:"holdings"` // Σ strategic_value × resource_multiplier
	Reputation   float64          `json:"reputation"`
	ActiveRoutes int              `json:"active_routes"`
	RouteProfit  float64          `json:"route_profit"`
}

// Snapshot is everything one cycle saw.
type Snapshot struct {
	Factions    []FactionShare `json:"factions"`
	Territories int            `json:"territories"`
	Contested   int            `json:"contested"`
	Neutral     int            `json:"neutral"`
}

// Observe collects per-faction holdings for every faction in ids, in that
// order. Factions outside ids are ignored.
func Observe(src Sources, ids []social.FactionID) *Snapshot {
	snap := &Snapshot{Factions: make([]FactionShare, len(ids))}
	index := make(map[social.FactionID]int, len(ids))
	for i, f := range ids {
		snap.Factions[i].Faction = f
		index[f] = i
	}

	if src.Territories != nil {
		for _, t := range src.Territories.All() {
			snap.Territories++
			if t.Contested {
				snap.Contested++
			}
			i, ok := index[t.Controller]
			if !ok {
				snap.Neutral++
				continue
			}
			snap.Factions[i].Territories++
			snap.Factions[i].Holdings += float64(t.StrategicValue) * t.ResourceMultiplier
		}
	}
	if src.Progression != nil {
		for _, p := range src.Progression.All() {
			if i, ok := index[p.Faction]; ok {
				snap.Factions[i].Reputation = p.Reputation
			}
		}
	}
	if src.Routes != nil {
		for _, r := range src.Routes.All() {
			i, ok := index[r.Faction]
			if !ok || !r.Active {
				continue
			}
			snap.Factions[i].ActiveRoutes++
			snap.Factions[i].RouteProfit += r.Profitability
		}
	}
	return snap
}
