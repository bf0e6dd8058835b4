// Faction summaries: what each faction holds across territory, progression,
// routes, and diplomacy.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/frontline/internal/progression"
	"github.com/talgya/frontline/internal/social"
)

const factionReportEvery = 10 * time.Minute

// FactionSummary joins one faction's state across components.
type FactionSummary struct {
	ID                social.FactionID             `json:"id"`
	Name              string                       `json:"name"`
	Kind              string                       `json:"kind"`
	Territories       int                          `json:"territories"`
	Contested         int                          `json:"contested"`
	Progression       progression.Snapshot         `json:"progression"`
	ActiveRoutes      int                          `json:"active_routes"`
	RouteProfit       float64                      `json:"route_profit"`
	BalanceMultiplier float64                      `json:"balance_multiplier"`
	Relations         map[social.FactionID]float64 `json:"relations"`
}

// Factions summarizes every faction in id order.
func (c *Core) Factions() []FactionSummary {
	ids := c.Roster.IDs()
	index := make(map[social.FactionID]int, len(ids))
	out := make([]FactionSummary, len(ids))
	for i, id := range ids {
		f := c.Roster[id]
		out[i] = FactionSummary{
			ID:                id,
			Name:              f.Name,
			Kind:              f.Kind.String(),
			Progression:       c.Progression.Get(id),
			BalanceMultiplier: c.Analyst.Multiplier(id),
			Relations:         make(map[social.FactionID]float64),
		}
		index[id] = i
	}

	for _, t := range c.Territory.All() {
		i, ok := index[t.Controller]
		if !ok {
			continue
		}
		out[i].Territories++
		if t.Contested {
			out[i].Contested++
		}
	}
	for _, r := range c.Routes.All() {
		if i, ok := index[r.Faction]; ok && r.Active {
			out[i].ActiveRoutes++
			out[i].RouteProfit += r.Profitability
		}
	}
	for _, rel := range c.Trust.Relations() {
		if i, ok := index[rel.A]; ok {
			out[i].Relations[rel.B] = rel.Value
		}
		if i, ok := index[rel.B]; ok {
			out[i].Relations[rel.A] = rel.Value
		}
	}
	return out
}

// Faction returns one faction's summary.
func (c *Core) Faction(id social.FactionID) (FactionSummary, bool) {
	for _, f := range c.Factions() {
		if f.ID == id {
			return f, true
		}
	}
	return FactionSummary{}, false
}

// logFactions writes the periodic faction report.
func (c *Core) logFactions() {
	for _, f := range c.Factions() {
		slog.Info("faction update",
			"faction", f.Name,
			"territories", f.Territories,
			"tier", f.Progression.Tier,
			"reputation", fmt.Sprintf("%.1f", f.Progression.Reputation),
			"routes", f.ActiveRoutes,
			"balance", fmt.Sprintf("%.3f", f.BalanceMultiplier),
		)
	}
}
