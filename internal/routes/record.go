package routes

import (
	"sort"
	"time"

	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// Record is the persisted form of a route.
type Record struct {
	ID            string           `json:"id"`
	Path          []int            `json:"path"`
	Waypoints     [][3]float64     `json:"waypoints"`
	Distance      float64          `json:"distance"`
	Security      float64          `json:"security"`
	Profitability float64          `json:"profitability"`
	Faction       social.FactionID `json:"controlling_faction"`
	Active        bool             `json:"active"`
	LastValidated time.Time        `json:"last_validated"`
	Hash          string           `json:"hash"`
	Reason        string           `json:"reason,omitempty"`
	InactiveSince time.Time        `json:"inactive_since"`
	Request       Request          `json:"request"`
}

// Archive is everything the planner persists: routes and authored edges.
type Archive struct {
	Routes []Record `json:"routes"`
	Links  [][2]int `json:"links"`
}

// Dump returns the planner's records ordered by id.
func (p *Planner) Dump() Archive {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var a Archive
	for _, id := range p.sortedIDsLocked() {
		r := p.routes[id]
		rec := Record{
			ID:            r.ID,
			Path:          make([]int, len(r.Path)),
			Waypoints:     append([][3]float64(nil), r.Waypoints...),
			Distance:      r.Distance,
			Security:      r.Security,
			Profitability: r.Profitability,
			Faction:       r.Faction,
			Active:        r.Active,
			LastValidated: r.LastValidated,
			Hash:          r.Hash,
			Reason:        r.Reason,
			InactiveSince: r.InactiveSince,
			Request:       r.Request,
		}
		for i, t := range r.Path {
			rec.Path[i] = int(t)
		}
		a.Routes = append(a.Routes, rec)
	}
	for _, l := range p.g.links {
		if l.authored {
			a.Links = append(a.Links, [2]int{int(l.a), int(l.b)})
		}
	}
	sort.Slice(a.Links, func(i, j int) bool {
		if a.Links[i][0] != a.Links[j][0] {
			return a.Links[i][0] < a.Links[j][0]
		}
		return a.Links[i][1] < a.Links[j][1]
	})
	return a
}

// Load replaces every route and re-adds authored edges. No events are emitted.
func (p *Planner) Load(a Archive) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.routes = make(map[string]*Route, len(a.Routes))
	p.byHash = make(map[string]string, len(a.Routes))
	p.byFaction = make(map[social.FactionID]map[string]struct{})
	p.sweepFrom = ""

	for _, l := range a.Links {
		na, okA := p.g.nodes[territory.ID(l[0])]
		nb, okB := p.g.nodes[territory.ID(l[1])]
		if okA && okB {
			p.g.addLink(na.id, nb.id, distance(na, nb), true)
		}
	}
	for _, rec := range a.Routes {
		r := &Route{
			ID:            rec.ID,
			Hash:          rec.Hash,
			Request:       rec.Request,
			Path:          make([]territory.ID, len(rec.Path)),
			Waypoints:     append([][3]float64(nil), rec.Waypoints...),
			Distance:      rec.Distance,
			Security:      rec.Security,
			Profitability: rec.Profitability,
			Faction:       rec.Faction,
			Active:        rec.Active,
			Reason:        rec.Reason,
			LastValidated: rec.LastValidated,
			InactiveSince: rec.InactiveSince,
		}
		for i, t := range rec.Path {
			r.Path[i] = territory.ID(t)
		}
		p.registerLocked(r)
	}
}
