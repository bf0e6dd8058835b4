package engine

import (
	"time"

	"github.com/talgya/frontline/internal/balance"
	"github.com/talgya/frontline/internal/progression"
	"github.com/talgya/frontline/internal/routes"
	"github.com/talgya/frontline/internal/siege"
	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/trust"
	"github.com/talgya/frontline/internal/world"
)

// SnapshotVersion is bumped whenever a record schema changes incompatibly.
const SnapshotVersion = 1

// Snapshot aggregates every component's persisted record.
type Snapshot struct {
	Version     int                     `json:"version"`
	TakenAt     time.Time               `json:"taken_at"`
	Seed        int64                   `json:"seed"`
	Radius      int                     `json:"radius"`
	Links       []world.Link            `json:"links"`
	Territories []territory.Record      `json:"territories"`
	Progression progression.Archive     `json:"progression"`
	Routes      routes.Archive          `json:"routes"`
	Trust       trust.Archive           `json:"trust"`
	Sieges      []siege.Record          `json:"sieges"`
	Balance     balance.Archive         `json:"balance"`
	Integrity   balance.IntegrityRecord `json:"integrity"`
	Events      []Event                 `json:"events"`
}

// World rebuilds the map a snapshot was taken from. The hex region index is
// not persisted.
func (s *Snapshot) World() *world.Map {
	m := world.NewMap(s.Radius, s.Seed)
	m.Territories = make([]territory.Territory, len(s.Territories))
	for i, r := range s.Territories {
		m.Territories[i] = territory.FromRecord(r)
	}
	m.Links = append([]world.Link(nil), s.Links...)
	return m
}

// Snapshot dumps every component. Components are read one after another, so
// the result is only exact on a quiescent core.
func (c *Core) Snapshot() *Snapshot {
	return &Snapshot{
		Version:     SnapshotVersion,
		TakenAt:     c.now(),
		Seed:        c.Map.Seed,
		Radius:      c.Map.Radius,
		Links:       append([]world.Link(nil), c.Map.Links...),
		Territories: c.Territory.Dump(),
		Progression: c.Progression.Dump(),
		Routes:      c.Routes.Dump(),
		Trust:       c.Trust.Dump(),
		Sieges:      c.Sieges.Dump(),
		Balance:     c.Analyst.Dump(),
		Integrity:   c.Integrity.Dump(),
		Events:      c.feed.all(),
	}
}

// Restore loads a snapshot into every component without emitting events.
func (c *Core) Restore(s *Snapshot) {
	c.Territory.Load(s.Territories)
	c.Routes.Sync(c.Territory.All())
	c.Routes.Load(s.Routes)
	c.Progression.Load(s.Progression)
	c.Trust.Load(s.Trust)
	c.Sieges.Load(s.Sieges)
	c.Analyst.Load(s.Balance)
	c.Integrity.Load(s.Integrity)
	c.feed.load(s.Events)
}
