// Package routes plans and maintains convoy routes between territories for
// a faction, keeping them valid as territorial control shifts.
package routes

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/geom"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// ErrNoViablePath is returned for every request that does not produce a
// route. It is joined with the underlying kind.
var ErrNoViablePath = errors.New("no viable path")

// Invalidation reasons.
const (
	ReasonControlChanged = "control_changed"
	ReasonSecurity       = "security_below_threshold"
	ReasonDisconnected   = "path_disconnected"
	ReasonLostControl    = "direct_control_lost"
)

// Config holds planner tuning.
type Config struct {
	MaxRoutesPerFaction int           `yaml:"max_routes_per_faction"`
	UpdateFrequency     time.Duration `yaml:"route_update_frequency"`
	MinSecurity         float64       `yaml:"min_route_security_threshold"`
	SweepBudget         time.Duration `yaml:"route_sweep_budget"`
	RevalidateAfter     time.Duration `yaml:"route_revalidate_after"`
	EvictAfter          time.Duration `yaml:"route_evict_after"`
	ProfitBase          float64       `yaml:"route_profit_base"`
	DefaultMaxHops      int           `yaml:"default_max_hops"`
}

// DefaultConfig returns the standard planner tuning.
func DefaultConfig() Config {
	return Config{
		MaxRoutesPerFaction: 50,
		UpdateFrequency:     10 * time.Second,
		MinSecurity:         0.3,
		SweepBudget:         50 * time.Millisecond,
		RevalidateAfter:     30 * time.Second,
		EvictAfter:          5 * time.Minute,
		ProfitBase:          5.0,
		DefaultMaxHops:      8,
	}
}

// Request asks for a route between two territories.
type Request struct {
	Faction       social.FactionID `json:"faction"`
	Source        territory.ID     `json:"source_id"`
	Dest          territory.ID     `json:"dest_id"`
	MaxHops       int              `json:"max_hops"`
	MinSecurity   float64          `json:"min_security_threshold"`
	RequireDirect bool             `json:"require_direct_control"`
}

// Route is a validated supply path.
type Route struct {
	ID            string           `json:"id"`
	Hash          string           `json:"hash"`
	Request       Request          `json:"request"`
	Path          []territory.ID   `json:"path"`
	Waypoints     [][3]float64     `json:"waypoints"`
	Distance      float64          `json:"distance"`
	Security      float64          `json:"security"`
	Profitability float64          `json:"profitability"`
	Faction       social.FactionID `json:"controlling_faction"`
	Active        bool             `json:"active"`
	Reason        string           `json:"reason,omitempty"`
	LastValidated time.Time        `json:"last_validated"`
	InactiveSince time.Time        `json:"inactive_since"`
}

func (r *Route) clone() Route {
	c := *r
	c.Path = append([]territory.ID(nil), r.Path...)
	c.Waypoints = append([][3]float64(nil), r.Waypoints...)
	return c
}

func (r *Route) passes(id territory.ID) bool {
	for _, p := range r.Path {
		if p == id {
			return true
		}
	}
	return false
}

// SupplyAccess reports whether a faction may route through friendly
// territory it does not directly control.
type SupplyAccess interface {
	HasSupplyAccess(f social.FactionID) bool
}

// Planner owns the connection graph and every route.
type Planner struct {
	Now    func() time.Time
	Access SupplyAccess // optional; factions without access route only through held ground

	cfg Config
	out *events.Serial
	bus *events.Bus
	sub []events.SubID

	mu        sync.RWMutex
	g         *graph
	routes    map[string]*Route
	byHash    map[string]string
	byFaction map[social.FactionID]map[string]struct{}
	sweepFrom string
}

// New builds the planner's graph from the bootstrap territories and
// subscribes it to territorial events on bus.
func New(cfg Config, bus *events.Bus, ts []territory.Territory) *Planner {
	p := &Planner{
		Now:       time.Now,
		cfg:       cfg,
		out:       events.NewSerial(bus),
		bus:       bus,
		g:         newGraph(ts),
		routes:    make(map[string]*Route),
		byHash:    make(map[string]string),
		byFaction: make(map[social.FactionID]map[string]struct{}),
	}
	if bus != nil {
		p.sub = append(p.sub,
			bus.Subscribe(events.TopicControlChanged, p.onControlChanged),
			bus.Subscribe(events.TopicContested, p.onContested),
		)
	}
	slog.Info("route graph built", "territories", len(p.g.nodes), "edges", len(p.g.links))
	return p
}

// Close unsubscribes the planner from the bus.
func (p *Planner) Close() {
	for _, id := range p.sub {
		p.bus.Unsubscribe(id)
	}
	p.sub = nil
}

func (p *Planner) now() time.Time {
	return p.Now().UTC()
}

// Connect adds an authored edge between two territories.
func (p *Planner) Connect(a, b territory.ID) error {
	if a == b {
		return fmt.Errorf("connect %d to itself: %w", a, fault.ErrInvalidTransition)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	na, ok := p.g.nodes[a]
	if !ok {
		return fmt.Errorf("connect %d-%d: territory %d: %w", a, b, a, fault.ErrNotFound)
	}
	nb, ok := p.g.nodes[b]
	if !ok {
		return fmt.Errorf("connect %d-%d: territory %d: %w", a, b, b, fault.ErrNotFound)
	}
	p.g.addLink(a, b, geom.Dist(na.center, nb.center), true)
	return nil
}

// Edges returns the number of edges in the connection graph.
func (p *Planner) Edges() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.g.links)
}

// EdgeSecurity returns the current security of the edge between a and b.
func (p *Planner) EdgeSecurity(a, b territory.ID) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	l, ok := p.g.link(a, b)
	if !ok {
		return 0, false
	}
	return l.security, true
}

// Get returns a copy of a route.
func (p *Planner) Get(id string) (Route, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.routes[id]
	if !ok {
		return Route{}, false
	}
	return r.clone(), true
}

// All returns copies of every route ordered by id.
func (p *Planner) All() []Route {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Route, 0, len(p.routes))
	for _, id := range p.sortedIDsLocked() {
		out = append(out, p.routes[id].clone())
	}
	return out
}

// RoutesFor returns copies of the faction's routes ordered by id.
func (p *Planner) RoutesFor(f social.FactionID) []Route {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Route
	for _, id := range p.factionIDsLocked(f) {
		out = append(out, p.routes[id].clone())
	}
	return out
}

func (p *Planner) sortedIDsLocked() []string {
	ids := make([]string, 0, len(p.routes))
	for id := range p.routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Planner) factionIDsLocked(f social.FactionID) []string {
	ids := make([]string, 0, len(p.byFaction[f]))
	for id := range p.byFaction[f] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Planner) activeLocked(f social.FactionID) (n int, profit float64) {
	for id := range p.byFaction[f] {
		if r := p.routes[id]; r.Active {
			n++
			profit += r.Profitability
		}
	}
	return n, profit
}

func (p *Planner) summaryLocked(f social.FactionID) events.RoutesUpdated {
	n, profit := p.activeLocked(f)
	return events.RoutesUpdated{Faction: f, Active: n, TotalProfit: profit}
}

func (p *Planner) normalize(req Request) Request {
	if req.MaxHops <= 0 {
		req.MaxHops = p.cfg.DefaultMaxHops
	}
	if req.MinSecurity <= 0 {
		req.MinSecurity = p.cfg.MinSecurity
	}
	return req
}

// routeHash identifies (faction, source, dest, require_direct) for dedup.
func routeHash(req Request) string {
	var buf [25]byte
	binary.BigEndian.PutUint64(buf[0:], uint64(req.Faction))
	binary.BigEndian.PutUint64(buf[8:], uint64(req.Source))
	binary.BigEndian.PutUint64(buf[16:], uint64(req.Dest))
	if req.RequireDirect {
		buf[24] = 1
	}
	sum := blake3.Sum256(buf[:])
	return hex.EncodeToString(sum[:])
}

// routeID derives a stable id from every request parameter.
func routeID(req Request) string {
	var buf [41]byte
	binary.BigEndian.PutUint64(buf[0:], uint64(req.Faction))
	binary.BigEndian.PutUint64(buf[8:], uint64(req.Source))
	binary.BigEndian.PutUint64(buf[16:], uint64(req.Dest))
	binary.BigEndian.PutUint64(buf[24:], uint64(req.MaxHops))
	binary.BigEndian.PutUint64(buf[32:], math.Float64bits(req.MinSecurity))
	if req.RequireDirect {
		buf[40] = 1
	}
	sum := blake3.Sum256(buf[:])
	return "route-" + hex.EncodeToString(sum[:8])
}

// planLocked runs the pathfinder and builds an unregistered route.
func (p *Planner) planLocked(req Request, now time.Time) (*Route, error) {
	if _, ok := p.g.nodes[req.Source]; !ok {
		return nil, errors.Join(ErrNoViablePath, fmt.Errorf("source %d: %w", req.Source, fault.ErrNotFound))
	}
	if _, ok := p.g.nodes[req.Dest]; !ok {
		return nil, errors.Join(ErrNoViablePath, fmt.Errorf("destination %d: %w", req.Dest, fault.ErrNotFound))
	}
	path, ok := p.g.findPath(req.Source, req.Dest, req.Faction, req.MaxHops, req.RequireDirect)
	if !ok {
		return nil, errors.Join(ErrNoViablePath, fmt.Errorf("%d to %d within %d hops: %w",
			req.Source, req.Dest, req.MaxHops, fault.ErrNotFound))
	}
	sec, _ := p.g.pathSecurity(path)
	if sec < req.MinSecurity {
		return nil, errors.Join(ErrNoViablePath, fmt.Errorf("security %.2f below %.2f: %w",
			sec, req.MinSecurity, fault.ErrThresholdViolation))
	}

	dist := p.g.pathDistance(path)
	r := &Route{
		Hash:          routeHash(req),
		Request:       req,
		Path:          path,
		Distance:      dist,
		Security:      sec,
		Profitability: p.g.profitability(path, dist, sec, p.cfg.ProfitBase),
		Faction:       req.Faction,
		Active:        true,
		LastValidated: now,
	}
	r.Waypoints = make([][3]float64, len(path))
	for i, id := range path {
		c := p.g.nodes[id].center
		r.Waypoints[i] = [3]float64{c.X, c.Y, 0}
	}
	return r, nil
}

func (p *Planner) registerLocked(r *Route) {
	p.routes[r.ID] = r
	p.byHash[r.Hash] = r.ID
	set, ok := p.byFaction[r.Faction]
	if !ok {
		set = make(map[string]struct{})
		p.byFaction[r.Faction] = set
	}
	set[r.ID] = struct{}{}
}

func (p *Planner) removeLocked(id string) {
	r, ok := p.routes[id]
	if !ok {
		return
	}
	delete(p.routes, id)
	if p.byHash[r.Hash] == id {
		delete(p.byHash, r.Hash)
	}
	delete(p.byFaction[r.Faction], id)
	if len(p.byFaction[r.Faction]) == 0 {
		delete(p.byFaction, r.Faction)
	}
}

// RequestRoute returns the id of a route satisfying req. An active route with
// the same hash is reused. Failures return ErrNoViablePath and register
// nothing.
func (p *Planner) RequestRoute(req Request) (string, error) {
	if req.Faction == social.Neutral || req.Source == req.Dest {
		err := errors.Join(ErrNoViablePath, fmt.Errorf("route %d to %d for faction %d: %w",
			req.Source, req.Dest, req.Faction, fault.ErrInvalidTransition))
		fault.Log("route rejected", err)
		return "", err
	}
	req = p.normalize(req)
	if p.Access != nil && !p.Access.HasSupplyAccess(req.Faction) {
		req.RequireDirect = true
	}

	var (
		id  string
		err error
	)
	p.out.Do(func() []events.Event {
		p.mu.Lock()
		defer p.mu.Unlock()
		now := p.now()

		hash := routeHash(req)
		prev, known := p.routes[p.byHash[hash]]
		if known && prev.Active {
			id = prev.ID
			return nil
		}
		if n, _ := p.activeLocked(req.Faction); n >= p.cfg.MaxRoutesPerFaction {
			err = errors.Join(ErrNoViablePath, fmt.Errorf("faction %d holds %d routes: %w",
				req.Faction, n, fault.ErrOverLimit))
			return []events.Event{events.RouteGenerated{Faction: req.Faction}}
		}

		r, perr := p.planLocked(req, now)
		if perr != nil {
			err = perr
			return []events.Event{events.RouteGenerated{Faction: req.Faction}}
		}
		r.ID = routeID(req)
		if known {
			// Reuse the id of the inactive route this request replaces.
			r.ID = prev.ID
			p.removeLocked(prev.ID)
		}
		p.registerLocked(r)
		id = r.ID

		slog.Info("route generated",
			"route", r.ID,
			"faction", r.Faction,
			"hops", len(r.Path)-1,
			"security", fmt.Sprintf("%.3f", r.Security),
			"profitability", fmt.Sprintf("%.3f", r.Profitability),
		)
		return []events.Event{
			events.RouteGenerated{Route: r.ID, Faction: r.Faction, Success: true},
			p.summaryLocked(r.Faction),
		}
	})
	if err != nil {
		fault.Log("route not generated", err, "faction", req.Faction, "source", req.Source, "dest", req.Dest)
	}
	return id, err
}

func (p *Planner) deactivateLocked(r *Route, reason string, now time.Time) events.Event {
	r.Active = false
	r.Reason = reason
	r.InactiveSince = now
	slog.Info("route invalidated", "route", r.ID, "faction", r.Faction, "reason", reason)
	return events.RouteInvalidated{Route: r.ID, Reason: reason}
}

// regenerateLocked replans every inactive route of f. Only routes that
// become active again are counted.
func (p *Planner) regenerateLocked(f social.FactionID, now time.Time) ([]events.Event, int) {
	var (
		evs   []events.Event
		fresh int
	)
	for _, id := range p.factionIDsLocked(f) {
		old := p.routes[id]
		if old.Active {
			continue
		}
		if n, _ := p.activeLocked(f); n >= p.cfg.MaxRoutesPerFaction {
			break
		}
		r, err := p.planLocked(old.Request, now)
		if err != nil {
			evs = append(evs, events.RouteGenerated{Route: id, Faction: f})
			continue
		}
		r.ID = id
		p.routes[id] = r
		fresh++
		evs = append(evs, events.RouteGenerated{Route: id, Faction: f, Success: true})
	}
	return append(evs, p.summaryLocked(f)), fresh
}

// Regenerate replans the faction's inactive routes and returns how many
// became active.
func (p *Planner) Regenerate(f social.FactionID) int {
	var n int
	p.out.Do(func() []events.Event {
		p.mu.Lock()
		defer p.mu.Unlock()
		var evs []events.Event
		evs, n = p.regenerateLocked(f, p.now())
		return evs
	})
	return n
}

func (p *Planner) onControlChanged(ev events.Event) {
	cc, ok := ev.(events.ControlChanged)
	if !ok {
		return
	}
	id := territory.ID(cc.Territory)
	p.out.Do(func() []events.Event {
		p.mu.Lock()
		defer p.mu.Unlock()
		n, ok := p.g.nodes[id]
		if !ok {
			return nil
		}
		now := p.now()
		n.controller = cc.New
		p.g.refresh(id)

		var evs []events.Event
		for _, rid := range p.sortedIDsLocked() {
			r := p.routes[rid]
			if r.Active && r.passes(id) {
				evs = append(evs, p.deactivateLocked(r, ReasonControlChanged, now))
			}
		}
		for _, f := range []social.FactionID{cc.Old, cc.New} {
			if f == social.Neutral {
				continue
			}
			revs, fresh := p.regenerateLocked(f, now)
			evs = append(evs, revs...)
			if fresh > 0 {
				slog.Info("routes regenerated", "faction", f, "count", fresh)
			}
		}
		return evs
	})
}

func (p *Planner) onContested(ev events.Event) {
	c, ok := ev.(events.Contested)
	if !ok {
		return
	}
	id := territory.ID(c.Territory)
	p.out.Do(func() []events.Event {
		p.mu.Lock()
		defer p.mu.Unlock()
		n, ok := p.g.nodes[id]
		if !ok {
			return nil
		}
		now := p.now()
		n.contested = c.Contested
		p.g.refresh(id)

		var evs []events.Event
		touched := make(map[social.FactionID]bool)
		for _, rid := range p.sortedIDsLocked() {
			r := p.routes[rid]
			if !r.Active || !r.passes(id) {
				continue
			}
			sec, _ := p.g.pathSecurity(r.Path)
			r.Security = sec
			r.Profitability = p.g.profitability(r.Path, r.Distance, sec, p.cfg.ProfitBase)
			touched[r.Faction] = true
			if sec < r.Request.MinSecurity {
				evs = append(evs, p.deactivateLocked(r, ReasonSecurity, now))
			}
		}
		for _, f := range sortedFactions(touched) {
			evs = append(evs, p.summaryLocked(f))
		}
		return evs
	})
}

func sortedFactions(set map[social.FactionID]bool) []social.FactionID {
	out := make([]social.FactionID, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// revalidateLocked checks one active route against the current graph and
// returns the invalidation reason, or "" when it still holds.
func (p *Planner) revalidateLocked(r *Route) string {
	sec, ok := p.g.pathSecurity(r.Path)
	if !ok {
		return ReasonDisconnected
	}
	r.Security = sec
	r.Profitability = p.g.profitability(r.Path, r.Distance, sec, p.cfg.ProfitBase)
	if r.Request.RequireDirect {
		for _, id := range r.Path {
			if p.g.nodes[id].controller != r.Faction {
				return ReasonLostControl
			}
		}
	}
	if sec < r.Request.MinSecurity {
		return ReasonSecurity
	}
	return ""
}

// Sweep revalidates routes not checked within RevalidateAfter and evicts
// routes inactive for longer than EvictAfter. It stops between routes once
// the budget is spent and resumes from there on the next call.
func (p *Planner) Sweep() {
	start := time.Now()
	var stopped bool
	var checked, evicted int
	p.out.Do(func() []events.Event {
		p.mu.Lock()
		defer p.mu.Unlock()
		now := p.now()
		p.g.refreshAll()

		ids := p.sortedIDsLocked()
		from := sort.SearchStrings(ids, p.sweepFrom)
		order := append(ids[from:len(ids):len(ids)], ids[:from]...)

		var evs []events.Event
		touched := make(map[social.FactionID]bool)
		p.sweepFrom = ""
		for _, id := range order {
			if time.Since(start) > p.cfg.SweepBudget {
				p.sweepFrom = id
				stopped = true
				break
			}
			r := p.routes[id]
			switch {
			case !r.Active && now.Sub(r.InactiveSince) > p.cfg.EvictAfter:
				p.removeLocked(id)
				evicted++
			case r.Active && now.Sub(r.LastValidated) >= p.cfg.RevalidateAfter:
				checked++
				if reason := p.revalidateLocked(r); reason != "" {
					evs = append(evs, p.deactivateLocked(r, reason, now))
					touched[r.Faction] = true
				} else {
					r.LastValidated = now
				}
			}
		}
		for _, f := range sortedFactions(touched) {
			evs = append(evs, p.summaryLocked(f))
		}
		return evs
	})

	if stopped {
		fault.Log("route sweep deferred",
			fmt.Errorf("budget %s spent: %w", p.cfg.SweepBudget, fault.ErrStale),
			"checked", checked, "evicted", evicted)
	}
	if evicted > 0 {
		slog.Info("routes evicted", "count", evicted)
	}
}

// Sync refreshes node state from a territorial snapshot, as after a restore.
func (p *Planner) Sync(ts []territory.Territory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range ts {
		if _, ok := p.g.nodes[ts[i].ID]; ok {
			p.g.upsert(&ts[i])
		}
	}
	p.g.refreshAll()
}
