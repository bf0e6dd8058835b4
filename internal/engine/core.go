package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/frontline/internal/balance"
	"github.com/talgya/frontline/internal/config"
	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/progression"
	"github.com/talgya/frontline/internal/routes"
	"github.com/talgya/frontline/internal/siege"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/trust"
	"github.com/talgya/frontline/internal/world"
)

// Persister stores snapshots. Submit must not block the caller.
type Persister interface {
	Submit(snap *Snapshot) bool
	Flush(ctx context.Context, snap *Snapshot) error
}

// Core holds every simulation component and wires them together.
type Core struct {
	Bus         *events.Bus
	Roster      social.Roster
	Map         *world.Map
	Territory   *territory.State
	Progression *progression.Engine
	Routes      *routes.Planner
	Trust       *trust.Ledger
	Sieges      *siege.Manager
	Integrity   *balance.Integrity
	Analyst     *balance.Analyst
	Persister   Persister // optional

	cfg     config.Config
	nowFn   func() time.Time
	started time.Time
	feed    *feed
	feedSub events.SubID
}

// New builds the core over a generated or restored map. Components are
// created in dependency order: territory first, consumers after.
func New(cfg config.Config, m *world.Map) *Core {
	bus := events.NewBus()
	c := &Core{
		Bus:    bus,
		Roster: social.NewRoster(social.SeedFactions()),
		Map:    m,
		cfg:    cfg,
		nowFn:  time.Now,
		feed:   newFeed(maxFeed),
	}
	c.started = c.now()
	// The feed subscribes first so it sees every batch in publish order.
	c.feedSub = bus.SubscribeAll(c.record)

	c.Territory = territory.New(cfg.Territory, bus, m.Territories)

	c.Routes = routes.New(cfg.Routes, bus, m.Territories)
	for _, l := range m.Links {
		if err := c.Routes.Connect(l.A, l.B); err != nil {
			fault.Log("authored link skipped", err, "a", l.A, "b", l.B)
		}
	}

	c.Progression = progression.New(cfg.Progression, bus, c.Territory, c.Roster)
	c.Territory.Rates = c.Progression
	c.Routes.Access = c.Progression

	c.Trust = trust.New(cfg.Trust, bus)
	c.Trust.Territories = c.Territory
	c.Trust.Seed(social.SeedRelations())

	c.Sieges = siege.New(cfg.Siege, bus)
	c.Sieges.Trust = c.Trust
	c.Sieges.Progression = c.Progression
	c.Sieges.Territory = c.Territory

	c.Integrity = balance.NewIntegrity(cfg.Analytics, bus)
	c.Analyst = balance.New(cfg.Analytics, balance.Sources{
		Territories: c.Territory,
		Progression: c.Progression,
		Routes:      c.Routes,
	}, c.Roster.IDs())
	c.Analyst.Tuner = c.Progression
	c.Analyst.Integrity = c.Integrity

	slog.Info("core initialized",
		"territories", c.Territory.Len(),
		"edges", c.Routes.Edges(),
		"factions", len(c.Roster),
	)
	return c
}

// Config returns the configuration the core was built with.
func (c *Core) Config() config.Config {
	return c.cfg
}

// SetClock points every component at now.
func (c *Core) SetClock(now func() time.Time) {
	c.nowFn = now
	c.Territory.Now = now
	c.Routes.Now = now
	c.Progression.Now = now
	c.Trust.Now = now
	c.Sieges.Now = now
	c.Integrity.Now = now
	c.Analyst.Now = now
}

func (c *Core) now() time.Time {
	return c.nowFn().UTC()
}

// Schedule registers the core's periodic work on s.
func (c *Core) Schedule(s *Scheduler) {
	s.Add("progression", c.cfg.Progression.BatchInterval, c.cfg.Progression.Budget, func(time.Duration) {
		c.Progression.Tick()
	})
	s.Add("routes", c.cfg.Routes.UpdateFrequency, c.cfg.Routes.SweepBudget, func(time.Duration) {
		c.Routes.Sweep()
	})
	s.Add("trust", c.cfg.Trust.DecayInterval, 0, func(dt time.Duration) {
		c.Trust.Tick(dt)
	})
	s.Add("sieges", time.Second, 0, func(time.Duration) {
		if n := c.Sieges.Tick(); n > 0 {
			slog.Info("sieges disposed", "count", n)
		}
	})
	s.Add("analytics", c.cfg.Analytics.Interval, 0, func(time.Duration) {
		c.Analyst.Cycle()
	})
	s.Add("factions", factionReportEvery, 0, func(time.Duration) {
		c.logFactions()
	})
	s.Add("autosave", c.cfg.Persistence.AutosaveInterval, 0, func(time.Duration) {
		c.Autosave()
	})
}

// Autosave hands a snapshot to the persister without waiting for it.
func (c *Core) Autosave() bool {
	if c.Persister == nil {
		slog.Debug("autosave skipped", "error", fmt.Errorf("persister: %w", fault.ErrUnavailable))
		return false
	}
	snap := c.Snapshot()
	if !c.Persister.Submit(snap) {
		slog.Warn("autosave dropped, previous save still pending")
		return false
	}
	return true
}

// Shutdown detaches the core's subscribers and flushes a final snapshot.
func (c *Core) Shutdown(ctx context.Context) error {
	c.Integrity.Close()
	c.Routes.Close()

	var err error
	if c.Persister != nil {
		snap := c.Snapshot()
		if err = c.Persister.Flush(ctx, snap); err != nil {
			err = fmt.Errorf("final save: %w", err)
		}
	}
	c.Bus.Unsubscribe(c.feedSub)
	slog.Info("core shut down", "uptime", humanize.RelTime(c.started, c.now(), "", ""))
	return err
}

// Stats tracks aggregate core statistics.
type Stats struct {
	Territories  int     `json:"territories"`
	Contested    int     `json:"contested"`
	Neutral      int     `json:"neutral"`
	Edges        int     `json:"edges"`
	Routes       int     `json:"routes"`
	ActiveRoutes int     `json:"active_routes"`
	Sieges       int     `json:"sieges"`
	TrustPairs   int     `json:"trust_pairs"`
	Integrity    float64 `json:"integrity"`
	Emergency    bool    `json:"emergency"`
	Events       uint64  `json:"events"`
	Uptime       string  `json:"uptime"`
}

// Stats computes the current statistics.
func (c *Core) Stats() Stats {
	var st Stats
	for _, t := range c.Territory.All() {
		st.Territories++
		if t.Contested {
			st.Contested++
		}
		if t.Controller == social.Neutral {
			st.Neutral++
		}
	}
	for _, r := range c.Routes.All() {
		st.Routes++
		if r.Active {
			st.ActiveRoutes++
		}
	}
	st.Edges = c.Routes.Edges()
	st.Sieges = c.Sieges.Len()
	st.TrustPairs = len(c.Trust.Records())
	st.Integrity = c.Integrity.Value()
	st.Emergency = c.Analyst.Emergency()
	st.Events = c.feed.seq()
	st.Uptime = c.now().Sub(c.started).Round(time.Second).String()
	return st
}

// Event is a published bus event as kept in the recent-event feed.
type Event struct {
	Seq     uint64          `json:"seq"`
	At      time.Time       `json:"at"`
	Topic   events.Topic    `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

const maxFeed = 1000

// Events returns up to limit of the most recent events, oldest first.
func (c *Core) Events(limit int) []Event {
	return c.feed.recent(limit)
}

func (c *Core) record(ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("encode event", "topic", ev.Topic(), "error", err)
		return
	}
	c.feed.add(c.now(), ev.Topic(), payload)
}

// feed is a bounded ring of recent events.
type feed struct {
	mu     sync.Mutex
	limit  int
	events []Event
	next   uint64
}

func newFeed(capacity int) *feed {
	return &feed{limit: capacity}
}

func (f *feed) add(at time.Time, topic events.Topic, payload json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.events = append(f.events, Event{Seq: f.next, At: at, Topic: topic, Payload: payload})
	if len(f.events) > f.limit {
		f.events = f.events[len(f.events)-f.limit:]
	}
}

func (f *feed) recent(limit int) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.events) {
		limit = len(f.events)
	}
	return append([]Event(nil), f.events[len(f.events)-limit:]...)
}

func (f *feed) all() []Event {
	return f.recent(0)
}

func (f *feed) seq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

func (f *feed) load(evs []Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append([]Event(nil), evs...)
	if len(f.events) > f.limit {
		f.events = f.events[len(f.events)-f.limit:]
	}
	for _, e := range f.events {
		if e.Seq > f.next {
			f.next = e.Seq
		}
	}
}
