package territory

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/geom"
	"github.com/talgya/frontline/internal/social"
)

// Config holds the thresholds of the territorial state machine.
type Config struct {
	MajorityThreshold   float64 `yaml:"majority_threshold"`
	ContestedThreshold  float64 `yaml:"contested_threshold"`
	CaptureMinInfluence float64 `yaml:"capture_min_influence"`
	CaptureMargin       float64 `yaml:"capture_margin"`
	PointCacheSize      int     `yaml:"point_cache_size"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MajorityThreshold:   50,
		ContestedThreshold:  30,
		CaptureMinInfluence: 40,
		CaptureMargin:       10,
		PointCacheSize:      4096,
	}
}

const (
	MinInfluence = 0.0
	MaxInfluence = 100.0
)

// Rates scales a faction's gameplay influence gains.
type Rates interface {
	InfluenceMultiplier(f social.FactionID) float64
}

// State is the authoritative territorial cache.
type State struct {
	Now   func() time.Time
	Rates Rates // optional; scales ApplyAction gains

	cfg Config
	out *events.Serial

	mu          sync.RWMutex
	territories map[ID]*Territory
	order       []ID // ascending ids

	memoMu sync.Mutex
	memo   map[geom.Point]ID // 0 = no territory at point
}

// New creates the state from the bootstrap territories.
func New(cfg Config, bus *events.Bus, ts []Territory) *State {
	s := &State{
		Now: time.Now,
		cfg: cfg,
		out: events.NewSerial(bus),
	}
	s.reset(ts)
	return s
}

// Config returns the thresholds in effect.
func (s *State) Config() Config {
	return s.cfg
}

func (s *State) reset(ts []Territory) {
	s.territories = make(map[ID]*Territory, len(ts))
	s.order = s.order[:0]
	for i := range ts {
		t := ts[i].Clone()
		s.territories[t.ID] = &t
		s.order = append(s.order, t.ID)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })

	s.memoMu.Lock()
	s.memo = make(map[geom.Point]ID)
	s.memoMu.Unlock()
}

func (s *State) now() time.Time {
	return s.Now().UTC()
}

// Get returns a copy of the territory. The bool is false for unknown ids.
func (s *State) Get(id ID) (Territory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.territories[id]
	if !ok {
		return Territory{}, false
	}
	return t.Clone(), true
}

// All returns copies of every territory in id order.
func (s *State) All() []Territory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Territory, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.territories[id].Clone())
	}
	return out
}

// Len returns the number of territories.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// InRadius returns copies of territories whose centroid lies within r of center.
func (s *State) InRadius(center geom.Point, r float64) []Territory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Territory
	for _, id := range s.order {
		t := s.territories[id]
		if geom.Dist(center, t.Bounds.Center) <= r {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Children returns copies of the direct children of parent.
func (s *State) Children(parent ID) []Territory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Territory
	for _, id := range s.order {
		if t := s.territories[id]; t.ParentID == parent && t.ID != parent {
			out = append(out, t.Clone())
		}
	}
	return out
}

// TerritoryAt returns the most specific territory containing p. Results are
// memoized per query point; bounds only change on bootstrap and Load.
func (s *State) TerritoryAt(p geom.Point) (ID, bool) {
	s.memoMu.Lock()
	if id, ok := s.memo[p]; ok {
		s.memoMu.Unlock()
		return id, id != 0
	}
	s.memoMu.Unlock()

	s.mu.RLock()
	var best ID
	bestDepth := -1
	for _, id := range s.order {
		t := s.territories[id]
		if !t.Bounds.Polygon.Contains(p) {
			continue
		}
		if d := s.depthLocked(t); d > bestDepth {
			best, bestDepth = id, d
		}
	}
	s.mu.RUnlock()

	s.memoMu.Lock()
	if s.cfg.PointCacheSize > 0 && len(s.memo) >= s.cfg.PointCacheSize {
		s.memo = make(map[geom.Point]ID)
	}
	s.memo[p] = best
	s.memoMu.Unlock()
	return best, best != 0
}

func (s *State) depthLocked(t *Territory) int {
	depth := 0
	for cur := t; cur.ParentID != 0 && depth < len(s.order); depth++ {
		parent, ok := s.territories[cur.ParentID]
		if !ok {
			break
		}
		cur = parent
	}
	return depth
}

// DistanceToBorder returns the distance from p to the territory's boundary.
func (s *State) DistanceToBorder(id ID, p geom.Point) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.territories[id]
	if !ok {
		return math.Inf(1), false
	}
	return t.Bounds.Polygon.DistanceToBorder(p), true
}

// ClosestBorderPoint returns the point on the territory's boundary nearest to p.
func (s *State) ClosestBorderPoint(id ID, p geom.Point) (geom.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.territories[id]
	if !ok {
		return geom.Point{}, false
	}
	return t.Bounds.Polygon.ClosestPoint(p), true
}

// ApplyAction applies a player influence action. Gains are scaled by the
// faction's rate; losses apply unscaled. It returns the delta applied.
func (s *State) ApplyAction(id ID, faction social.FactionID, delta float64) (float64, error) {
	if delta > 0 && s.Rates != nil {
		if m := s.Rates.InfluenceMultiplier(faction); m > 0 {
			delta *= m
		}
	}
	return delta, s.ApplyInfluence(id, faction, delta)
}

// ApplyInfluence is the only mutator of influence. Events are delivered in
// the order InfluenceChanged, Contested (on transition), ControlChanged (on
// transition).
func (s *State) ApplyInfluence(id ID, faction social.FactionID, delta float64) error {
	if faction == social.Neutral {
		return fmt.Errorf("apply influence to territory %d: neutral faction: %w", id, fault.ErrInvalidTransition)
	}
	var err error
	s.out.Do(func() []events.Event {
		s.mu.Lock()
		defer s.mu.Unlock()

		t, ok := s.territories[id]
		if !ok {
			err = fmt.Errorf("apply influence to territory %d: %w", id, fault.ErrNotFound)
			return nil
		}
		now := s.now()

		r := t.row(faction)
		if r == nil {
			t.Influences = append(t.Influences, Influence{Faction: faction})
			r = &t.Influences[len(t.Influences)-1]
		}
		old := r.Level
		r.Level = geom.Clamp(old+delta, MinInfluence, MaxInfluence)
		r.LastAction = now
		switch {
		case delta > 0:
			r.Trend = TrendGrowing
			r.ControlPoints += int(math.Ceil(r.Level - old))
		case delta < 0:
			r.Trend = TrendDeclining
		default:
			r.Trend = TrendStable
		}

		evs := []events.Event{events.InfluenceChanged{
			Territory: int(id),
			Faction:   faction,
			Level:     r.Level,
			Delta:     r.Level - old,
		}}
		return append(evs, s.settleLocked(t, now)...)
	})
	if err != nil {
		fault.Log("influence rejected", err, "territory", id, "faction", faction)
	}
	return err
}

// settleLocked recomputes contested status and controller after a mutation.
func (s *State) settleLocked(t *Territory, now time.Time) []events.Event {
	var evs []events.Event

	contested := t.countAtLeast(s.cfg.ContestedThreshold) >= 2
	if contested != t.Contested {
		t.Contested = contested
		if contested {
			t.LastContestedTime = now
		}
		evs = append(evs, events.Contested{Territory: int(t.ID), Contested: contested})
	}

	old := t.Controller
	if next := s.decideController(t); next != old {
		t.Controller = next
		evs = append(evs, events.ControlChanged{Territory: int(t.ID), Old: old, New: next})
		slog.Info("territory control changed",
			"territory", t.ID,
			"name", t.Name,
			"old", old,
			"new", next,
		)
	}
	return evs
}

// decideController returns the unique influence leader when it strictly
// exceeds the majority threshold, and Neutral otherwise.
func (s *State) decideController(t *Territory) social.FactionID {
	best, level, unique := t.leader()
	if unique && level > s.cfg.MajorityThreshold {
		return best
	}
	return social.Neutral
}

// AttemptCapture applies the capture rule: the attacker needs at least
// CaptureMinInfluence, must lead every other faction, and must lead the
// current controller by CaptureMargin. On success the attacker's influence is
// lifted above the majority threshold and ControlChanged is emitted once.
func (s *State) AttemptCapture(id ID, attacker social.FactionID) (bool, error) {
	if attacker == social.Neutral {
		return false, fmt.Errorf("capture territory %d: neutral attacker: %w", id, fault.ErrInvalidTransition)
	}
	var (
		captured bool
		err      error
	)
	s.out.Do(func() []events.Event {
		s.mu.Lock()
		defer s.mu.Unlock()

		t, ok := s.territories[id]
		if !ok {
			err = fmt.Errorf("capture territory %d: %w", id, fault.ErrNotFound)
			return nil
		}
		if t.Controller == attacker {
			return nil
		}
		atk := t.InfluenceOf(attacker)
		if atk < s.cfg.CaptureMinInfluence {
			return nil
		}
		for _, in := range t.Influences {
			if in.Faction != attacker && in.Level >= atk {
				return nil
			}
		}
		if t.Controller != social.Neutral && atk-t.InfluenceOf(t.Controller) < s.cfg.CaptureMargin {
			return nil
		}

		now := s.now()
		r := t.row(attacker)
		old := r.Level
		r.Level = geom.Clamp(math.Max(old, s.cfg.MajorityThreshold+1), MinInfluence, MaxInfluence)
		r.LastAction = now

		var evs []events.Event
		if r.Level != old {
			r.Trend = TrendGrowing
			evs = append(evs, events.InfluenceChanged{Territory: int(id), Faction: attacker, Level: r.Level, Delta: r.Level - old})
		}
		contested := t.countAtLeast(s.cfg.ContestedThreshold) >= 2
		if contested != t.Contested {
			t.Contested = contested
			if contested {
				t.LastContestedTime = now
			}
			evs = append(evs, events.Contested{Territory: int(id), Contested: contested})
		}
		prev := t.Controller
		t.Controller = attacker
		captured = true
		slog.Info("territory captured", "territory", id, "name", t.Name, "attacker", attacker, "previous", prev)
		return append(evs, events.ControlChanged{Territory: int(id), Old: prev, New: attacker})
	})
	if err != nil {
		fault.Log("capture rejected", err, "territory", id, "attacker", attacker)
	}
	return captured, err
}
