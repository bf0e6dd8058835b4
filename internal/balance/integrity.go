package balance

import (
	"math"
	"sync"
	"time"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/geom"
)

// minReport is the smallest decay drift worth an event.
const minReport = 0.001

// Integrity is the world convoy-stability index. Successful route
// generation raises it, invalidation lowers it, and it relaxes toward
// Equilibrium with a half-life.
type Integrity struct {
	Now func() time.Time

	cfg Config
	out *events.Serial
	bus *events.Bus
	sub []events.SubID

	mu    sync.Mutex
	value float64
	last  time.Time
}

// IntegrityRecord is the persisted form of the index.
type IntegrityRecord struct {
	Value      float64   `json:"value"`
	LastUpdate time.Time `json:"last_update"`
}

// NewIntegrity starts the index at equilibrium and subscribes it to route
// events on bus.
func NewIntegrity(cfg Config, bus *events.Bus) *Integrity {
	in := &Integrity{
		Now:   time.Now,
		cfg:   cfg,
		out:   events.NewSerial(bus),
		bus:   bus,
		value: cfg.Equilibrium,
	}
	if bus != nil {
		in.sub = append(in.sub,
			bus.Subscribe(events.TopicRouteGenerated, in.onGenerated),
			bus.Subscribe(events.TopicRouteInvalidated, in.onInvalidated),
		)
	}
	return in
}

// Close unsubscribes the index from the bus.
func (in *Integrity) Close() {
	for _, id := range in.sub {
		in.bus.Unsubscribe(id)
	}
	in.sub = nil
}

// Value returns the index with decay applied up to now.
func (in *Integrity) Value() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.decayedLocked(in.Now().UTC())
}

func (in *Integrity) decayedLocked(now time.Time) float64 {
	if in.last.IsZero() || in.cfg.DecayHalfLife <= 0 || !now.After(in.last) {
		return in.value
	}
	k := math.Pow(0.5, now.Sub(in.last).Seconds()/in.cfg.DecayHalfLife.Seconds())
	return in.cfg.Equilibrium + (in.value-in.cfg.Equilibrium)*k
}

// Bump shifts the index by delta after applying pending decay.
func (in *Integrity) Bump(delta float64) {
	in.out.Do(func() []events.Event {
		in.mu.Lock()
		defer in.mu.Unlock()
		now := in.Now().UTC()
		old := in.value
		in.value = geom.Clamp(in.decayedLocked(now)+delta, 0, 1)
		in.last = now
		if in.value == old {
			return nil
		}
		return []events.Event{events.IntegrityIndexChanged{Value: in.value, Delta: in.value - old}}
	})
}

// Tick settles decay and reports it once the drift is noticeable.
func (in *Integrity) Tick() {
	in.out.Do(func() []events.Event {
		in.mu.Lock()
		defer in.mu.Unlock()
		now := in.Now().UTC()
		if in.last.IsZero() {
			in.last = now
			return nil
		}
		next := in.decayedLocked(now)
		if math.Abs(next-in.value) < minReport {
			return nil
		}
		old := in.value
		in.value, in.last = next, now
		return []events.Event{events.IntegrityIndexChanged{Value: next, Delta: next - old}}
	})
}

func (in *Integrity) onGenerated(ev events.Event) {
	if g, ok := ev.(events.RouteGenerated); ok && g.Success {
		in.Bump(in.cfg.IntegrityStep)
	}
}

func (in *Integrity) onInvalidated(ev events.Event) {
	if _, ok := ev.(events.RouteInvalidated); ok {
		in.Bump(-in.cfg.IntegrityStep)
	}
}

// Dump returns the persisted form of the index.
func (in *Integrity) Dump() IntegrityRecord {
	in.mu.Lock()
	defer in.mu.Unlock()
	return IntegrityRecord{Value: in.value, LastUpdate: in.last}
}

// Load restores the index without emitting events.
func (in *Integrity) Load(r IntegrityRecord) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.value = geom.Clamp(r.Value, 0, 1)
	in.last = r.LastUpdate
}
