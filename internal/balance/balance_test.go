package balance

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestGiniHHI(t *testing.T) {
	cases := []struct {
		xs        []float64
		gini, hhi float64
	}{
		{nil, 0, 0},
		{[]float64{0, 0, 0}, 0, 0},
		{[]float64{1, 1, 1, 1}, 0, 0.25},
		{[]float64{10, 0, 0, 0}, 0.75, 1},
		{[]float64{1, 1}, 0, 0.5},
	}
	for _, tc := range cases {
		if g := Gini(tc.xs); !near(g, tc.gini) {
			t.Fatalf("Gini(%v): got %v want %v", tc.xs, g, tc.gini)
		}
		if h := HHI(tc.xs); !near(h, tc.hhi) {
			t.Fatalf("HHI(%v): got %v want %v", tc.xs, h, tc.hhi)
		}
	}
}

func shares(hs ...float64) *Snapshot {
	s := &Snapshot{}
	for i, h := range hs {
		s.Factions = append(s.Factions, FactionShare{Faction: social.FactionID(i + 1), Holdings: h})
	}
	return s
}

func TestTriage_Levels(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name string
		snap *Snapshot
		want Level
	}{
		{"even", shares(10, 10, 10, 10, 10, 10, 10), Healthy},
		{"empty world", shares(0, 0, 0), Healthy},
		{"one holder", shares(0, 0, 0, 0, 0, 0, 10), Critical},
		{"two blocs", shares(10, 10, 0, 0, 0, 0, 0), Warning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := Triage(tc.snap, cfg)
			if h.Level != tc.want {
				t.Fatalf("level: got %s want %s (gini %.3f hhi %.3f)", h.Level, tc.want, h.Gini, h.HHI)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	h := &Health{Shares: map[social.FactionID]float64{1: 0.5, 2: 0.25, 3: 0.25}, Level: Warning}
	d := Decide(h, DefaultConfig())
	want := map[social.FactionID]float64{1: 0.75, 2: 1.125, 3: 1.125}
	if !reflect.DeepEqual(d.Multipliers, want) {
		t.Fatalf("multipliers: got %v want %v", d.Multipliers, want)
	}
	if !d.Alert || d.Emergency {
		t.Fatalf("flags: %+v", d)
	}

	h.Level = Watch
	d = Decide(h, DefaultConfig())
	for f, m := range d.Multipliers {
		if m != 1 {
			t.Fatalf("faction %d below warning: got %v", f, m)
		}
	}
}

type worldStub []territory.Territory

func (w worldStub) All() []territory.Territory { return w }

type tunerStub struct{ calls map[social.FactionID]float64 }

func (s *tunerStub) SetBalanceMultiplier(f social.FactionID, m float64) { s.calls[f] = m }

func lopsided() worldStub {
	var w worldStub
	for i := 1; i <= 7; i++ {
		owner := social.FactionID(1)
		if i == 7 {
			owner = 2
		}
		w = append(w, territory.Territory{ID: territory.ID(i), Controller: owner, StrategicValue: 5, ResourceMultiplier: 1})
	}
	return w
}

func TestAnalyst_Cycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAlertsPerHour = 2
	tuner := &tunerStub{calls: map[social.FactionID]float64{}}
	a := New(cfg, Sources{Territories: lopsided()}, []social.FactionID{1, 2, 3})
	a.Now = func() time.Time { return epoch }
	a.Tuner = tuner

	rep := a.Cycle()
	if rep.Health.Level != Critical || !a.Emergency() || !rep.Alerted {
		t.Fatalf("first cycle: level %s emergency %v alerted %v", rep.Health.Level, a.Emergency(), rep.Alerted)
	}
	if rep.Snapshot.Factions[0].Territories != 6 || rep.Snapshot.Factions[2].Territories != 0 {
		t.Fatalf("snapshot: %+v", rep.Snapshot.Factions)
	}
	want := map[social.FactionID]float64{1: 0.5, 2: 1.286, 3: 1.5}
	if !reflect.DeepEqual(tuner.calls, want) {
		t.Fatalf("tuner: got %v want %v", tuner.calls, want)
	}

	tuner.calls = map[social.FactionID]float64{}
	rep = a.Cycle()
	if len(tuner.calls) != 0 {
		t.Fatalf("unchanged multipliers re-sent: %v", tuner.calls)
	}
	if !rep.Alerted {
		t.Fatal("second alert within cap")
	}
	if rep = a.Cycle(); rep.Alerted {
		t.Fatal("third alert within the hour should be dropped")
	}
	if n := len(a.Alerts()); n != 2 {
		t.Fatalf("alerts: got %d want 2", n)
	}
	if n := len(a.History()); n != 3 {
		t.Fatalf("history: got %d want 3", n)
	}

	a.Now = func() time.Time { return epoch.Add(time.Hour + time.Second) }
	if rep = a.Cycle(); !rep.Alerted {
		t.Fatal("cap should reset after an hour")
	}
}

func TestIntegrity(t *testing.T) {
	bus := events.NewBus()
	rec := events.Record(bus)
	in := NewIntegrity(DefaultConfig(), bus)
	clock := epoch
	in.Now = func() time.Time { return clock }

	bus.Publish(events.RouteGenerated{Route: "r", Faction: 1, Success: true})
	bus.Publish(events.RouteGenerated{Faction: 1})
	if v := in.Value(); !near(v, 0.52) {
		t.Fatalf("after success: got %v want 0.52", v)
	}
	bus.Publish(events.RouteInvalidated{Route: "r", Reason: "control_changed"})
	if v := in.Value(); !near(v, 0.5) {
		t.Fatalf("after invalidation: got %v want 0.5", v)
	}
	changes := rec.Topic(events.TopicIntegrityChanged)
	if len(changes) != 2 {
		t.Fatalf("index events: %+v", changes)
	}
	if d := changes[1].(events.IntegrityIndexChanged).Delta; !near(d, -0.02) {
		t.Fatalf("delta: got %v", d)
	}

	in.Bump(0.3)
	clock = clock.Add(time.Hour)
	if v := in.Value(); !near(v, 0.65) {
		t.Fatalf("one half-life: got %v want 0.65", v)
	}
	rec.Reset()
	in.Tick()
	evs := rec.Events()
	if len(evs) != 1 || !near(evs[0].(events.IntegrityIndexChanged).Value, 0.65) {
		t.Fatalf("tick: %+v", evs)
	}

	in.Close()
	bus.Publish(events.RouteInvalidated{Route: "r"})
	if v := in.Value(); !near(v, 0.65) {
		t.Fatalf("closed index moved: %v", v)
	}
}

func TestExperiments(t *testing.T) {
	a := New(DefaultConfig(), Sources{}, nil)
	if err := a.StartExperiment("convoy-escort", "control", "escorted"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.StartExperiment("convoy-escort", "a", "b"); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Fatalf("duplicate: got %v", err)
	}
	if err := a.StartExperiment("solo", "only"); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Fatalf("single variant: got %v", err)
	}

	first, ok := a.Variant("convoy-escort", 4)
	again, _ := a.Variant("convoy-escort", 4)
	if !ok || first != again {
		t.Fatalf("assignment not stable: %q %q", first, again)
	}

	for f := social.FactionID(1); f <= 7; f++ {
		if err := a.RecordMetric("convoy-escort", f, float64(f)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	res, _ := a.Results("convoy-escort")
	total := 0
	for _, r := range res {
		total += r.Samples
	}
	if len(res) != 2 || total != 7 {
		t.Fatalf("results: %+v", res)
	}
	if err := a.RecordMetric("missing", 1, 1); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("unknown experiment: got %v", err)
	}

	b := New(DefaultConfig(), Sources{}, nil)
	b.Load(a.Dump())
	got, _ := b.Results("convoy-escort")
	if !reflect.DeepEqual(got, res) {
		t.Fatalf("results after load: got %+v want %+v", got, res)
	}
}
