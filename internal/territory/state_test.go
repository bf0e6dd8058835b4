package territory

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/geom"
	"github.com/talgya/frontline/internal/social"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func box(id ID, cx, cy, half float64) Territory {
	return Territory{
		ID:   id,
		Name: "T",
		Type: TypeMilitary,
		Bounds: Bounds{
			Polygon: geom.Polygon{{X: cx - half, Y: cy - half}, {X: cx + half, Y: cy - half}, {X: cx + half, Y: cy + half}, {X: cx - half, Y: cy + half}},
			Center:  geom.Point{X: cx, Y: cy},
			Radius:  half,
		},
		StrategicValue:     5,
		ResourceMultiplier: 1,
	}
}

func newTestState(ts ...Territory) (*State, *events.Recorder) {
	bus := events.NewBus()
	rec := events.Record(bus)
	s := New(DefaultConfig(), bus, ts)
	s.Now = func() time.Time { return epoch }
	return s, rec
}

func TestApplyInfluence_Capture(t *testing.T) {
	s, rec := newTestState(box(42, 0, 0, 10))

	if err := s.ApplyInfluence(42, 5, 20); err != nil {
		t.Fatalf("apply: %v", err)
	}
	rec.Reset()
	if err := s.ApplyInfluence(42, 3, 51); err != nil {
		t.Fatalf("apply: %v", err)
	}

	evs := rec.Events()
	if len(evs) != 2 {
		t.Fatalf("events: got %v", rec.Topics())
	}
	if got, want := evs[0], (events.InfluenceChanged{Territory: 42, Faction: 3, Level: 51, Delta: 51}); got != want {
		t.Fatalf("first event: got %+v want %+v", got, want)
	}
	if got, want := evs[1], (events.ControlChanged{Territory: 42, Old: 0, New: 3}); got != want {
		t.Fatalf("second event: got %+v want %+v", got, want)
	}

	tt, _ := s.Get(42)
	if tt.Controller != 3 {
		t.Fatalf("controller: got %d want 3", tt.Controller)
	}
	if tt.Contested {
		t.Fatal("only one faction meets the contested threshold")
	}
}

func TestApplyInfluence_ContestOnOff(t *testing.T) {
	s, rec := newTestState(box(42, 0, 0, 10))
	_ = s.ApplyInfluence(42, 3, 51)
	_ = s.ApplyInfluence(42, 5, 20)
	rec.Reset()

	_ = s.ApplyInfluence(42, 5, 15)
	evs := rec.Events()
	if len(evs) != 2 {
		t.Fatalf("contest on: got %v", rec.Topics())
	}
	if inf := evs[0].(events.InfluenceChanged); inf.Level != 35 || inf.Faction != 5 {
		t.Fatalf("influence: got %+v", inf)
	}
	if c := evs[1].(events.Contested); !c.Contested {
		t.Fatalf("contested: got %+v", c)
	}
	tt, _ := s.Get(42)
	if !tt.LastContestedTime.Equal(epoch) {
		t.Fatalf("last contested time: got %v", tt.LastContestedTime)
	}

	rec.Reset()
	_ = s.ApplyInfluence(42, 5, -10)
	cs := rec.Topic(events.TopicContested)
	if len(cs) != 1 || cs[0].(events.Contested).Contested {
		t.Fatalf("contest off: got %v", cs)
	}
	tt, _ = s.Get(42)
	if tt.Controller != 3 {
		t.Fatalf("controller should survive contest: got %d", tt.Controller)
	}
}

func TestApplyInfluence_OrderWithinCall(t *testing.T) {
	s, rec := newTestState(box(1, 0, 0, 10))
	_ = s.ApplyInfluence(1, 2, 40)
	rec.Reset()

	// One call both contests the ground and flips control.
	_ = s.ApplyInfluence(1, 4, 60)
	want := []events.Topic{events.TopicInfluenceChanged, events.TopicContested, events.TopicControlChanged}
	if got := rec.Topics(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order: got %v want %v", got, want)
	}
}

func TestApplyInfluence_Saturates(t *testing.T) {
	s, _ := newTestState(box(1, 0, 0, 10))
	_ = s.ApplyInfluence(1, 2, 250)
	tt, _ := s.Get(1)
	if got := tt.InfluenceOf(2); got != MaxInfluence {
		t.Fatalf("upper clamp: got %v", got)
	}
	_ = s.ApplyInfluence(1, 2, -500)
	tt, _ = s.Get(1)
	if got := tt.InfluenceOf(2); got != MinInfluence {
		t.Fatalf("lower clamp: got %v", got)
	}
	if tt.Controller != social.Neutral {
		t.Fatalf("all influence gone should leave neutral, got %d", tt.Controller)
	}
}

func TestApplyInfluence_InverseDeltaRestores(t *testing.T) {
	s, rec := newTestState(box(1, 0, 0, 10))
	_ = s.ApplyInfluence(1, 2, 20)
	rec.Reset()

	_ = s.ApplyInfluence(1, 2, 7.5)
	_ = s.ApplyInfluence(1, 2, -7.5)

	tt, _ := s.Get(1)
	if got := tt.InfluenceOf(2); got != 20 {
		t.Fatalf("influence: got %v want 20", got)
	}
	inf := rec.Topic(events.TopicInfluenceChanged)
	if len(inf) != 2 || inf[0].(events.InfluenceChanged).Delta != 7.5 || inf[1].(events.InfluenceChanged).Delta != -7.5 {
		t.Fatalf("paired events: got %+v", inf)
	}
}

func TestApplyInfluence_UnknownTerritory(t *testing.T) {
	s, rec := newTestState(box(1, 0, 0, 10))
	err := s.ApplyInfluence(99, 2, 10)
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("error: got %v want NotFound", err)
	}
	if _, ok := s.Get(99); ok {
		t.Fatal("mutation must never create a territory")
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("no events expected, got %v", rec.Topics())
	}
}

// checkController asserts the controller is Neutral or the unique faction
// with the highest influence strictly above the majority threshold.
func checkController(t *testing.T, s *State, id ID, step int) {
	t.Helper()
	tt, _ := s.Get(id)
	best, level, unique := tt.leader()
	want := social.Neutral
	if unique && level > s.cfg.MajorityThreshold {
		want = best
	}
	if tt.Controller != want {
		t.Fatalf("step %d: controller %d, want %d (influences %+v)", step, tt.Controller, want, tt.Influences)
	}
	contested := tt.countAtLeast(s.cfg.ContestedThreshold) >= 2
	if contested != tt.Contested {
		t.Fatalf("step %d: contested flag %v disagrees with influence rows", step, tt.Contested)
	}
}

func TestApplyInfluence_ControllerInvariant(t *testing.T) {
	s, _ := newTestState(box(1, 0, 0, 10))
	steps := []struct {
		f social.FactionID
		d float64
	}{
		{1, 60}, {2, 55}, {2, 10}, {1, -30}, {3, 80}, {3, -80}, {2, -65}, {1, -30},
		{4, 51}, {4, -40}, {5, 45}, {5, 10}, {4, 44}, {4, 1},
	}
	for i, st := range steps {
		_ = s.ApplyInfluence(1, st.f, st.d)
		checkController(t, s, 1, i)
	}
}

func TestApplyInfluence_ControllerReleasedBelowMajority(t *testing.T) {
	s, rec := newTestState(box(42, 0, 0, 10))
	_ = s.ApplyInfluence(42, 3, 51)
	rec.Reset()

	_ = s.ApplyInfluence(42, 3, -40)
	tt, _ := s.Get(42)
	if tt.Controller != social.Neutral {
		t.Fatalf("controller at 11 should release the ground, got %d", tt.Controller)
	}
	cc := rec.Topic(events.TopicControlChanged)
	if len(cc) != 1 || cc[0] != (events.ControlChanged{Territory: 42, Old: 3, New: social.Neutral}) {
		t.Fatalf("control events: %+v", cc)
	}

	// A rival below majority does not take the ground either.
	_ = s.ApplyInfluence(42, 5, 45)
	if tt, _ = s.Get(42); tt.Controller != social.Neutral {
		t.Fatalf("faction 5 at 45 must not control, got %d", tt.Controller)
	}
}

func TestApplyInfluence_TieReleasesControl(t *testing.T) {
	s, _ := newTestState(box(1, 0, 0, 10))
	_ = s.ApplyInfluence(1, 2, 60)
	_ = s.ApplyInfluence(1, 3, 60)
	if tt, _ := s.Get(1); tt.Controller != social.Neutral {
		t.Fatalf("tied leaders leave the ground neutral, got %d", tt.Controller)
	}
	_ = s.ApplyInfluence(1, 3, 1)
	if tt, _ := s.Get(1); tt.Controller != 3 {
		t.Fatalf("unique leader above majority: got %d want 3", tt.Controller)
	}
}

func TestAttemptCapture(t *testing.T) {
	s, rec := newTestState(box(7, 0, 0, 10))
	_ = s.ApplyInfluence(7, 1, 55)
	_ = s.ApplyInfluence(7, 2, 45)

	ok, err := s.AttemptCapture(7, 2)
	if err != nil || ok {
		t.Fatalf("capture without margin: ok=%v err=%v", ok, err)
	}

	_ = s.ApplyInfluence(7, 1, -30) // controller 25
	rec.Reset()
	ok, err = s.AttemptCapture(7, 2)
	if err != nil || !ok {
		t.Fatalf("capture with margin: ok=%v err=%v", ok, err)
	}
	if n := len(rec.Topic(events.TopicControlChanged)); n != 1 {
		t.Fatalf("control events: got %d want 1", n)
	}
	tt, _ := s.Get(7)
	if tt.Controller != 2 || tt.InfluenceOf(2) <= s.cfg.MajorityThreshold {
		t.Fatalf("after capture: controller %d influence %.1f", tt.Controller, tt.InfluenceOf(2))
	}

	// Repeating the capture is a no-op.
	rec.Reset()
	if ok, _ := s.AttemptCapture(7, 2); ok || len(rec.Events()) != 0 {
		t.Fatalf("repeat capture should do nothing, ok=%v events=%v", ok, rec.Topics())
	}

	if _, err := s.AttemptCapture(70, 2); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("unknown territory: got %v", err)
	}
}

func TestSpatialQueries(t *testing.T) {
	parent := box(1, 0, 0, 50)
	child := box(2, 10, 10, 5)
	child.ParentID = 1
	other := box(3, 200, 0, 10)
	s, _ := newTestState(parent, child, other)

	if id, ok := s.TerritoryAt(geom.Point{X: 11, Y: 9}); !ok || id != 2 {
		t.Fatalf("nested point: got %d,%v want child 2", id, ok)
	}
	if id, ok := s.TerritoryAt(geom.Point{X: -30, Y: 0}); !ok || id != 1 {
		t.Fatalf("parent point: got %d,%v", id, ok)
	}
	if _, ok := s.TerritoryAt(geom.Point{X: 100, Y: 100}); ok {
		t.Fatal("empty ground should match nothing")
	}
	// Memoized answer is stable.
	if id, _ := s.TerritoryAt(geom.Point{X: 11, Y: 9}); id != 2 {
		t.Fatalf("memoized: got %d", id)
	}

	if got := s.InRadius(geom.Point{}, 20); len(got) != 2 {
		t.Fatalf("in radius: got %d want 2", len(got))
	}
	if got := s.Children(1); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("children: got %+v", got)
	}
	if d, ok := s.DistanceToBorder(3, geom.Point{X: 200, Y: 0}); !ok || d != 10 {
		t.Fatalf("distance to border: got %v,%v", d, ok)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	s, _ := newTestState(box(1, 0, 0, 10))
	_ = s.ApplyInfluence(1, 2, 10)
	tt, _ := s.Get(1)
	tt.Influences[0].Level = 99
	tt.Bounds.Polygon[0].X = 1000

	again, _ := s.Get(1)
	if again.Influences[0].Level != 10 || again.Bounds.Polygon[0].X == 1000 {
		t.Fatal("mutating a snapshot leaked into the authoritative cache")
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	child := box(2, 10, 10, 5)
	child.ParentID = 1
	s, _ := newTestState(box(1, 0, 0, 50), child)
	_ = s.ApplyInfluence(1, 3, 60)
	_ = s.ApplyInfluence(1, 4, 35)
	_ = s.ApplyInfluence(2, 4, 12)

	dump := s.Dump()
	restored, rec := newTestState()
	restored.Load(dump)

	if !reflect.DeepEqual(restored.Dump(), dump) {
		t.Fatal("dump after load differs")
	}
	if !reflect.DeepEqual(restored.All(), s.All()) {
		t.Fatal("read snapshots differ after load")
	}
	if len(rec.Events()) != 0 {
		t.Fatal("load must not emit events")
	}
}

type fixedRates map[social.FactionID]float64

func (r fixedRates) InfluenceMultiplier(f social.FactionID) float64 {
	if m, ok := r[f]; ok {
		return m
	}
	return 1
}

func TestApplyAction_ScalesGains(t *testing.T) {
	s, rec := newTestState(box(1, 0, 0, 10))
	s.Rates = fixedRates{2: 1.5}

	applied, err := s.ApplyAction(1, 2, 20)
	if err != nil || applied != 30 {
		t.Fatalf("gain: applied %v err %v, want 30", applied, err)
	}
	if applied, _ = s.ApplyAction(1, 2, -10); applied != -10 {
		t.Fatalf("loss should apply unscaled, got %v", applied)
	}
	if applied, _ = s.ApplyAction(1, 3, 20); applied != 20 {
		t.Fatalf("faction without a rate: got %v", applied)
	}

	tt, _ := s.Get(1)
	if tt.InfluenceOf(2) != 20 || tt.InfluenceOf(3) != 20 {
		t.Fatalf("influence: faction 2 %v faction 3 %v", tt.InfluenceOf(2), tt.InfluenceOf(3))
	}
	if inf := rec.Topic(events.TopicInfluenceChanged); inf[0].(events.InfluenceChanged).Delta != 30 {
		t.Fatalf("event delta: %+v", inf[0])
	}
	if _, err := s.ApplyAction(9, 2, 5); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("unknown territory: got %v", err)
	}
}
