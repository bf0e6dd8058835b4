package siege

import (
	"errors"
	"fmt"
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

type victories struct{ pairs [][2]social.FactionID }

func (v *victories) RecordSiegeVictory(a, b social.FactionID) error {
	v.pairs = append(v.pairs, [2]social.FactionID{a, b})
	return nil
}

type rewards struct{ got map[social.FactionID]float64 }

func (r *rewards) UpdateReputation(f social.FactionID, delta float64, source string) error {
	if source != "siege" {
		return fmt.Errorf("source %q", source)
	}
	r.got[f] += delta
	return nil
}

type captures struct{ calls []territory.ID }

func (c *captures) AttemptCapture(id territory.ID, _ social.FactionID) (bool, error) {
	c.calls = append(c.calls, id)
	return true, nil
}

type fixture struct {
	m     *Manager
	rec   *events.Recorder
	clock time.Time
	trust *victories
	prog  *rewards
	cap   *captures
}

func newFixture(cfg Config) *fixture {
	bus := events.NewBus()
	f := &fixture{
		rec:   events.Record(bus),
		clock: epoch,
		trust: &victories{},
		prog:  &rewards{got: map[social.FactionID]float64{}},
		cap:   &captures{},
	}
	f.m = New(cfg, bus)
	f.m.Now = func() time.Time { return f.clock }
	n := 0
	f.m.NewID = func() string {
		n++
		return fmt.Sprintf("siege-%d", n)
	}
	f.m.Trust = f.trust
	f.m.Progression = f.prog
	f.m.Territory = f.cap
	return f
}

func scenarioPlan() Plan {
	return Plan{
		Territory: 42,
		Attackers: []social.FactionID{3},
		Defenders: []social.FactionID{2, 4},
		Stages: map[Phase][]Stage{
			PhaseProbe:     {{ID: "S1", Kind: StagePrimary}, {ID: "S2", Kind: StageSecondary}},
			PhaseInterdict: {{ID: "S3", Kind: StagePrimary}},
			PhaseDominate:  {{ID: "S4", Kind: StageExtraction}},
		},
		DominanceReward: 0.1,
		TicketCost:      5,
		AttackerTickets: 10,
		DefenderTickets: 10,
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSiege_DefendersHoldOnTickets(t *testing.T) {
	f := newFixture(DefaultConfig())
	id, err := f.m.Start(scenarioPlan())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, st := range []string{"S1", "S2"} {
		if err := f.m.CompleteStage(id, st); err != nil {
			t.Fatalf("complete %s: %v", st, err)
		}
	}
	v, _ := f.m.Get(id)
	if v.Phase != "interdict" {
		t.Fatalf("phase: got %s want interdict", v.Phase)
	}
	if !near(v.Dominance, 0.7) {
		t.Fatalf("dominance: got %v want 0.7", v.Dominance)
	}
	phases := f.rec.Topic(events.TopicPhaseChanged)
	if last := phases[len(phases)-1]; last != (events.PhaseChanged{Siege: id, Old: "probe", New: "interdict"}) {
		t.Fatalf("phase event: %+v", last)
	}

	f.rec.Reset()
	_ = f.m.FailStage(id, "S3")
	_ = f.m.FailStage(id, "S3")

	want := []events.Event{
		events.TicketsConsumed{Siege: id, Side: "attacker", Amount: 5, Remaining: 5},
		events.TicketsConsumed{Siege: id, Side: "attacker", Amount: 5, Remaining: 0},
		events.TicketsExhausted{Siege: id, Side: "attacker"},
	}
	if got := f.rec.Events(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events:\n got %+v\nwant %+v", got, want)
	}

	v, _ = f.m.Get(id)
	if v.Outcome != "defenders_won" || v.AttackerTickets != 0 {
		t.Fatalf("view: %+v", v)
	}
	if want := [][2]social.FactionID{{2, 4}}; !reflect.DeepEqual(f.trust.pairs, want) {
		t.Fatalf("victories: got %v want %v", f.trust.pairs, want)
	}
	if f.prog.got[2] != 100 || f.prog.got[4] != 100 || f.prog.got[3] != 0 {
		t.Fatalf("rewards: %v", f.prog.got)
	}
	if len(f.cap.calls) != 0 {
		t.Fatalf("defender victory must not capture: %v", f.cap.calls)
	}

	if err := f.m.FailStage(id, "S3"); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Fatalf("action on ended siege: got %v", err)
	}
	if n := f.m.Tick(); n != 1 {
		t.Fatalf("disposed: got %d want 1", n)
	}
	if _, ok := f.m.Get(id); ok {
		t.Fatal("ended siege still live")
	}
}

func TestSiege_LockAndDispose(t *testing.T) {
	f := newFixture(DefaultConfig())
	id, _ := f.m.Start(scenarioPlan())
	_ = f.m.CompleteStage(id, "S1")
	_ = f.m.CompleteStage(id, "S2")

	if err := f.m.Advance(id); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Fatalf("advance with open stage: got %v", err)
	}
	_ = f.m.CompleteStage(id, "S3")

	v, _ := f.m.Get(id)
	if v.Phase != "dominate" || len(v.Stages) != 1 || v.Stages[0].Kind != StageDynamic {
		t.Fatalf("dominate view: %+v", v)
	}

	if err := f.m.Advance(id); err != nil {
		t.Fatalf("explicit advance: %v", err)
	}
	v, _ = f.m.Get(id)
	if v.Phase != "locked" || !v.LockEnd.Equal(epoch.Add(300*time.Second)) || v.Outcome != "attackers_won" {
		t.Fatalf("locked view: %+v", v)
	}
	if !reflect.DeepEqual(f.cap.calls, []territory.ID{42}) {
		t.Fatalf("capture calls: %v", f.cap.calls)
	}
	if want := [][2]social.FactionID{{3, 2}, {3, 4}}; !reflect.DeepEqual(f.trust.pairs, want) {
		t.Fatalf("sole attacker victories: got %v want %v", f.trust.pairs, want)
	}
	if err := f.m.Advance(id); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Fatalf("advance out of locked: got %v", err)
	}

	f.clock = epoch.Add(299 * time.Second)
	if n := f.m.Tick(); n != 0 {
		t.Fatalf("disposed before lock end: %d", n)
	}
	f.clock = epoch.Add(300 * time.Second)
	if n := f.m.Tick(); n != 1 {
		t.Fatalf("disposed at lock end: %d", n)
	}
}

type failingRecorder struct{ calls int }

func (r *failingRecorder) RecordSiegeVictory(a, b social.FactionID) error {
	r.calls++
	return fault.ErrInvalidTransition
}

func (r *failingRecorder) UpdateReputation(f social.FactionID, delta float64, source string) error {
	r.calls++
	return fault.ErrUnavailable
}

func TestSiege_OneOnOneVictory(t *testing.T) {
	f := newFixture(DefaultConfig())
	plan := scenarioPlan()
	plan.Defenders = []social.FactionID{2}
	id, err := f.m.Start(plan)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = f.m.FailStage(id, "S1")
	_ = f.m.FailStage(id, "S1")

	if want := [][2]social.FactionID{{2, 3}}; !reflect.DeepEqual(f.trust.pairs, want) {
		t.Fatalf("victories: got %v want %v", f.trust.pairs, want)
	}
	if f.prog.got[2] != 100 || f.prog.got[3] != 0 {
		t.Fatalf("rewards: %v", f.prog.got)
	}
}

func TestSiege_CollaboratorErrorsDoNotBlockSettle(t *testing.T) {
	f := newFixture(DefaultConfig())
	failing := &failingRecorder{}
	f.m.Trust = failing
	f.m.Progression = failing
	plan := scenarioPlan()
	plan.Defenders = []social.FactionID{2}
	plan.AttackerTickets = 5
	id, _ := f.m.Start(plan)

	if err := f.m.FailStage(id, "S1"); err != nil {
		t.Fatalf("fail stage: %v", err)
	}
	if v, _ := f.m.Get(id); v.Outcome != "defenders_won" {
		t.Fatalf("outcome: %+v", v)
	}
	if failing.calls != 2 {
		t.Fatalf("collaborator calls: got %d want 2", failing.calls)
	}
}

func TestVictoryPairs(t *testing.T) {
	cases := []struct {
		name            string
		winners, losers []social.FactionID
		want            [][2]social.FactionID
	}{
		{"one on one", []social.FactionID{2}, []social.FactionID{3}, [][2]social.FactionID{{2, 3}}},
		{"sole winner", []social.FactionID{3}, []social.FactionID{2, 4}, [][2]social.FactionID{{3, 2}, {3, 4}}},
		{"co-winners", []social.FactionID{2, 4, 6}, []social.FactionID{3}, [][2]social.FactionID{{2, 4}, {2, 6}, {4, 6}}},
		{"no winners", nil, []social.FactionID{3}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := victoryPairs(tc.winners, tc.losers); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestSiege_StageErrors(t *testing.T) {
	f := newFixture(DefaultConfig())
	id, _ := f.m.Start(scenarioPlan())
	_ = f.m.CompleteStage(id, "S1")

	if err := f.m.CompleteStage(id, "S1"); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Fatalf("repeat completion: got %v", err)
	}
	if err := f.m.CompleteStage(id, "S3"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("stage of a later phase: got %v", err)
	}
	if err := f.m.CompleteStage("nope", "S1"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("unknown siege: got %v", err)
	}
}

func TestStart_Rejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActive = 1
	f := newFixture(cfg)

	bad := scenarioPlan()
	bad.Defenders = []social.FactionID{3}
	if _, err := f.m.Start(bad); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Fatalf("same faction on both sides: got %v", err)
	}
	bad = scenarioPlan()
	bad.AttackerTickets = 0
	if _, err := f.m.Start(bad); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Fatalf("empty pool: got %v", err)
	}
	if _, err := f.m.Start(scenarioPlan()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.m.Start(scenarioPlan()); !errors.Is(err, fault.ErrOverLimit) {
		t.Fatalf("cap: got %v", err)
	}
}

func TestMeter_Thresholds(t *testing.T) {
	m := newMeter([]float64{0.25, 0.5, 0.75, 0.9}, 0)
	var topics []events.Topic
	step := func(d float64) {
		for _, ev := range m.add("s", d, epoch) {
			topics = append(topics, ev.Topic())
		}
	}

	step(0.3) // 0.8
	step(0.5) // 1.0
	step(0.1) // saturated, nothing
	step(-0.2)
	step(0.5)

	want := []events.Topic{
		events.TopicDominanceChanged, events.TopicDominanceThreshold,
		events.TopicDominanceChanged, events.TopicDominanceThreshold, events.TopicDominanceComplete,
		events.TopicDominanceChanged, events.TopicDominanceThreshold,
		events.TopicDominanceChanged, events.TopicDominanceThreshold, events.TopicDominanceComplete,
	}
	if !reflect.DeepEqual(topics, want) {
		t.Fatalf("topics:\n got %v\nwant %v", topics, want)
	}
}

func TestMeter_ModifierAndDecay(t *testing.T) {
	m := newMeter(nil, 0.01)
	m.ApplyModifier(0.05, time.Minute, epoch)
	m.add("s", 1, epoch)
	if !near(m.Value(), 0.6) {
		t.Fatalf("modified delta: got %v want 0.6", m.Value())
	}
	m.add("s", 0.1, epoch.Add(2*time.Minute))
	if !near(m.Value(), 0.7) {
		t.Fatalf("after expiry: got %v want 0.7", m.Value())
	}

	m.decay("s", 10*time.Second)
	if !near(m.Value(), 0.6) {
		t.Fatalf("decay: got %v want 0.6", m.Value())
	}
	m.decay("s", time.Hour)
	if m.Value() != Equilibrium {
		t.Fatalf("decay overshoot: got %v", m.Value())
	}
}

func TestPool(t *testing.T) {
	p := newPool(10, 2, false)
	evs, out := p.consume("s", Defender, 3)
	if out || p.Remaining != 4 || evs[0] != (events.TicketsConsumed{Siege: "s", Side: "defender", Amount: 6, Remaining: 4}) {
		t.Fatalf("consume: %+v remaining %d", evs, p.Remaining)
	}
	evs, out = p.consume("s", Defender, 5)
	if !out || p.Remaining != 0 || len(evs) != 2 {
		t.Fatalf("exhaust: %+v remaining %d", evs, p.Remaining)
	}
	if _, out = p.consume("s", Defender, 1); out {
		t.Fatal("exhaustion reported twice")
	}

	p.refill("s", Defender, 50)
	if p.Remaining != 10 {
		t.Fatalf("refill cap: got %d", p.Remaining)
	}

	neg := newPool(1, 1, true)
	neg.consume("s", Attacker, 4)
	if neg.Remaining != -3 {
		t.Fatalf("negative pool: got %d", neg.Remaining)
	}
}

func TestDumpLoad(t *testing.T) {
	f := newFixture(DefaultConfig())
	id, _ := f.m.Start(scenarioPlan())
	_ = f.m.CompleteStage(id, "S1")
	_ = f.m.ConsumeTickets(id, Defender, 4)
	_ = f.m.ApplyModifier(id, 2, time.Minute)

	g := newFixture(DefaultConfig())
	g.m.Load(f.m.Dump())
	if got, want := g.m.All(), f.m.All(); !reflect.DeepEqual(got, want) {
		t.Fatalf("views after load:\n got %+v\nwant %+v", got, want)
	}
	if !reflect.DeepEqual(g.m.Dump(), f.m.Dump()) {
		t.Fatal("dump after load differs")
	}

	g.rec.Reset()
	_ = g.m.AddDominance(id, 0.05)
	v, _ := g.m.Get(id)
	if !near(v.Dominance, 0.7) {
		t.Fatalf("restored modifier: dominance %v", v.Dominance)
	}
}
