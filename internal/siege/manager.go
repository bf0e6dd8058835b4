package siege

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// Config holds siege tuning.
type Config struct {
	LockDuration     time.Duration `yaml:"lock_duration"`
	Thresholds       []float64     `yaml:"dominance_thresholds"`
	DecayRate        float64       `yaml:"dominance_decay_rate"`
	PhaseThreshold   float64       `yaml:"phase_progress_threshold"`
	DominanceReward  float64       `yaml:"dominance_reward_per_stage"`
	TicketCost       int           `yaml:"ticket_cost_per_failure"`
	VictoryReward    float64       `yaml:"victory_reward"`
	AllowNegative    bool          `yaml:"allow_negative_tickets"`
	CaptureOnVictory bool          `yaml:"capture_on_victory"`
	MaxActive        int           `yaml:"max_active_sieges"`
}

// DefaultConfig returns the standard siege tuning.
func DefaultConfig() Config {
	return Config{
		LockDuration:     300 * time.Second,
		Thresholds:       []float64{0.25, 0.5, 0.75, 0.9},
		PhaseThreshold:   1.0,
		DominanceReward:  0.05,
		TicketCost:       5,
		VictoryReward:    100,
		CaptureOnVictory: true,
		MaxActive:        32,
	}
}

// VictoryRecorder credits a siege victory between two factions.
type VictoryRecorder interface {
	RecordSiegeVictory(a, b social.FactionID) error
}

// Reputation rewards the winners.
type Reputation interface {
	UpdateReputation(f social.FactionID, delta float64, source string) error
}

// Capturer hands the bound territory to victorious attackers.
type Capturer interface {
	AttemptCapture(id territory.ID, attacker social.FactionID) (bool, error)
}

// Manager owns every live siege. Collaborators are optional; a nil one is
// skipped.
type Manager struct {
	Now         func() time.Time
	NewID       func() string
	Trust       VictoryRecorder
	Progression Reputation
	Territory   Capturer

	cfg Config
	out *events.Serial

	mu     sync.RWMutex
	sieges map[string]*Siege
}

// New creates an empty manager publishing to bus.
func New(cfg Config, bus *events.Bus) *Manager {
	return &Manager{
		Now:    time.Now,
		NewID:  uuid.NewString,
		cfg:    cfg,
		out:    events.NewSerial(bus),
		sieges: make(map[string]*Siege),
	}
}

func (m *Manager) now() time.Time {
	return m.Now().UTC()
}

// Config returns the tuning in effect.
func (m *Manager) Config() Config {
	return m.cfg
}

// ending carries a finished siege out of the lock so collaborators can be
// called without holding it.
type ending struct {
	id        string
	territory territory.ID
	outcome   Outcome
	winners   []social.FactionID
	losers    []social.FactionID
	attackers []social.FactionID
}

func validPlan(p Plan) error {
	if len(p.Attackers) == 0 || len(p.Defenders) == 0 {
		return fmt.Errorf("siege needs both sides: %w", fault.ErrInvalidTransition)
	}
	for _, f := range append(slices.Clone(p.Attackers), p.Defenders...) {
		if f == social.Neutral {
			return fmt.Errorf("neutral siege participant: %w", fault.ErrInvalidTransition)
		}
	}
	for _, f := range p.Attackers {
		if slices.Contains(p.Defenders, f) {
			return fmt.Errorf("faction %d on both sides: %w", f, fault.ErrInvalidTransition)
		}
	}
	if p.AttackerTickets <= 0 || p.DefenderTickets <= 0 {
		return fmt.Errorf("tickets %d/%d: %w", p.AttackerTickets, p.DefenderTickets, fault.ErrInvalidTransition)
	}
	return nil
}

// Start opens a siege from plan and returns its id. Extraction stages are
// run as Dynamic objectives.
func (m *Manager) Start(p Plan) (string, error) {
	if err := validPlan(p); err != nil {
		fault.Log("siege rejected", err)
		return "", err
	}
	var (
		id  string
		err error
	)
	m.out.Do(func() []events.Event {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.cfg.MaxActive > 0 && len(m.sieges) >= m.cfg.MaxActive {
			err = fmt.Errorf("%d sieges running: %w", len(m.sieges), fault.ErrOverLimit)
			return nil
		}
		now := m.now()
		s := &Siege{
			ID:              m.NewID(),
			Territory:       p.Territory,
			Attackers:       slices.Clone(p.Attackers),
			Defenders:       slices.Clone(p.Defenders),
			Phase:           PhaseProbe,
			PhaseStart:      now,
			dominanceReward: p.DominanceReward,
			ticketCost:      p.TicketCost,
			meter:           newMeter(m.cfg.Thresholds, m.cfg.DecayRate),
			lastTick:        now,
		}
		if s.dominanceReward == 0 {
			s.dominanceReward = m.cfg.DominanceReward
		}
		if s.ticketCost == 0 {
			s.ticketCost = m.cfg.TicketCost
		}
		s.pools[Attacker] = newPool(p.AttackerTickets, p.AttackerRate, m.cfg.AllowNegative)
		s.pools[Defender] = newPool(p.DefenderTickets, p.DefenderRate, m.cfg.AllowNegative)
		for ph := PhaseProbe; ph < PhaseLocked; ph++ {
			for _, st := range p.Stages[ph] {
				if st.Kind == StageExtraction {
					st.Kind = StageDynamic
				}
				st.Done, st.Failures = false, 0
				s.stages[ph] = append(s.stages[ph], st)
			}
		}
		m.sieges[s.ID] = s
		id = s.ID

		slog.Info("siege started",
			"siege", s.ID,
			"territory", s.Territory,
			"attackers", s.Attackers,
			"defenders", s.Defenders,
		)
		return []events.Event{events.PhaseChanged{Siege: s.ID, New: PhaseProbe.String()}}
	})
	if err != nil {
		fault.Log("siege rejected", err)
	}
	return id, err
}

// Get returns the view of a siege.
func (m *Manager) Get(id string) (View, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sieges[id]
	if !ok {
		return View{}, false
	}
	return s.view(), true
}

// All returns views of every siege ordered by id.
func (m *Manager) All() []View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]View, 0, len(m.sieges))
	for _, id := range m.idsLocked() {
		out = append(out, m.sieges[id].view())
	}
	return out
}

// Len returns the number of live sieges.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sieges)
}

func (m *Manager) idsLocked() []string {
	ids := make([]string, 0, len(m.sieges))
	for id := range m.sieges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// mutate runs fn on a running siege and settles its ending, if any, once
// every lock is released.
func (m *Manager) mutate(op, id string, fn func(s *Siege, now time.Time) ([]events.Event, error)) error {
	var (
		err error
		end *ending
	)
	m.out.Do(func() []events.Event {
		m.mu.Lock()
		defer m.mu.Unlock()
		s, ok := m.sieges[id]
		if !ok {
			err = fmt.Errorf("%s: siege %s: %w", op, id, fault.ErrNotFound)
			return nil
		}
		if s.Outcome != Ongoing {
			err = fmt.Errorf("%s: siege %s already ended: %w", op, id, fault.ErrInvalidTransition)
			return nil
		}
		now := m.now()
		evs, ferr := fn(s, now)
		if ferr != nil {
			err = fmt.Errorf("%s: siege %s: %w", op, id, ferr)
		}
		if s.Outcome != Ongoing && s.EndedAt.IsZero() {
			s.EndedAt = now
			end = &ending{
				id:        s.ID,
				territory: s.Territory,
				outcome:   s.Outcome,
				winners:   slices.Clone(s.winners()),
				losers:    slices.Clone(s.losers()),
				attackers: slices.Clone(s.Attackers),
			}
		}
		return evs
	})
	if err != nil {
		fault.Log("siege action ignored", err)
	}
	m.settle(end)
	return err
}

// CompleteStage marks a stage of the current phase done, rewards the
// attackers on the meter, and advances the phase once progress reaches the
// threshold.
func (m *Manager) CompleteStage(id, stage string) error {
	return m.mutate("complete stage", id, func(s *Siege, now time.Time) ([]events.Event, error) {
		st, ok := s.stage(stage)
		if !ok {
			return nil, fmt.Errorf("stage %q in %s: %w", stage, s.Phase, fault.ErrNotFound)
		}
		if st.Done {
			return nil, fmt.Errorf("stage %q already complete: %w", stage, fault.ErrInvalidTransition)
		}
		st.Done = true
		evs := s.meter.add(s.ID, s.dominanceReward, now)
		if s.Progress() >= m.cfg.PhaseThreshold {
			evs = append(evs, m.advanceLocked(s, now)...)
		}
		return evs, nil
	})
}

// FailStage charges the attackers for a failed attempt at a stage. The stage
// stays open for another attempt.
func (m *Manager) FailStage(id, stage string) error {
	return m.mutate("fail stage", id, func(s *Siege, now time.Time) ([]events.Event, error) {
		st, ok := s.stage(stage)
		if !ok {
			return nil, fmt.Errorf("stage %q in %s: %w", stage, s.Phase, fault.ErrNotFound)
		}
		if st.Done {
			return nil, fmt.Errorf("stage %q already complete: %w", stage, fault.ErrInvalidTransition)
		}
		st.Failures++
		return s.consume(Attacker, s.ticketCost), nil
	})
}

// Advance moves a siege past Dominate on command, or past an earlier phase
// whose progress already meets the threshold.
func (m *Manager) Advance(id string) error {
	return m.mutate("advance", id, func(s *Siege, now time.Time) ([]events.Event, error) {
		if s.Phase != PhaseDominate && s.Progress() < m.cfg.PhaseThreshold {
			return nil, fmt.Errorf("%s progress %.2f below %.2f: %w",
				s.Phase, s.Progress(), m.cfg.PhaseThreshold, fault.ErrInvalidTransition)
		}
		return m.advanceLocked(s, now), nil
	})
}

// AddDominance moves the meter by d through the active modifier.
func (m *Manager) AddDominance(id string, d float64) error {
	return m.mutate("add dominance", id, func(s *Siege, now time.Time) ([]events.Event, error) {
		return s.meter.add(s.ID, d, now), nil
	})
}

// ApplyModifier scales meter deltas by multiplier (at least 0.1) for d.
func (m *Manager) ApplyModifier(id string, multiplier float64, d time.Duration) error {
	return m.mutate("apply modifier", id, func(s *Siege, now time.Time) ([]events.Event, error) {
		s.meter.ApplyModifier(multiplier, d, now)
		return nil, nil
	})
}

// ConsumeTickets charges a side. The first side to run out loses.
func (m *Manager) ConsumeTickets(id string, side Side, amount int) error {
	return m.mutate("consume tickets", id, func(s *Siege, _ time.Time) ([]events.Event, error) {
		return s.consume(side, amount), nil
	})
}

// RefillTickets returns tickets to a side, capped at its initial pool.
func (m *Manager) RefillTickets(id string, side Side, amount int) error {
	return m.mutate("refill tickets", id, func(s *Siege, _ time.Time) ([]events.Event, error) {
		return s.pools[side].refill(s.ID, side, amount), nil
	})
}

func (s *Siege) consume(side Side, amount int) []events.Event {
	evs, exhausted := s.pools[side].consume(s.ID, side, amount)
	if exhausted && s.Outcome == Ongoing {
		if side == Attacker {
			s.Outcome = DefendersWon
		} else {
			s.Outcome = AttackersWon
		}
	}
	return evs
}

func (m *Manager) advanceLocked(s *Siege, now time.Time) []events.Event {
	old := s.Phase
	s.Phase++
	s.PhaseStart = now
	if s.Phase == PhaseLocked {
		s.LockEnd = now.Add(m.cfg.LockDuration)
		s.Outcome = AttackersWon
	}
	slog.Info("siege phase changed", "siege", s.ID, "old", old, "new", s.Phase)
	return []events.Event{events.PhaseChanged{Siege: s.ID, Old: old.String(), New: s.Phase.String()}}
}

// settle credits the winners through the collaborators.
func (m *Manager) settle(e *ending) {
	if e == nil {
		return
	}
	slog.Info("siege ended", "siege", e.id, "outcome", e.outcome, "winners", e.winners)

	if m.Trust != nil {
		for _, p := range victoryPairs(e.winners, e.losers) {
			if err := m.Trust.RecordSiegeVictory(p[0], p[1]); err != nil {
				fault.Log("siege victory not recorded", err, "siege", e.id, "a", p[0], "b", p[1])
			}
		}
	} else {
		slog.Debug("siege victory not recorded", "siege", e.id, "error", fault.ErrUnavailable)
	}
	if m.Progression != nil {
		for _, f := range e.winners {
			if err := m.Progression.UpdateReputation(f, m.cfg.VictoryReward, "siege"); err != nil {
				fault.Log("siege reward not applied", err, "siege", e.id, "faction", f)
			}
		}
	}
	if e.outcome != AttackersWon || !m.cfg.CaptureOnVictory || e.territory == 0 {
		return
	}
	if m.Territory == nil {
		slog.Debug("siege capture skipped", "siege", e.id, "error", fault.ErrUnavailable)
		return
	}
	ok, err := m.Territory.AttemptCapture(e.territory, e.attackers[0])
	if err != nil {
		fault.Log("siege capture failed", err, "siege", e.id, "territory", e.territory)
		return
	}
	slog.Info("siege capture", "siege", e.id, "territory", e.territory, "attacker", e.attackers[0], "captured", ok)
}

// victoryPairs pairs co-winners with each other. A sole winner is paired
// with every faction it defeated.
func victoryPairs(winners, losers []social.FactionID) [][2]social.FactionID {
	var out [][2]social.FactionID
	if len(winners) == 1 {
		for _, l := range losers {
			out = append(out, [2]social.FactionID{winners[0], l})
		}
		return out
	}
	for i, a := range winners {
		for _, b := range winners[i+1:] {
			out = append(out, [2]social.FactionID{a, b})
		}
	}
	return out
}

// Tick expires modifiers, decays meters, and disposes of finished sieges:
// Locked ones once their lock ends, others immediately. It returns how many
// were disposed.
func (m *Manager) Tick() int {
	var disposed int
	m.out.Do(func() []events.Event {
		m.mu.Lock()
		defer m.mu.Unlock()
		now := m.now()
		var evs []events.Event
		for _, id := range m.idsLocked() {
			s := m.sieges[id]
			switch {
			case s.Phase == PhaseLocked:
				if !now.Before(s.LockEnd) {
					delete(m.sieges, id)
					disposed++
					slog.Info("siege disposed", "siege", id)
				}
				continue
			case s.Outcome != Ongoing:
				delete(m.sieges, id)
				disposed++
				slog.Info("siege disposed", "siege", id)
				continue
			}
			s.meter.Modifier(now)
			if !s.lastTick.IsZero() {
				evs = append(evs, s.meter.decay(s.ID, now.Sub(s.lastTick))...)
			}
			s.lastTick = now
		}
		return evs
	})
	return disposed
}
