package siege

import (
	"time"

	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// Participants lists the factions on each side.
type Participants struct {
	Attackers []social.FactionID `json:"attackers"`
	Defenders []social.FactionID `json:"defenders"`
}

// PoolRecord is the persisted form of a ticket pool.
type PoolRecord struct {
	Initial   int     `json:"initial"`
	Remaining int     `json:"remaining"`
	Rate      float64 `json:"rate"`
}

// Record is the persisted form of a siege.
type Record struct {
	ID              string             `json:"id"`
	Phase           string             `json:"phase"`
	Progress        float64            `json:"progress"`
	Dominance       float64            `json:"dominance"`
	AttackerTickets PoolRecord         `json:"attacker_tickets"`
	DefenderTickets PoolRecord         `json:"defender_tickets"`
	PhaseStart      time.Time          `json:"phase_start"`
	LockEnd         time.Time          `json:"lock_end"`
	Factions        Participants       `json:"participating_factions"`
	Territory       territory.ID       `json:"bound_territory"`
	Stages          map[string][]Stage `json:"stages"`
	Outcome         string             `json:"outcome"`
	EndedAt         time.Time          `json:"ended_at"`
	DominanceReward float64            `json:"dominance_reward"`
	TicketCost      int                `json:"ticket_cost"`
	Modifier        float64            `json:"modifier"`
	ModifierUntil   time.Time          `json:"modifier_until"`
}

func poolRecord(p *Pool) PoolRecord {
	return PoolRecord{Initial: p.Initial, Remaining: p.Remaining, Rate: p.Rate}
}

// Dump returns a record per siege ordered by id.
func (m *Manager) Dump() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.sieges))
	for _, id := range m.idsLocked() {
		s := m.sieges[id]
		rec := Record{
			ID:              s.ID,
			Phase:           s.Phase.String(),
			Progress:        s.Progress(),
			Dominance:       s.meter.value,
			AttackerTickets: poolRecord(s.pools[Attacker]),
			DefenderTickets: poolRecord(s.pools[Defender]),
			PhaseStart:      s.PhaseStart,
			LockEnd:         s.LockEnd,
			Factions: Participants{
				Attackers: append([]social.FactionID(nil), s.Attackers...),
				Defenders: append([]social.FactionID(nil), s.Defenders...),
			},
			Territory:       s.Territory,
			Stages:          make(map[string][]Stage),
			Outcome:         s.Outcome.String(),
			EndedAt:         s.EndedAt,
			DominanceReward: s.dominanceReward,
			TicketCost:      s.ticketCost,
			Modifier:        s.meter.modifier,
			ModifierUntil:   s.meter.modifierUntil,
		}
		for ph := PhaseProbe; ph < PhaseLocked; ph++ {
			if len(s.stages[ph]) > 0 {
				rec.Stages[ph.String()] = append([]Stage(nil), s.stages[ph]...)
			}
		}
		out = append(out, rec)
	}
	return out
}

// Load replaces every siege. Threshold and exhaustion state is derived from
// the restored values, so no events fire for them later.
func (m *Manager) Load(recs []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sieges = make(map[string]*Siege, len(recs))
	for _, rec := range recs {
		phase, _ := ParsePhase(rec.Phase)
		s := &Siege{
			ID:              rec.ID,
			Territory:       rec.Territory,
			Attackers:       append([]social.FactionID(nil), rec.Factions.Attackers...),
			Defenders:       append([]social.FactionID(nil), rec.Factions.Defenders...),
			Phase:           phase,
			PhaseStart:      rec.PhaseStart,
			LockEnd:         rec.LockEnd,
			Outcome:         parseOutcome(rec.Outcome),
			EndedAt:         rec.EndedAt,
			dominanceReward: rec.DominanceReward,
			ticketCost:      rec.TicketCost,
			meter:           newMeter(m.cfg.Thresholds, m.cfg.DecayRate),
		}
		s.meter.value = rec.Dominance
		for i, th := range s.meter.thresholds {
			s.meter.above[i] = rec.Dominance >= th
		}
		s.meter.terminal = rec.Dominance == 0 || rec.Dominance == 1
		if rec.Modifier > 0 {
			s.meter.modifier = rec.Modifier
			s.meter.modifierUntil = rec.ModifierUntil
		}
		for i, pr := range []PoolRecord{rec.AttackerTickets, rec.DefenderTickets} {
			p := newPool(pr.Initial, pr.Rate, m.cfg.AllowNegative)
			p.Remaining = pr.Remaining
			p.exhausted = pr.Remaining <= 0
			s.pools[i] = p
		}
		for ph := PhaseProbe; ph < PhaseLocked; ph++ {
			s.stages[ph] = append([]Stage(nil), rec.Stages[ph.String()]...)
		}
		m.sieges[s.ID] = s
	}
}
