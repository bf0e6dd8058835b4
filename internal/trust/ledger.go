// Package trust keeps pairwise, symmetric trust between players and the
// diplomatic standing between factions, both shaped by where on the map the
// interactions happen.
package trust

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
	"github.com/talgya/frontline/internal/territory"
)

// Config holds trust tuning.
type Config struct {
	DecayInterval       time.Duration `yaml:"trust_decay_interval"`
	ContestedMultiplier float64       `yaml:"contested_multiplier"`
	EnemyMultiplier     float64       `yaml:"enemy_controlled_multiplier"`
	BetrayalMultiplier  float64       `yaml:"betrayal_multiplier"`
	AllianceFloor       float64       `yaml:"alliance_floor"`
	TrustIdle           time.Duration `yaml:"trust_idle_threshold"`
	CooperationIdle     time.Duration `yaml:"cooperation_idle_threshold"`
	DecayPerHour        float64       `yaml:"decay_per_hour"`
	MaxDecayRate        float64       `yaml:"max_decay_rate"`
	MaxSiegeBonus       float64       `yaml:"max_siege_bonus"`
	BreakPenalty        float64       `yaml:"alliance_break_penalty"`
	VictoryGain         float64       `yaml:"siege_victory_gain"`
}

// DefaultConfig returns the standard trust tuning.
func DefaultConfig() Config {
	return Config{
		DecayInterval:       10 * time.Second,
		ContestedMultiplier: 1.5,
		EnemyMultiplier:     1.25,
		BetrayalMultiplier:  1.8,
		AllianceFloor:       0.3,
		TrustIdle:           48 * time.Hour,
		CooperationIdle:     72 * time.Hour,
		DecayPerHour:        0.001,
		MaxDecayRate:        5,
		MaxSiegeBonus:       0.5,
		BreakPenalty:        0.3,
		VictoryGain:         0.05,
	}
}

const (
	pledgeInitial = 0.1
	pledgeStep    = 0.05
)

// Territories resolves where an interaction took place.
type Territories interface {
	Get(id territory.ID) (territory.Territory, bool)
}

// Record is the trust between two players. A is always the lower id.
type Record struct {
	A            social.PlayerID `json:"a"`
	B            social.PlayerID `json:"b"`
	Trust        float64         `json:"trust_index"`
	PledgeActive bool            `json:"pledge_active"`
	SiegeBonus   float64         `json:"siege_bonus"`
	BonusExpiry  time.Time       `json:"bonus_expiry"`
	Cooperation  float64         `json:"cooperation_score"`
	Betrayals    int             `json:"betrayal_count"`
	LastAction   time.Time       `json:"last_action"`
	DecayRate    float64         `json:"decay_rate"`
}

// Effective returns trust with the siege bonus applied, clipped to [-1, 1].
func (r Record) Effective(now time.Time) float64 {
	t := r.Trust
	if r.SiegeBonus > 0 && now.Before(r.BonusExpiry) {
		t += r.SiegeBonus
	}
	return geom.Clamp(t, -1, 1)
}

type pair struct {
	lo, hi social.PlayerID
}

func pairOf(a, b social.PlayerID) pair {
	if a > b {
		a, b = b, a
	}
	return pair{lo: a, hi: b}
}

// Ledger is the trust and diplomacy store.
type Ledger struct {
	Now         func() time.Time
	Territories Territories // optional; overlays are skipped without it

	cfg Config
	out *events.Serial

	mu        sync.RWMutex
	players   map[pair]*Record
	relations map[factionPair]*relation
}

// New creates an empty ledger.
func New(cfg Config, bus *events.Bus) *Ledger {
	return &Ledger{
		Now:       time.Now,
		cfg:       cfg,
		out:       events.NewSerial(bus),
		players:   make(map[pair]*Record),
		relations: make(map[factionPair]*relation),
	}
}

func (l *Ledger) now() time.Time {
	return l.Now().UTC()
}

// Get returns the record for a pair in either order.
func (l *Ledger) Get(a, b social.PlayerID) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.players[pairOf(a, b)]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Trust returns the raw trust of a pair, 0 when absent.
func (l *Ledger) Trust(a, b social.PlayerID) float64 {
	r, _ := l.Get(a, b)
	return r.Trust
}

// EffectiveTrust returns trust including any active siege bonus.
func (l *Ledger) EffectiveTrust(a, b social.PlayerID) float64 {
	r, ok := l.Get(a, b)
	if !ok {
		return 0
	}
	return r.Effective(l.now())
}

// Records returns copies of every player record, ordered by pair.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, 0, len(l.players))
	for _, r := range l.players {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// mutate runs fn on the pair's record, creating it first when absent, and
// publishes TrustChanged when the trust value moved.
func (l *Ledger) mutate(op string, a, b social.PlayerID, fn func(r *Record, created bool)) error {
	if a == b {
		err := fmt.Errorf("%s: player %d with itself: %w", op, a, fault.ErrInvalidTransition)
		fault.Log("trust update rejected", err)
		return err
	}
	l.out.Do(func() []events.Event {
		l.mu.Lock()
		defer l.mu.Unlock()
		k := pairOf(a, b)
		r, ok := l.players[k]
		if !ok {
			r = &Record{A: k.lo, B: k.hi, DecayRate: 1}
			l.players[k] = r
		}
		before := r.Trust
		fn(r, !ok)
		r.Trust = geom.Clamp(r.Trust, -1, 1)
		r.LastAction = l.now()
		if r.Trust == before && ok {
			return nil
		}
		return []events.Event{events.TrustChanged{A: r.A, B: r.B, Trust: r.Trust}}
	})
	return nil
}

// RecordPledge creates the pair at +0.1 with an active pledge, or renews the
// pledge and adds +0.05.
func (l *Ledger) RecordPledge(a, b social.PlayerID) error {
	return l.mutate("record pledge", a, b, func(r *Record, created bool) {
		if created {
			r.Trust = pledgeInitial
		} else {
			r.Trust += pledgeStep
		}
		r.PledgeActive = true
	})
}

// RecordParley shifts trust by delta.
func (l *Ledger) RecordParley(a, b social.PlayerID, delta float64) error {
	return l.mutate("record parley", a, b, func(r *Record, _ bool) {
		r.Trust += delta
	})
}

// RecordBreach subtracts |penalty| and ends any pledge.
func (l *Ledger) RecordBreach(a, b social.PlayerID, penalty float64) error {
	return l.mutate("record breach", a, b, func(r *Record, _ bool) {
		r.Trust -= math.Abs(penalty)
		r.PledgeActive = false
	})
}

// ApplySiegeTrustBonus overlays a temporary bonus in [0, 0.5] on the pair.
func (l *Ledger) ApplySiegeTrustBonus(a, b social.PlayerID, bonus float64, d time.Duration) error {
	return l.mutate("siege trust bonus", a, b, func(r *Record, _ bool) {
		r.SiegeBonus = geom.Clamp(bonus, 0, l.cfg.MaxSiegeBonus)
		r.BonusExpiry = l.now().Add(d)
	})
}

// site describes where an interaction took place relative to a faction.
type site struct {
	contested  bool
	controlled bool
	enemy      bool
}

func (l *Ledger) siteOf(where territory.ID, faction social.FactionID) site {
	if l.Territories == nil {
		slog.Debug("territory lookup not configured, overlay skipped", "territory", where)
		return site{}
	}
	t, ok := l.Territories.Get(where)
	if !ok {
		return site{}
	}
	return site{
		contested:  t.Contested,
		controlled: t.Controller != social.Neutral,
		enemy:      t.Controller != social.Neutral && t.Controller != faction,
	}
}

// RecordCooperation raises trust by gain, boosted when the cooperation happened
// on contested ground (×1.5) or behind enemy lines (×1.25). faction is the
// side the two players fought for.
func (l *Ledger) RecordCooperation(a, b social.PlayerID, faction social.FactionID, where territory.ID, gain float64) error {
	s := l.siteOf(where, faction)
	mul := 1.0
	switch {
	case s.contested:
		mul = l.cfg.ContestedMultiplier
	case s.enemy:
		mul = l.cfg.EnemyMultiplier
	}
	g := math.Abs(gain) * mul
	return l.mutate("record cooperation", a, b, func(r *Record, _ bool) {
		r.Trust += g
		r.Cooperation += g
	})
}

// RecordBetrayal lowers trust by penalty. Inside controlled territory the
// penalty is ×1.8 and the pair's decay rate escalates with its betrayal count.
func (l *Ledger) RecordBetrayal(a, b social.PlayerID, where territory.ID, penalty float64) error {
	s := l.siteOf(where, social.Neutral)
	p := math.Abs(penalty)
	if s.controlled {
		p *= l.cfg.BetrayalMultiplier
	}
	return l.mutate("record betrayal", a, b, func(r *Record, _ bool) {
		r.Trust -= p
		r.PledgeActive = false
		r.Betrayals++
		if s.controlled {
			r.DecayRate = geom.Clamp(1+0.5*float64(r.Betrayals), 1, l.cfg.MaxDecayRate)
		}
	})
}

// Tick applies idle decay, bonus expiry, and alliance countdowns for an
// elapsed dt.
func (l *Ledger) Tick(dt time.Duration) {
	if dt <= 0 {
		return
	}
	l.out.Do(func() []events.Event {
		l.mu.Lock()
		defer l.mu.Unlock()
		now := l.now()
		evs := l.decayPlayersLocked(now, dt)
		return append(evs, l.tickAlliancesLocked(dt)...)
	})
}

func (l *Ledger) decayPlayersLocked(now time.Time, dt time.Duration) []events.Event {
	keys := make([]pair, 0, len(l.players))
	for k := range l.players {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].lo != keys[j].lo {
			return keys[i].lo < keys[j].lo
		}
		return keys[i].hi < keys[j].hi
	})

	var evs []events.Event
	for _, k := range keys {
		r := l.players[k]
		before := r.Trust
		idle := now.Sub(r.LastAction)

		if idle > l.cfg.TrustIdle && r.Trust != 0 {
			amount := idle.Hours() * l.cfg.DecayPerHour * r.DecayRate * dt.Hours()
			if r.Trust > 0 {
				r.Trust = math.Max(0, r.Trust-amount)
			} else {
				r.Trust = math.Min(0, r.Trust+amount/2)
			}
		}
		if idle > l.cfg.CooperationIdle && r.Cooperation > 0 {
			amount := idle.Hours() * l.cfg.DecayPerHour / 2 * dt.Hours()
			r.Cooperation = math.Max(0, r.Cooperation-amount)
		}

		expired := false
		if r.SiegeBonus > 0 && !now.Before(r.BonusExpiry) {
			r.SiegeBonus = 0
			r.BonusExpiry = time.Time{}
			expired = true
		}
		if r.Trust != before || expired {
			evs = append(evs, events.TrustChanged{A: r.A, B: r.B, Trust: r.Trust})
		}
	}
	return evs
}
