package trust

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/geom"
	"github.com/talgya/frontline/internal/social"
)

type factionPair struct {
	lo, hi social.FactionID
}

func factionPairOf(a, b social.FactionID) factionPair {
	if a > b {
		a, b = b, a
	}
	return factionPair{lo: a, hi: b}
}

type relation struct {
	value           float64
	sharedVictories int
	allied          bool
	remaining       time.Duration
}

// Relation is a read copy of the standing between two factions.
type Relation struct {
	A                 social.FactionID `json:"a"`
	B                 social.FactionID `json:"b"`
	Value             float64          `json:"value"`
	SharedVictories   int              `json:"shared_victories"`
	Allied            bool             `json:"allied"`
	AllianceRemaining time.Duration    `json:"alliance_remaining_ns"`
}

func (l *Ledger) relationLocked(a, b social.FactionID) *relation {
	k := factionPairOf(a, b)
	r, ok := l.relations[k]
	if !ok {
		r = &relation{}
		l.relations[k] = r
	}
	return r
}

func validFactions(op string, a, b social.FactionID) error {
	if a == social.Neutral || b == social.Neutral || a == b {
		return fmt.Errorf("%s %d-%d: %w", op, a, b, fault.ErrInvalidTransition)
	}
	return nil
}

// Relation returns the standing between two factions (0 when never set).
func (l *Ledger) Relation(a, b social.FactionID) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if r, ok := l.relations[factionPairOf(a, b)]; ok {
		return r.value
	}
	return 0
}

// Relations returns every faction pair the ledger knows, ordered by pair.
func (l *Ledger) Relations() []Relation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Relation, 0, len(l.relations))
	for k, r := range l.relations {
		out = append(out, Relation{
			A:                 k.lo,
			B:                 k.hi,
			Value:             r.value,
			SharedVictories:   r.sharedVictories,
			Allied:            r.allied,
			AllianceRemaining: r.remaining,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// Allied reports whether two factions hold a siege alliance.
func (l *Ledger) Allied(a, b social.FactionID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.relations[factionPairOf(a, b)]
	return ok && r.allied
}

// SetFactionRelation sets the standing between two factions, clipped to [-1, 1].
func (l *Ledger) SetFactionRelation(a, b social.FactionID, value float64) error {
	if err := validFactions("set faction relation", a, b); err != nil {
		fault.Log("relation rejected", err)
		return err
	}
	l.out.Do(func() []events.Event {
		l.mu.Lock()
		defer l.mu.Unlock()
		r := l.relationLocked(a, b)
		r.value = geom.Clamp(value, -1, 1)
		k := factionPairOf(a, b)
		return []events.Event{events.FactionRelationChanged{A: k.lo, B: k.hi, Value: r.value}}
	})
	return nil
}

// FormSiegeAlliance allies two factions for d. The relation must be at least
// the alliance floor. Forming an existing alliance extends it.
func (l *Ledger) FormSiegeAlliance(a, b social.FactionID, d time.Duration) error {
	if err := validFactions("form siege alliance", a, b); err != nil {
		fault.Log("alliance rejected", err)
		return err
	}
	var err error
	l.out.Do(func() []events.Event {
		l.mu.Lock()
		defer l.mu.Unlock()
		r := l.relationLocked(a, b)
		if r.value < l.cfg.AllianceFloor {
			err = fmt.Errorf("form siege alliance %d-%d: relation %.2f below %.2f: %w",
				a, b, r.value, l.cfg.AllianceFloor, fault.ErrThresholdViolation)
			return nil
		}
		r.remaining = max(r.remaining, d)
		if r.allied {
			return nil
		}
		r.allied = true
		k := factionPairOf(a, b)
		slog.Info("siege alliance formed", "a", k.lo, "b", k.hi, "duration", d)
		return []events.Event{events.SiegeAllianceFormed{A: k.lo, B: k.hi}}
	})
	if err != nil {
		fault.Log("alliance rejected", err)
	}
	return err
}

// BreakSiegeAlliance ends an alliance early, costing the relation 0.3.
func (l *Ledger) BreakSiegeAlliance(a, b social.FactionID) error {
	if err := validFactions("break siege alliance", a, b); err != nil {
		fault.Log("alliance break rejected", err)
		return err
	}
	var err error
	l.out.Do(func() []events.Event {
		l.mu.Lock()
		defer l.mu.Unlock()
		r, ok := l.relations[factionPairOf(a, b)]
		if !ok || !r.allied {
			err = fmt.Errorf("break siege alliance %d-%d: not allied: %w", a, b, fault.ErrInvalidTransition)
			return nil
		}
		r.allied, r.remaining = false, 0
		r.value = geom.Clamp(r.value-l.cfg.BreakPenalty, -1, 1)
		k := factionPairOf(a, b)
		slog.Info("siege alliance broken", "a", k.lo, "b", k.hi, "relation", fmt.Sprintf("%.3f", r.value))
		return []events.Event{
			events.FactionRelationChanged{A: k.lo, B: k.hi, Value: r.value},
			events.SiegeAllianceBroken{A: k.lo, B: k.hi},
		}
	})
	if err != nil {
		fault.Log("alliance break rejected", err)
	}
	return err
}

// RecordSiegeVictory credits a siege victory between two factions: co-winners,
// or a sole winner and a side it defeated.
func (l *Ledger) RecordSiegeVictory(a, b social.FactionID) error {
	if err := validFactions("record siege victory", a, b); err != nil {
		fault.Log("victory not recorded", err)
		return err
	}
	l.out.Do(func() []events.Event {
		l.mu.Lock()
		defer l.mu.Unlock()
		r := l.relationLocked(a, b)
		r.sharedVictories++
		r.value = geom.Clamp(r.value+l.cfg.VictoryGain, -1, 1)
		k := factionPairOf(a, b)
		return []events.Event{events.FactionRelationChanged{A: k.lo, B: k.hi, Value: r.value}}
	})
	return nil
}

// SharedVictories returns how many sieges two factions won together.
func (l *Ledger) SharedVictories(a, b social.FactionID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if r, ok := l.relations[factionPairOf(a, b)]; ok {
		return r.sharedVictories
	}
	return 0
}

func (l *Ledger) tickAlliancesLocked(dt time.Duration) []events.Event {
	var keys []factionPair
	for k, r := range l.relations {
		if r.allied {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].lo != keys[j].lo {
			return keys[i].lo < keys[j].lo
		}
		return keys[i].hi < keys[j].hi
	})

	var evs []events.Event
	for _, k := range keys {
		r := l.relations[k]
		r.remaining -= dt
		if r.remaining > 0 {
			continue
		}
		r.allied, r.remaining = false, 0
		slog.Info("siege alliance expired", "a", k.lo, "b", k.hi)
		evs = append(evs, events.SiegeAllianceBroken{A: k.lo, B: k.hi})
	}
	return evs
}
