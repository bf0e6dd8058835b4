package siege

import (
	"math"
	"time"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/geom"
)

// Meter is a siege's dominance meter: 0 is a full defender hold, 1 a full
// attacker hold. Not safe for concurrent use; the Manager guards it.
type Meter struct {
	value      float64
	thresholds []float64
	above      []bool // value ≥ thresholds[i] at the last settle
	terminal   bool

	modifier      float64
	modifierUntil time.Time
	decayRate     float64 // per second, toward Equilibrium
}

// Equilibrium is the meter's starting and resting value.
const Equilibrium = 0.5

const minModifier = 0.1

func newMeter(thresholds []float64, decayRate float64) *Meter {
	m := &Meter{
		value:      Equilibrium,
		thresholds: append([]float64(nil), thresholds...),
		above:      make([]bool, len(thresholds)),
		modifier:   1,
		decayRate:  decayRate,
	}
	for i, th := range m.thresholds {
		m.above[i] = m.value >= th
	}
	return m
}

// Value returns the current dominance.
func (m *Meter) Value() float64 { return m.value }

// Modifier returns the multiplier active at now.
func (m *Meter) Modifier(now time.Time) float64 {
	if m.modifier != 1 && !now.Before(m.modifierUntil) {
		m.modifier = 1
	}
	return m.modifier
}

// ApplyModifier scales deltas by multiplier until now+d.
func (m *Meter) ApplyModifier(multiplier float64, d time.Duration, now time.Time) {
	m.modifier = math.Max(multiplier, minModifier)
	m.modifierUntil = now.Add(d)
}

// add applies d through the active modifier and returns the events of the
// change.
func (m *Meter) add(siege string, d float64, now time.Time) []events.Event {
	return m.set(siege, m.value+d*m.Modifier(now))
}

// decay drifts the meter toward Equilibrium over dt.
func (m *Meter) decay(siege string, dt time.Duration) []events.Event {
	if m.decayRate <= 0 || m.value == Equilibrium {
		return nil
	}
	step := m.decayRate * dt.Seconds()
	next := m.value
	if m.value > Equilibrium {
		next = math.Max(Equilibrium, m.value-step)
	} else {
		next = math.Min(Equilibrium, m.value+step)
	}
	return m.set(siege, next)
}

func (m *Meter) set(siege string, next float64) []events.Event {
	next = geom.Clamp(next, 0, 1)
	old := m.value
	if next == old {
		return nil
	}
	m.value = next
	evs := []events.Event{events.DominanceChanged{Siege: siege, Old: old, New: next}}

	for i, th := range m.thresholds {
		up := next >= th
		if up != m.above[i] {
			m.above[i] = up
			evs = append(evs, events.DominanceThresholdReached{Siege: siege, Threshold: th, Rising: up})
		}
	}

	atEnd := next == 0 || next == 1
	if atEnd && !m.terminal {
		evs = append(evs, events.DominanceComplete{Siege: siege, Value: next})
	}
	m.terminal = atEnd
	return evs
}
