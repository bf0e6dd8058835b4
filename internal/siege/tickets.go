package siege

import (
	"math"

	"github.com/talgya/frontline/internal/events"
)

// Side is one party of a siege.
type Side uint8

const (
	Attacker Side = iota
	Defender
)

func (s Side) String() string {
	if s == Defender {
		return "defender"
	}
	return "attacker"
}

// ParseSide maps "attacker" or "defender" to a Side.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "attacker":
		return Attacker, true
	case "defender":
		return Defender, true
	}
	return Attacker, false
}

func (s Side) other() Side {
	if s == Attacker {
		return Defender
	}
	return Attacker
}

// Pool is one side's ticket counter.
type Pool struct {
	Initial       int
	Remaining     int
	Rate          float64
	AllowNegative bool
	exhausted     bool
}

func newPool(initial int, rate float64, allowNegative bool) *Pool {
	if rate <= 0 {
		rate = 1
	}
	return &Pool{Initial: initial, Remaining: initial, Rate: rate, AllowNegative: allowNegative}
}

// consume removes amount × Rate tickets. It reports whether this call
// exhausted the pool.
func (p *Pool) consume(siege string, side Side, amount int) ([]events.Event, bool) {
	if amount <= 0 {
		return nil, false
	}
	n := int(math.Round(float64(amount) * p.Rate))
	before := p.Remaining
	p.Remaining -= n
	if p.Remaining < 0 && !p.AllowNegative {
		p.Remaining = 0
	}
	evs := []events.Event{events.TicketsConsumed{
		Siege: siege, Side: side.String(), Amount: before - p.Remaining, Remaining: p.Remaining,
	}}
	if before > 0 && p.Remaining <= 0 && !p.exhausted {
		p.exhausted = true
		evs = append(evs, events.TicketsExhausted{Siege: siege, Side: side.String()})
		return evs, true
	}
	return evs, false
}

// refill adds tickets up to Initial.
func (p *Pool) refill(siege string, side Side, amount int) []events.Event {
	if amount <= 0 || p.Remaining >= p.Initial {
		return nil
	}
	p.Remaining = min(p.Remaining+amount, p.Initial)
	if p.Remaining > 0 {
		p.exhausted = false
	}
	return []events.Event{events.TicketsRefilled{Siege: siege, Side: side.String(), Remaining: p.Remaining}}
}
