package trust

import (
	"time"

	"github.com/talgya/frontline/internal/social"
)

// RelationRecord is the persisted form of a faction relation.
type RelationRecord struct {
	A                 social.FactionID `json:"a"`
	B                 social.FactionID `json:"b"`
	Value             float64          `json:"value"`
	SharedVictories   int              `json:"shared_victories"`
	Allied            bool             `json:"allied"`
	AllianceRemaining time.Duration    `json:"alliance_remaining_ns"`
}

// Archive is everything the ledger persists.
type Archive struct {
	Players   []Record         `json:"players"`
	Relations []RelationRecord `json:"relations"`
}

// Dump returns the ledger's records in pair order.
func (l *Ledger) Dump() Archive {
	a := Archive{Players: l.Records()}
	for _, r := range l.Relations() {
		a.Relations = append(a.Relations, RelationRecord(r))
	}
	return a
}

// Load replaces the ledger's contents. No events are emitted.
func (l *Ledger) Load(a Archive) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.players = make(map[pair]*Record, len(a.Players))
	for _, r := range a.Players {
		r := r
		k := pairOf(r.A, r.B)
		r.A, r.B = k.lo, k.hi
		if r.DecayRate == 0 {
			r.DecayRate = 1
		}
		l.players[k] = &r
	}
	l.relations = make(map[factionPair]*relation, len(a.Relations))
	for _, r := range a.Relations {
		l.relations[factionPairOf(r.A, r.B)] = &relation{
			value:           r.Value,
			sharedVictories: r.SharedVictories,
			allied:          r.Allied,
			remaining:       r.AllianceRemaining,
		}
	}
}

// Seed sets the starting faction relations without publishing.
func (l *Ledger) Seed(rs []social.Relation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rs {
		if r.A == r.B || r.A == social.Neutral || r.B == social.Neutral {
			continue
		}
		l.relationLocked(r.A, r.B).value = r.Value
	}
}
