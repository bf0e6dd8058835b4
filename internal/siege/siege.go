// Package siege runs siege encounters: a phase machine fed by objective
// stages, a dominance meter, and attacker/defender ticket pools.
package siege

import (
	"fmt"
	"time"

	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// Phase is a siege's position in Probe → Interdict → Dominate → Locked.
type Phase uint8

const (
	PhaseProbe Phase = iota
	PhaseInterdict
	PhaseDominate
	PhaseLocked
)

var phaseNames = [...]string{"probe", "interdict", "dominate", "locked"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, bool) {
	for i, n := range phaseNames {
		if n == s {
			return Phase(i), true
		}
	}
	return PhaseProbe, false
}

// StageKind classifies an objective stage.
type StageKind uint8

const (
	StageBriefing StageKind = iota
	StageDeployment
	StagePrimary
	StageSecondary
	StageDynamic
	StageExtraction
	StageCompleted
	StageFailed
)

var stageNames = [...]string{
	"briefing", "deployment", "primary", "secondary",
	"dynamic", "extraction", "completed", "failed",
}

func (k StageKind) String() string {
	if int(k) < len(stageNames) {
		return stageNames[k]
	}
	return "unknown"
}

func (k StageKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *StageKind) UnmarshalText(b []byte) error {
	v, ok := ParseStageKind(string(b))
	if !ok {
		return fmt.Errorf("unknown stage kind %q", b)
	}
	*k = v
	return nil
}

// ParseStageKind is the inverse of StageKind.String.
func ParseStageKind(s string) (StageKind, bool) {
	for i, n := range stageNames {
		if n == s {
			return StageKind(i), true
		}
	}
	return StagePrimary, false
}

// Stage is one objective of a phase.
type Stage struct {
	ID       string    `json:"id"`
	Kind     StageKind `json:"kind"`
	Done     bool      `json:"done"`
	Failures int       `json:"failures"`
}

// Plan describes a siege before it starts. Zero rewards and costs fall back
// to the manager's Config.
type Plan struct {
	Territory       territory.ID       `json:"bound_territory"`
	Attackers       []social.FactionID `json:"attackers"`
	Defenders       []social.FactionID `json:"defenders"`
	Stages          map[Phase][]Stage  `json:"-"`
	DominanceReward float64            `json:"dominance_reward"`
	TicketCost      int                `json:"ticket_cost"`
	AttackerTickets int                `json:"attacker_tickets"`
	DefenderTickets int                `json:"defender_tickets"`
	AttackerRate    float64            `json:"attacker_rate"`
	DefenderRate    float64            `json:"defender_rate"`
}

// Outcome is how a siege ended.
type Outcome uint8

const (
	Ongoing Outcome = iota
	AttackersWon
	DefendersWon
)

var outcomeNames = [...]string{"ongoing", "attackers_won", "defenders_won"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

func parseOutcome(s string) Outcome {
	for i, n := range outcomeNames {
		if n == s {
			return Outcome(i)
		}
	}
	return Ongoing
}

// Siege is one live encounter. The Manager owns and guards it.
type Siege struct {
	ID        string
	Territory territory.ID
	Attackers []social.FactionID
	Defenders []social.FactionID

	Phase      Phase
	PhaseStart time.Time
	LockEnd    time.Time
	Outcome    Outcome
	EndedAt    time.Time

	stages          [PhaseLocked][]Stage
	dominanceReward float64
	ticketCost      int
	meter           *Meter
	pools           [2]*Pool
	lastTick        time.Time
}

// Progress is the fraction of the current phase's stages completed. A phase
// without stages counts as complete.
func (s *Siege) Progress() float64 {
	if s.Phase == PhaseLocked {
		return 1
	}
	list := s.stages[s.Phase]
	if len(list) == 0 {
		return 1
	}
	done := 0
	for _, st := range list {
		if st.Done {
			done++
		}
	}
	return float64(done) / float64(len(list))
}

func (s *Siege) stage(id string) (*Stage, bool) {
	if s.Phase == PhaseLocked {
		return nil, false
	}
	list := s.stages[s.Phase]
	for i := range list {
		if list[i].ID == id {
			return &list[i], true
		}
	}
	return nil, false
}

func (s *Siege) winners() []social.FactionID {
	switch s.Outcome {
	case AttackersWon:
		return s.Attackers
	case DefendersWon:
		return s.Defenders
	}
	return nil
}

func (s *Siege) losers() []social.FactionID {
	switch s.Outcome {
	case AttackersWon:
		return s.Defenders
	case DefendersWon:
		return s.Attackers
	}
	return nil
}

// View is the replicated, read-only state of a siege.
type View struct {
	ID              string             `json:"id"`
	Territory       territory.ID       `json:"bound_territory"`
	Attackers       []social.FactionID `json:"attackers"`
	Defenders       []social.FactionID `json:"defenders"`
	Phase           string             `json:"phase"`
	Progress        float64            `json:"progress"`
	Dominance       float64            `json:"dominance"`
	AttackerTickets int                `json:"attacker_tickets"`
	DefenderTickets int                `json:"defender_tickets"`
	Stages          []Stage            `json:"stages"`
	PhaseStart      time.Time          `json:"phase_start"`
	LockEnd         time.Time          `json:"lock_end"`
	Outcome         string             `json:"outcome"`
}

func (s *Siege) view() View {
	v := View{
		ID:              s.ID,
		Territory:       s.Territory,
		Attackers:       append([]social.FactionID(nil), s.Attackers...),
		Defenders:       append([]social.FactionID(nil), s.Defenders...),
		Phase:           s.Phase.String(),
		Progress:        s.Progress(),
		Dominance:       s.meter.Value(),
		AttackerTickets: s.pools[Attacker].Remaining,
		DefenderTickets: s.pools[Defender].Remaining,
		PhaseStart:      s.PhaseStart,
		LockEnd:         s.LockEnd,
		Outcome:         s.Outcome.String(),
	}
	if s.Phase != PhaseLocked {
		v.Stages = append([]Stage(nil), s.stages[s.Phase]...)
	}
	return v
}
