package progression

import (
	"sort"
	"time"

	"github.com/talgya/frontline/internal/social"
)

// Record is the persisted form of a faction's progression.
type Record struct {
	Faction               social.FactionID  `json:"faction"`
	Name                  string            `json:"name"`
	Reputation            float64           `json:"reputation"`
	Tier                  string            `json:"tier"`
	TerritoriesControlled int               `json:"territories_controlled"`
	TotalHours            float64           `json:"total_hours"`
	ResourceBonuses       map[string]int    `json:"resource_bonuses"`
	Unlocked              []string          `json:"unlocked"`
	AbilityKinds          map[string]string `json:"ability_kinds,omitempty"`
	ExtractionMul         float64           `json:"extraction_mul"`
	InfluenceMul          float64           `json:"influence_mul"`
	BalanceMul            float64           `json:"balance_mul"`
	LastUpdate            time.Time         `json:"last_update"`
}

// Archive is everything the engine persists.
type Archive struct {
	Factions   []Record    `json:"factions"`
	Objectives []Objective `json:"objectives"`
}

// Dump returns the engine's records in faction order.
func (e *Engine) Dump() Archive {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var a Archive
	for _, r := range e.factions {
		rec := Record{
			Faction:               r.snap.Faction,
			Name:                  r.snap.Name,
			Reputation:            r.snap.Reputation,
			Tier:                  r.snap.Tier.String(),
			TerritoriesControlled: r.snap.TerritoriesControlled,
			TotalHours:            r.snap.TotalHours,
			ResourceBonuses:       make(map[string]int, len(r.snap.ResourceBonuses)),
			Unlocked:              make([]string, 0, len(r.abilities)),
			ExtractionMul:         r.snap.ExtractionMul,
			InfluenceMul:          r.snap.InfluenceMul,
			BalanceMul:            r.snap.BalanceMul,
			LastUpdate:            r.snap.LastUpdate,
		}
		for res, n := range r.snap.ResourceBonuses {
			rec.ResourceBonuses[res.String()] = n
		}
		if len(r.abilities) > 0 {
			rec.AbilityKinds = make(map[string]string, len(r.abilities))
		}
		for id, kind := range r.abilities {
			rec.Unlocked = append(rec.Unlocked, id)
			rec.AbilityKinds[id] = kind.String()
		}
		sort.Strings(rec.Unlocked)
		a.Factions = append(a.Factions, rec)
	}
	sort.Slice(a.Factions, func(i, j int) bool { return a.Factions[i].Faction < a.Factions[j].Faction })

	for _, k := range e.objOrder {
		o := *e.objectives[k]
		o.Unlocks = append([]Ability(nil), o.Unlocks...)
		a.Objectives = append(a.Objectives, o)
	}
	return a
}

// Load replaces all progression state. No events are emitted; the
// territorial cache is refreshed on the next tick.
func (e *Engine) Load(a Archive) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.factions = make(map[social.FactionID]*record, len(a.Factions))
	for _, rec := range a.Factions {
		tier, _ := ParseTier(rec.Tier)
		r := &record{
			snap: Snapshot{
				Faction:               rec.Faction,
				Name:                  rec.Name,
				Reputation:            rec.Reputation,
				Tier:                  tier,
				TerritoriesControlled: rec.TerritoriesControlled,
				TotalHours:            rec.TotalHours,
				ResourceBonuses:       make(map[ResourceType]int, len(rec.ResourceBonuses)),
				ExtractionMul:         rec.ExtractionMul,
				InfluenceMul:          rec.InfluenceMul,
				BalanceMul:            rec.BalanceMul,
				LastUpdate:            rec.LastUpdate,
			},
			abilities: make(map[string]AbilityKind, len(rec.Unlocked)),
		}
		if r.snap.BalanceMul == 0 {
			r.snap.BalanceMul = 1
		}
		for name, n := range rec.ResourceBonuses {
			if res, ok := ParseResource(name); ok {
				r.snap.ResourceBonuses[res] = n
			}
		}
		for _, id := range rec.Unlocked {
			kind, _ := ParseAbilityKind(rec.AbilityKinds[id])
			r.abilities[id] = kind
		}
		e.factions[rec.Faction] = r
	}

	e.objectives = make(map[objKey]*Objective, len(a.Objectives))
	e.objOrder = e.objOrder[:0]
	for _, o := range a.Objectives {
		o := o
		o.Unlocks = append([]Ability(nil), o.Unlocks...)
		k := objKey{faction: o.Faction, id: o.ID}
		if _, dup := e.objectives[k]; dup {
			continue
		}
		e.objectives[k] = &o
		e.objOrder = append(e.objOrder, k)
	}

	e.cache, e.cacheAt = nil, time.Time{}
	e.cursor, e.ticks = 0, 0
}
