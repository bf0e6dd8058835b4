package progression

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

// Config holds progression tuning.
type Config struct {
	BatchInterval         time.Duration      `yaml:"batch_processing_interval"`
	CacheRefresh          time.Duration      `yaml:"cache_refresh_interval"`
	MaxBatchSize          int                `yaml:"max_batch_size"`
	BaseReputationPerHour float64            `yaml:"base_reputation_per_hour"`
	TierThresholds        map[string]float64 `yaml:"tier_thresholds"`
	ResourceMultipliers   map[string]float64 `yaml:"resource_type_multipliers"`
	BroadcastThreshold    float64            `yaml:"broadcast_threshold"`
	Budget                time.Duration      `yaml:"progression_budget"`
}

// DefaultConfig returns the standard progression tuning.
func DefaultConfig() Config {
	return Config{
		BatchInterval:         5 * time.Second,
		CacheRefresh:          15 * time.Second,
		MaxBatchSize:          50,
		BaseReputationPerHour: 10,
		TierThresholds: map[string]float64{
			"recruit":   0,
			"veteran":   1000,
			"elite":     2500,
			"commander": 5000,
			"warlord":   10000,
		},
		ResourceMultipliers: map[string]float64{
			"strategic":  2.0,
			"military":   1.5,
			"research":   1.5,
			"industrial": 1.2,
			"economic":   1.0,
		},
		BroadcastThreshold: 50,
		Budget:             16 * time.Millisecond,
	}
}

const (
	minBalanceMul = 0.5
	maxBalanceMul = 1.5
)

type record struct {
	snap      Snapshot
	abilities map[string]AbilityKind
	lastTick  uint64 // 0 = never batched
}

type objKey struct {
	faction social.FactionID
	id      string
}

type codexCall struct {
	faction social.FactionID
	ability string
}

// Engine is the progression engine. Reads return copies; mutators take the
// write lock and publish after releasing it.
type Engine struct {
	Now   func() time.Time
	Codex Codex // optional

	cfg        Config
	thresholds [tierCount]float64
	resMul     [resourceCount]float64
	src        TerritorySource
	roster     social.Roster
	out        *events.Serial

	mu         sync.RWMutex
	factions   map[social.FactionID]*record
	objectives map[objKey]*Objective
	objOrder   []objKey
	cache      []territory.Territory
	cacheAt    time.Time
	cursor     int
	ticks      uint64
	perf       perfRing
}

// New creates a progression engine reading territories from src.
func New(cfg Config, bus *events.Bus, src TerritorySource, roster social.Roster) *Engine {
	e := &Engine{
		Now:        time.Now,
		cfg:        cfg,
		src:        src,
		roster:     roster,
		out:        events.NewSerial(bus),
		factions:   make(map[social.FactionID]*record),
		objectives: make(map[objKey]*Objective),
	}

	def := DefaultConfig()
	for i := Tier(0); i < tierCount; i++ {
		e.thresholds[i] = def.TierThresholds[i.String()]
		if v, ok := cfg.TierThresholds[i.String()]; ok {
			e.thresholds[i] = v
		}
	}
	for r := ResourceType(0); r < resourceCount; r++ {
		e.resMul[r] = def.ResourceMultipliers[r.String()]
		if v, ok := cfg.ResourceMultipliers[r.String()]; ok {
			e.resMul[r] = v
		}
	}
	return e
}

func (e *Engine) now() time.Time {
	return e.Now().UTC()
}

func (e *Engine) baseline(f social.FactionID) Snapshot {
	return Snapshot{
		Faction:         f,
		Name:            e.roster.Name(f),
		Tier:            TierRecruit,
		ResourceBonuses: make(map[ResourceType]int),
		Unlocked:        []string{},
		ExtractionMul:   1,
		InfluenceMul:    1,
		BalanceMul:      1,
	}
}

func (e *Engine) recordLocked(f social.FactionID) *record {
	r, ok := e.factions[f]
	if !ok {
		r = &record{snap: e.baseline(f), abilities: make(map[string]AbilityKind)}
		e.factions[f] = r
	}
	return r
}

func (r *record) copy() Snapshot {
	s := r.snap
	s.ResourceBonuses = maps.Clone(r.snap.ResourceBonuses)
	s.Unlocked = make([]string, 0, len(r.abilities))
	for id, kind := range r.abilities {
		s.Unlocked = append(s.Unlocked, id)
		if kind == AbilitySupplyRoute {
			s.SupplyAccess = true
		}
	}
	sort.Strings(s.Unlocked)
	return s
}

// Get returns the faction's progression. Unknown factions get a baseline
// snapshot with neutral multipliers.
func (e *Engine) Get(f social.FactionID) Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if r, ok := e.factions[f]; ok {
		return r.copy()
	}
	return e.baseline(f)
}

// All returns every faction's progression in id order.
func (e *Engine) All() []Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Snapshot, 0, len(e.factions))
	for _, r := range e.factions {
		out = append(out, r.copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Faction < out[j].Faction })
	return out
}

// InfluenceMultiplier returns the rate applied to the faction's influence actions.
func (e *Engine) InfluenceMultiplier(f social.FactionID) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if r, ok := e.factions[f]; ok {
		return r.snap.InfluenceMul
	}
	return 1
}

// HasSupplyAccess reports whether the faction unlocked supply-route access.
func (e *Engine) HasSupplyAccess(f social.FactionID) bool {
	return e.Get(f).SupplyAccess
}

func (e *Engine) tierFor(rep float64) Tier {
	for t := tierCount - 1; t > TierRecruit; t-- {
		if rep >= e.thresholds[t] {
			return t
		}
	}
	return TierRecruit
}

// retierLocked re-evaluates the tier and lifts multipliers to its floor.
func (e *Engine) retierLocked(r *record) (old Tier, changed bool) {
	old = r.snap.Tier
	r.snap.Tier = e.tierFor(r.snap.Reputation)
	floor := tierFloor[r.snap.Tier]
	r.snap.ExtractionMul = math.Max(r.snap.ExtractionMul, floor)
	r.snap.InfluenceMul = math.Max(r.snap.InfluenceMul, floor)
	return old, r.snap.Tier != old
}

func (e *Engine) reputationLocked(r *record, delta float64, source string) []events.Event {
	r.snap.Reputation = math.Max(0, r.snap.Reputation+delta)
	old, changed := e.retierLocked(r)
	if changed {
		slog.Info("faction tier changed",
			"faction", r.snap.Name,
			"old", old.String(),
			"new", r.snap.Tier.String(),
			"reputation", fmt.Sprintf("%.1f", r.snap.Reputation),
			"source", source,
		)
	}
	ev := events.ProgressionChanged{
		Faction:    r.snap.Faction,
		Tier:       r.snap.Tier.String(),
		Reputation: r.snap.Reputation,
	}
	var evs []events.Event
	if changed {
		evs = append(evs, ev)
	}
	if math.Abs(delta) >= e.cfg.BroadcastThreshold {
		evs = append(evs, ev)
	}
	return evs
}

// UpdateReputation adds delta to the faction's reputation (floored at zero).
// ProgressionChanged fires once for a tier change and once more when |delta|
// reaches the broadcast threshold, so a large promotion publishes twice.
func (e *Engine) UpdateReputation(f social.FactionID, delta float64, source string) error {
	if f == social.Neutral {
		err := fmt.Errorf("update reputation from %s: neutral faction: %w", source, fault.ErrInvalidTransition)
		fault.Log("reputation rejected", err)
		return err
	}
	e.out.Do(func() []events.Event {
		e.mu.Lock()
		defer e.mu.Unlock()
		r := e.recordLocked(f)
		r.snap.LastUpdate = e.now()
		return e.reputationLocked(r, delta, source)
	})
	return nil
}

func (e *Engine) unlockLocked(r *record, a Ability) ([]events.Event, bool) {
	if _, ok := r.abilities[a.ID]; ok {
		return nil, false
	}
	r.abilities[a.ID] = a.Kind
	switch a.Kind {
	case AbilityExtraction:
		r.snap.ExtractionMul *= extractionStep
	case AbilityInfluence:
		r.snap.InfluenceMul *= influenceStep
	}
	return []events.Event{events.AbilityUnlocked{
		Faction: r.snap.Faction,
		Ability: a.ID,
		Kind:    a.Kind.String(),
	}}, true
}

// UnlockAbility unlocks an ability once. It returns false when the ability
// was already unlocked.
func (e *Engine) UnlockAbility(f social.FactionID, id string, kind AbilityKind) bool {
	if f == social.Neutral || id == "" {
		return false
	}
	var ok bool
	e.out.Do(func() []events.Event {
		e.mu.Lock()
		defer e.mu.Unlock()
		var evs []events.Event
		evs, ok = e.unlockLocked(e.recordLocked(f), Ability{ID: id, Kind: kind})
		return evs
	})
	if ok && kind == AbilityCodex {
		e.runCodex([]codexCall{{faction: f, ability: id}})
	}
	return ok
}

func (e *Engine) runCodex(calls []codexCall) {
	for _, c := range calls {
		if e.Codex == nil {
			slog.Debug("codex not configured, unlock kept locally", "faction", c.faction, "ability", c.ability)
			continue
		}
		if err := e.Codex.Unlock(c.faction, c.ability); err != nil {
			fault.Log("codex unlock failed", fmt.Errorf("codex unlock %s: %w", c.ability, err), "faction", c.faction)
		}
	}
}

// RegisterObjective adds an objective. It is a no-op when an objective with
// the same id already exists for the faction.
func (e *Engine) RegisterObjective(obj Objective) bool {
	if obj.Faction == social.Neutral || obj.ID == "" {
		return false
	}
	k := objKey{faction: obj.Faction, id: obj.ID}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.objectives[k]; ok {
		return false
	}
	o := obj
	o.Unlocks = append([]Ability(nil), obj.Unlocks...)
	o.Required = max(o.Required, 1)
	o.Active = true
	o.Completed = false
	o.CompletedAt = time.Time{}
	e.objectives[k] = &o
	e.objOrder = append(e.objOrder, k)
	return true
}

// Objectives returns copies of the faction's objectives in registration order.
func (e *Engine) Objectives(f social.FactionID) []Objective {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Objective
	for _, k := range e.objOrder {
		if k.faction != f {
			continue
		}
		o := *e.objectives[k]
		o.Unlocks = append([]Ability(nil), o.Unlocks...)
		out = append(out, o)
	}
	return out
}

func (e *Engine) completeLocked(k objKey, now time.Time) ([]events.Event, []codexCall, error) {
	o, ok := e.objectives[k]
	if !ok {
		return nil, nil, fmt.Errorf("complete objective %s: %w", k.id, fault.ErrNotFound)
	}
	if !o.Active || o.Completed {
		return nil, nil, fmt.Errorf("complete objective %s: already completed: %w", k.id, fault.ErrInvalidTransition)
	}
	o.Active = false
	o.Completed = true
	o.CompletedAt = now

	r := e.recordLocked(k.faction)
	r.snap.LastUpdate = now
	evs := []events.Event{events.ObjectiveCompleted{Faction: k.faction, Objective: k.id}}
	evs = append(evs, e.reputationLocked(r, o.ReputationReward, "objective:"+k.id)...)

	var calls []codexCall
	for _, a := range o.Unlocks {
		uevs, fresh := e.unlockLocked(r, a)
		evs = append(evs, uevs...)
		if fresh && a.Kind == AbilityCodex {
			calls = append(calls, codexCall{faction: k.faction, ability: a.ID})
		}
	}
	slog.Info("objective completed", "faction", r.snap.Name, "objective", o.Name, "reward", o.ReputationReward)
	return evs, calls, nil
}

// CompleteObjective completes an active objective, applying its reputation
// reward and unlocks.
func (e *Engine) CompleteObjective(f social.FactionID, id string) error {
	var (
		calls []codexCall
		err   error
	)
	e.out.Do(func() []events.Event {
		e.mu.Lock()
		defer e.mu.Unlock()
		var evs []events.Event
		evs, calls, err = e.completeLocked(objKey{faction: f, id: id}, e.now())
		return evs
	})
	if err != nil {
		fault.Log("objective not completed", err, "faction", f)
		return err
	}
	e.runCodex(calls)
	return nil
}

// SetBalanceMultiplier scales the faction's reputation accrual. Values are
// clamped to [0.5, 1.5].
func (e *Engine) SetBalanceMultiplier(f social.FactionID, m float64) {
	if f == social.Neutral {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordLocked(f).snap.BalanceMul = min(max(m, minBalanceMul), maxBalanceMul)
}

// ResetBonuses drops tier floors, leaving only the multipliers earned by
// unlocked abilities.
func (e *Engine) ResetBonuses(f social.FactionID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.factions[f]
	if !ok {
		return false
	}
	r.snap.ExtractionMul, r.snap.InfluenceMul = 1, 1
	for _, kind := range r.abilities {
		switch kind {
		case AbilityExtraction:
			r.snap.ExtractionMul *= extractionStep
		case AbilityInfluence:
			r.snap.InfluenceMul *= influenceStep
		}
	}
	slog.Info("faction bonuses reset", "faction", r.snap.Name,
		"extraction", fmt.Sprintf("%.3f", r.snap.ExtractionMul),
		"influence", fmt.Sprintf("%.3f", r.snap.InfluenceMul),
	)
	return true
}
