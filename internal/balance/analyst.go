package balance

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/social"
)

// Config holds analytics tuning.
type Config struct {
	Interval         time.Duration `yaml:"analytics_interval"`
	GiniAlert        float64       `yaml:"gini_alert"`
	HHIAlert         float64       `yaml:"hhi_alert"`
	MaxAlertsPerHour int           `yaml:"max_alerts_per_hour"`
	AutoRebalance    bool          `yaml:"auto_rebalance"`
	MaxAdjustment    float64       `yaml:"max_adjustment"`
	DecayHalfLife    time.Duration `yaml:"decay_half_life"`
	Equilibrium      float64       `yaml:"equilibrium"`
	IntegrityStep    float64       `yaml:"integrity_step"`
}

// DefaultConfig returns the standard analytics tuning.
func DefaultConfig() Config {
	return Config{
		Interval:         60 * time.Second,
		GiniAlert:        0.5,
		HHIAlert:         0.35,
		MaxAlertsPerHour: 10,
		AutoRebalance:    true,
		MaxAdjustment:    0.5,
		DecayHalfLife:    time.Hour,
		Equilibrium:      0.5,
		IntegrityStep:    0.02,
	}
}

// Tuner receives the per-faction multipliers a cycle decides on.
type Tuner interface {
	SetBalanceMultiplier(f social.FactionID, m float64)
}

// Alert is a raised distribution warning.
type Alert struct {
	At       time.Time        `json:"at"`
	Level    Level            `json:"level"`
	Gini     float64          `json:"gini"`
	HHI      float64          `json:"hhi"`
	Dominant social.FactionID `json:"dominant"`
}

const maxAlerts = 100

// Report is the outcome of one cycle.
type Report struct {
	Snapshot *Snapshot `json:"snapshot"`
	Health   *Health   `json:"health"`
	Decision *Decision `json:"decision"`
	Alerted  bool      `json:"alerted"`
}

// Analyst runs the observe, triage, decide, act cycle.
type Analyst struct {
	Now       func() time.Time
	Tuner     Tuner      // optional
	Integrity *Integrity // optional

	cfg      Config
	src      Sources
	factions []social.FactionID

	mu          sync.RWMutex
	memory      cycleMemory
	alerts      []Alert
	applied     map[social.FactionID]float64
	emergency   bool
	latest      *Report
	experiments map[string]*Experiment
}

// New creates an analyst over the given factions.
func New(cfg Config, src Sources, factions []social.FactionID) *Analyst {
	return &Analyst{
		Now:         time.Now,
		cfg:         cfg,
		src:         src,
		factions:    append([]social.FactionID(nil), factions...),
		applied:     make(map[social.FactionID]float64),
		experiments: make(map[string]*Experiment),
	}
}

func (a *Analyst) now() time.Time {
	return a.Now().UTC()
}

// Cycle observes the world, scores it, and applies the decision.
func (a *Analyst) Cycle() *Report {
	snap := Observe(a.src, a.factions)
	health := Triage(snap, a.cfg)
	decision := Decide(health, a.cfg)

	integrity := a.cfg.Equilibrium
	if a.Integrity != nil {
		a.Integrity.Tick()
		integrity = a.Integrity.Value()
	}

	a.mu.Lock()
	now := a.now()
	rep := &Report{Snapshot: snap, Health: health, Decision: decision}
	if decision.Alert {
		rep.Alerted = a.alertLocked(Alert{
			At:       now,
			Level:    health.Level,
			Gini:     health.Gini,
			HHI:      health.HHI,
			Dominant: health.Dominant,
		})
	}
	changed := a.changedLocked(decision.Multipliers)
	if decision.Emergency != a.emergency {
		slog.Warn("balance emergency", "active", decision.Emergency, "dominant", health.Dominant)
	}
	a.emergency = decision.Emergency
	a.memory.record(CycleRecord{
		At:        now,
		Level:     health.Level,
		Gini:      health.Gini,
		HHI:       health.HHI,
		Integrity: integrity,
		Emergency: decision.Emergency,
		Adjusted:  len(changed),
	})
	a.latest = rep
	a.mu.Unlock()

	// The tuner has its own lock; call it outside ours.
	if a.Tuner != nil {
		for _, f := range changed {
			a.Tuner.SetBalanceMultiplier(f, decision.Multipliers[f])
		}
	}

	slog.Info("balance cycle",
		"level", health.Level,
		"gini", fmt.Sprintf("%.3f", health.Gini),
		"hhi", fmt.Sprintf("%.3f", health.HHI),
		"integrity", fmt.Sprintf("%.3f", integrity),
		"adjusted", len(changed),
	)
	return rep
}

// changedLocked records the multipliers and returns the factions whose
// value moved, in id order.
func (a *Analyst) changedLocked(ms map[social.FactionID]float64) []social.FactionID {
	var out []social.FactionID
	for f, m := range ms {
		prev, ok := a.applied[f]
		if !ok {
			prev = 1
		}
		if prev != m {
			out = append(out, f)
		}
		a.applied[f] = m
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// alertLocked stores al unless the hourly cap is spent.
func (a *Analyst) alertLocked(al Alert) bool {
	since := al.At.Add(-time.Hour)
	recent := 0
	for _, prev := range a.alerts {
		if prev.At.After(since) {
			recent++
		}
	}
	if recent >= a.cfg.MaxAlertsPerHour {
		fault.Log("balance alert dropped",
			fmt.Errorf("%d alerts in the last hour: %w", recent, fault.ErrOverLimit),
			"level", al.Level)
		return false
	}
	a.alerts = append(a.alerts, al)
	if len(a.alerts) > maxAlerts {
		a.alerts = a.alerts[len(a.alerts)-maxAlerts:]
	}
	slog.Warn("balance alert",
		"level", al.Level,
		"gini", fmt.Sprintf("%.3f", al.Gini),
		"hhi", fmt.Sprintf("%.3f", al.HHI),
		"dominant", al.Dominant,
	)
	return true
}

// Latest returns the most recent report, or nil before the first cycle.
func (a *Analyst) Latest() *Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// Alerts returns raised alerts, oldest first.
func (a *Analyst) Alerts() []Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Alert(nil), a.alerts...)
}

// History returns recent cycle records, oldest first.
func (a *Analyst) History() []CycleRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]CycleRecord(nil), a.memory.records...)
}

// Emergency reports whether the last cycle found a critical imbalance. It
// is advisory; nothing in the core gates on it.
func (a *Analyst) Emergency() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.emergency
}

// Multiplier returns the last applied multiplier for f.
func (a *Analyst) Multiplier(f social.FactionID) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if m, ok := a.applied[f]; ok {
		return m
	}
	return 1
}

// Archive is the analyst's persisted state.
type Archive struct {
	Multipliers map[social.FactionID]float64 `json:"multipliers"`
	History     []CycleRecord                `json:"history"`
	Alerts      []Alert                      `json:"alerts"`
	Experiments []ExperimentRecord           `json:"experiments"`
}

// Dump returns the analyst's persisted state.
func (a *Analyst) Dump() Archive {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ar := Archive{
		Multipliers: make(map[social.FactionID]float64, len(a.applied)),
		History:     append([]CycleRecord(nil), a.memory.records...),
		Alerts:      append([]Alert(nil), a.alerts...),
	}
	for f, m := range a.applied {
		ar.Multipliers[f] = m
	}
	names := make([]string, 0, len(a.experiments))
	for n := range a.experiments {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		ar.Experiments = append(ar.Experiments, a.experiments[n].record())
	}
	return ar
}

// Load restores persisted state. The restored multipliers are not pushed to
// the tuner; progression persists its own.
func (a *Analyst) Load(ar Archive) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = make(map[social.FactionID]float64, len(ar.Multipliers))
	for f, m := range ar.Multipliers {
		a.applied[f] = m
	}
	a.memory.records = append([]CycleRecord(nil), ar.History...)
	a.alerts = append([]Alert(nil), ar.Alerts...)
	a.experiments = make(map[string]*Experiment, len(ar.Experiments))
	for _, rec := range ar.Experiments {
		e := newExperiment(rec.Name, rec.Variants)
		for v, s := range rec.Samples {
			if _, ok := e.samples[v]; ok {
				*e.samples[v] = s
			}
		}
		a.experiments[rec.Name] = e
	}
	if last, ok := a.memory.last(); ok {
		a.emergency = last.Emergency
	}
}
