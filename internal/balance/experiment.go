package balance

import (
	"encoding/binary"
	"fmt"
	"sort"

	"lukechampine.com/blake3"

	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/social"
)

// Experiment is an A/B test over factions. Each faction lands in one
// variant, chosen by hashing the experiment name with the faction id.
type Experiment struct {
	Name     string   `json:"name"`
	Variants []string `json:"variants"`
	samples  map[string]*sample
}

type sample struct {
	N   int     `json:"n"`
	Sum float64 `json:"sum"`
}

// VariantResult summarizes one arm of an experiment.
type VariantResult struct {
	Variant string  `json:"variant"`
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
}

// ExperimentRecord is the persisted form of an experiment.
type ExperimentRecord struct {
	Name     string            `json:"name"`
	Variants []string          `json:"variants"`
	Samples  map[string]sample `json:"samples"`
}

func newExperiment(name string, variants []string) *Experiment {
	e := &Experiment{
		Name:     name,
		Variants: append([]string(nil), variants...),
		samples:  make(map[string]*sample, len(variants)),
	}
	for _, v := range variants {
		e.samples[v] = &sample{}
	}
	return e
}

// Assign returns the variant for f. The same name and faction always give
// the same answer.
func (e *Experiment) Assign(f social.FactionID) string {
	h := blake3.New(8, nil)
	h.Write([]byte(e.Name))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(f))
	h.Write(buf[:])
	sum := h.Sum(nil)
	return e.Variants[binary.BigEndian.Uint64(sum)%uint64(len(e.Variants))]
}

func (e *Experiment) results() []VariantResult {
	out := make([]VariantResult, 0, len(e.Variants))
	for _, v := range e.Variants {
		s := e.samples[v]
		r := VariantResult{Variant: v, Samples: s.N}
		if s.N > 0 {
			r.Mean = s.Sum / float64(s.N)
		}
		out = append(out, r)
	}
	return out
}

func (e *Experiment) record() ExperimentRecord {
	rec := ExperimentRecord{
		Name:     e.Name,
		Variants: append([]string(nil), e.Variants...),
		Samples:  make(map[string]sample, len(e.samples)),
	}
	for v, s := range e.samples {
		rec.Samples[v] = *s
	}
	return rec
}

// StartExperiment registers an experiment with at least two distinct
// variants.
func (a *Analyst) StartExperiment(name string, variants ...string) error {
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if seen[v] {
			return fmt.Errorf("experiment %q: duplicate variant %q: %w", name, v, fault.ErrInvalidTransition)
		}
		seen[v] = true
	}
	if name == "" || len(variants) < 2 {
		return fmt.Errorf("experiment %q needs a name and two variants: %w", name, fault.ErrInvalidTransition)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.experiments[name]; ok {
		return fmt.Errorf("experiment %q already running: %w", name, fault.ErrInvalidTransition)
	}
	a.experiments[name] = newExperiment(name, variants)
	return nil
}

// Variant returns the arm f belongs to in the named experiment.
func (a *Analyst) Variant(name string, f social.FactionID) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.experiments[name]
	if !ok {
		return "", false
	}
	return e.Assign(f), true
}

// RecordMetric adds an observation for f to its arm of the experiment.
func (a *Analyst) RecordMetric(name string, f social.FactionID, value float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.experiments[name]
	if !ok {
		return fmt.Errorf("record metric for experiment %q: %w", name, fault.ErrNotFound)
	}
	s := e.samples[e.Assign(f)]
	s.N++
	s.Sum += value
	return nil
}

// Results returns the per-variant means of an experiment.
func (a *Analyst) Results(name string) ([]VariantResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.experiments[name]
	if !ok {
		return nil, false
	}
	return e.results(), true
}

// Experiments lists running experiment names in order.
func (a *Analyst) Experiments() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.experiments))
	for n := range a.experiments {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
