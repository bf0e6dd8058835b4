package balance

import (
	"sort"

	"github.com/talgya/frontline/internal/social"
)

// Level is the triage outcome of a cycle.
type Level uint8

const (
	Healthy Level = iota
	Watch
	Warning
	Critical
)

var levelNames = [...]string{"HEALTHY", "WATCH", "WARNING", "CRITICAL"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	for i, n := range levelNames {
		if n == string(b) {
			*l = Level(i)
			return nil
		}
	}
	*l = Healthy
	return nil
}

// Health holds the distribution signals derived from a Snapshot.
type Health struct {
	Gini          float64                      `json:"gini"`
	HHI           float64                      `json:"hhi"`
	Shares        map[social.FactionID]float64 `json:"shares"`
	Dominant      social.FactionID             `json:"dominant"`
	DominantShare float64                      `json:"dominant_share"`
	Level         Level                        `json:"level"`
}

// Gini returns the Gini coefficient of xs: 0 for perfect equality, close to
// 1 when one holder has everything. Empty or all-zero input yields 0.
func Gini(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	var sum, weighted float64
	for i, x := range sorted {
		sum += x
		weighted += float64(i+1) * x
	}
	if sum <= 0 {
		return 0
	}
	nf := float64(n)
	return 2*weighted/(nf*sum) - (nf+1)/nf
}

// HHI returns the Herfindahl-Hirschman index of xs as a fraction in
// [1/n, 1]. All-zero input yields 0.
func HHI(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	if sum <= 0 {
		return 0
	}
	var h float64
	for _, x := range xs {
		s := x / sum
		h += s * s
	}
	return h
}

// Triage scores how concentrated holdings are against the alert levels.
func Triage(snap *Snapshot, cfg Config) *Health {
	holdings := make([]float64, len(snap.Factions))
	var total float64
	for i, f := range snap.Factions {
		holdings[i] = f.Holdings
		total += f.Holdings
	}

	h := &Health{
		Gini:   Gini(holdings),
		HHI:    HHI(holdings),
		Shares: make(map[social.FactionID]float64, len(snap.Factions)),
	}
	for _, f := range snap.Factions {
		share := 0.0
		if total > 0 {
			share = f.Holdings / total
		}
		h.Shares[f.Faction] = share
		if share > h.DominantShare {
			h.Dominant, h.DominantShare = f.Faction, share
		}
	}

	worst := 0.0
	if cfg.GiniAlert > 0 {
		worst = h.Gini / cfg.GiniAlert
	}
	if cfg.HHIAlert > 0 {
		worst = max(worst, h.HHI/cfg.HHIAlert)
	}
	switch {
	case worst >= criticalRatio || h.DominantShare > 0.5:
		h.Level = Critical
	case worst >= 1:
		h.Level = Warning
	case worst >= watchRatio:
		h.Level = Watch
	}
	return h
}

const (
	watchRatio    = 0.8
	criticalRatio = 1.5
)
