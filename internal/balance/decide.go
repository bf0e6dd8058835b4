package balance

import (
	"math"

	"github.com/talgya/frontline/internal/geom"
	"github.com/talgya/frontline/internal/social"
)

// Decision is what a cycle chose to do.
type Decision struct {
	Multipliers map[social.FactionID]float64 `json:"multipliers"`
	Emergency   bool                         `json:"emergency"`
	Alert       bool                         `json:"alert"`
}

// Decide maps a triage onto per-faction accrual multipliers. Below Warning
// every faction runs at 1. From Warning up, factions above the mean share are
// slowed and those below sped up, by at most cfg.MaxAdjustment.
func Decide(h *Health, cfg Config) *Decision {
	d := &Decision{
		Multipliers: make(map[social.FactionID]float64, len(h.Shares)),
		Emergency:   h.Level == Critical,
		Alert:       h.Level >= Warning,
	}
	if len(h.Shares) == 0 {
		return d
	}
	mean := 1 / float64(len(h.Shares))
	for f, share := range h.Shares {
		m := 1.0
		if cfg.AutoRebalance && h.Level >= Warning {
			skew := geom.Clamp((share-mean)/mean, -1, 1)
			m = 1 - cfg.MaxAdjustment*skew
		}
		d.Multipliers[f] = math.Round(m*1000) / 1000
	}
	return d
}
