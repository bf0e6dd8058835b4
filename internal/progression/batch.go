package progression

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
)

const perfSamples = 64

// perfRing keeps the most recent batch durations.
type perfRing struct {
	samples [perfSamples]time.Duration
	n       int
	next    int
	over    int
}

func (p *perfRing) add(d, budget time.Duration) bool {
	p.samples[p.next] = d
	p.next = (p.next + 1) % perfSamples
	if p.n < perfSamples {
		p.n++
	}
	if budget > 0 && d > budget {
		p.over++
		return true
	}
	return false
}

// Stats summarizes recent batch timings.
type Stats struct {
	Samples    int           `json:"samples"`
	Mean       time.Duration `json:"mean_ns"`
	Max        time.Duration `json:"max_ns"`
	Last       time.Duration `json:"last_ns"`
	OverBudget int           `json:"over_budget"`
	Ticks      uint64        `json:"ticks"`
}

// Stats returns the batch performance summary.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p := &e.perf
	s := Stats{Samples: p.n, OverBudget: p.over, Ticks: e.ticks}
	if p.n == 0 {
		return s
	}
	var total time.Duration
	for i := 0; i < p.n; i++ {
		d := p.samples[i]
		total += d
		s.Max = max(s.Max, d)
	}
	s.Mean = total / time.Duration(p.n)
	s.Last = p.samples[(p.next+perfSamples-1)%perfSamples]
	return s
}

// Tick runs one progression batch. Factions left over when the wall-clock
// budget or the territory batch size runs out are picked up first on the
// next tick.
func (e *Engine) Tick() {
	start := time.Now()
	now := e.now()

	e.mu.RLock()
	stale := e.cacheAt.IsZero() || now.Sub(e.cacheAt) >= e.cfg.CacheRefresh
	e.mu.RUnlock()

	var fresh []territory.Territory
	if stale && e.src != nil {
		fresh = e.src.All()
	}

	var (
		calls    []codexCall
		deferred int
	)
	e.out.Do(func() []events.Event {
		e.mu.Lock()
		defer e.mu.Unlock()
		if stale {
			e.cache, e.cacheAt = fresh, now
		}
		e.ticks++

		ids := e.factionIDsLocked()
		if len(ids) == 0 {
			return nil
		}
		if e.cursor >= len(ids) {
			e.cursor = 0
		}

		var evs []events.Event
		scanned, processed := 0, 0
		for processed < len(ids) {
			if processed > 0 && (time.Since(start) > e.cfg.Budget || scanned >= e.cfg.MaxBatchSize) {
				deferred = len(ids) - processed
				break
			}
			f := ids[(e.cursor+processed)%len(ids)]
			n, fevs, fcalls := e.processLocked(f, now)
			scanned += n
			evs = append(evs, fevs...)
			calls = append(calls, fcalls...)
			processed++
		}
		e.cursor = (e.cursor + processed) % len(ids)
		return evs
	})

	elapsed := time.Since(start)
	e.mu.Lock()
	over := e.perf.add(elapsed, e.cfg.Budget)
	e.mu.Unlock()

	if deferred > 0 {
		fault.Log("progression batch deferred",
			fmt.Errorf("%d factions left for next tick: %w", deferred, fault.ErrStale),
			"elapsed", elapsed)
	}
	if over {
		slog.Warn("progression batch over budget", "elapsed", elapsed, "budget", e.cfg.Budget)
	}
	e.runCodex(calls)
}

// factionIDsLocked lists every faction the batch should visit: the roster,
// factions with records, and controllers seen in the cache.
func (e *Engine) factionIDsLocked() []social.FactionID {
	seen := make(map[social.FactionID]bool, len(e.roster)+len(e.factions))
	var ids []social.FactionID
	add := func(f social.FactionID) {
		if f != social.Neutral && !seen[f] {
			seen[f] = true
			ids = append(ids, f)
		}
	}
	for id := range e.roster {
		add(id)
	}
	for id := range e.factions {
		add(id)
	}
	for i := range e.cache {
		add(e.cache[i].Controller)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// processLocked accrues reputation for one faction, completes objectives it
// now satisfies, and refreshes its resource bonus table. It returns the
// number of territories it held.
func (e *Engine) processLocked(f social.FactionID, now time.Time) (int, []events.Event, []codexCall) {
	r := e.recordLocked(f)

	var counts [resourceCount]int
	weight := 0.0
	owned := 0
	for i := range e.cache {
		t := &e.cache[i]
		if t.Controller != f || t.Contested {
			continue
		}
		owned++
		res := ResourceFor(t.Type)
		counts[res]++
		weight += float64(t.StrategicValue) * e.resMul[res]
	}

	// Deferred factions accrue every interval they missed.
	intervals := uint64(1)
	if r.lastTick != 0 && e.ticks > r.lastTick {
		intervals = e.ticks - r.lastTick
	}
	r.lastTick = e.ticks
	hours := e.cfg.BatchInterval.Hours() * float64(intervals)

	var evs []events.Event
	gain := e.cfg.BaseReputationPerHour * hours * weight * r.snap.BalanceMul
	r.snap.TotalHours += hours * float64(owned)
	r.snap.TerritoriesControlled = owned
	if gain > 0.1 {
		r.snap.LastUpdate = now
		evs = append(evs, e.reputationLocked(r, gain, "territory")...)
	} else if old, changed := e.retierLocked(r); changed {
		slog.Info("faction tier changed", "faction", r.snap.Name, "old", old.String(), "new", r.snap.Tier.String())
		evs = append(evs, events.ProgressionChanged{Faction: f, Tier: r.snap.Tier.String(), Reputation: r.snap.Reputation})
	}

	var calls []codexCall
	for _, k := range e.objOrder {
		if k.faction != f {
			continue
		}
		o := e.objectives[k]
		if !o.Active || o.Completed || counts[o.Resource] < o.Required {
			continue
		}
		oevs, ocalls, err := e.completeLocked(k, now)
		if err != nil {
			fault.Log("objective not completed", err, "faction", f)
			continue
		}
		evs = append(evs, oevs...)
		calls = append(calls, ocalls...)
	}

	for res := ResourceType(0); res < resourceCount; res++ {
		if counts[res] == r.snap.ResourceBonuses[res] {
			continue
		}
		if counts[res] == 0 {
			delete(r.snap.ResourceBonuses, res)
		} else {
			r.snap.ResourceBonuses[res] = counts[res]
		}
		evs = append(evs, events.ResourceBonusChanged{Faction: f, Resource: res.String(), Value: counts[res]})
	}
	return owned, evs, calls
}
