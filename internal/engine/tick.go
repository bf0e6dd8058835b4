// Package engine builds the simulation core in dependency order and drives
// its periodic work from a single cooperative scheduler.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/frontline/internal/fault"
)

// DefaultInterval is the scheduler's base tick.
const DefaultInterval = 250 * time.Millisecond

// Job is a named unit of periodic work. Run receives the time elapsed since
// the job last ran.
type Job struct {
	Name   string
	Every  time.Duration
	Budget time.Duration // 0 = unbounded
	Run    func(dt time.Duration)

	last    time.Time
	runs    uint64
	overran uint64
	spent   time.Duration
}

// JobStats summarizes one job's history.
type JobStats struct {
	Name    string        `json:"name"`
	Every   time.Duration `json:"every_ns"`
	Runs    uint64        `json:"runs"`
	Overran uint64        `json:"overran"`
	AvgTime time.Duration `json:"avg_ns"`
	LastRun time.Time     `json:"last_run"`
}

// Scheduler runs due jobs once per base tick, in registration order.
type Scheduler struct {
	Now      func() time.Time
	Interval time.Duration

	mu     sync.Mutex
	jobs   []*Job
	steps  uint64
	paused atomic.Bool
}

// NewScheduler creates a scheduler with the default base tick.
func NewScheduler() *Scheduler {
	return &Scheduler{Now: time.Now, Interval: DefaultInterval}
}

// Add registers a job. Its first run comes one period after registration.
func (s *Scheduler) Add(name string, every time.Duration, budget time.Duration, run func(dt time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &Job{Name: name, Every: every, Budget: budget, Run: run, last: s.Now()})
}

// Pause stops jobs from running until Resume.
func (s *Scheduler) Pause() { s.paused.Store(true) }

// Resume restarts a paused scheduler.
func (s *Scheduler) Resume() { s.paused.Store(false) }

// Paused reports whether the scheduler is paused.
func (s *Scheduler) Paused() bool { return s.paused.Load() }

// Steps returns the number of base ticks taken.
func (s *Scheduler) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// Step runs every due job and returns how many ran.
func (s *Scheduler) Step() int {
	if s.Paused() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps++

	ran := 0
	for _, j := range s.jobs {
		now := s.Now()
		dt := now.Sub(j.last)
		if dt < j.Every {
			continue
		}
		j.last = now

		start := time.Now()
		j.Run(dt)
		took := time.Since(start)

		j.runs++
		j.spent += took
		ran++
		if j.Budget > 0 && took > j.Budget {
			j.overran++
			fault.Log("job over budget",
				fmt.Errorf("%s took %s of %s: %w", j.Name, took, j.Budget, fault.ErrStale),
				"job", j.Name)
		}
	}
	return ran
}

// Run steps the scheduler every Interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	slog.Info("scheduler started", "interval", interval, "jobs", len(s.Stats()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "steps", humanize.Comma(int64(s.Steps())))
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// Stats returns per-job statistics in registration order.
func (s *Scheduler) Stats() []JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStats, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = JobStats{Name: j.Name, Every: j.Every, Runs: j.runs, Overran: j.overran, LastRun: j.last}
		if j.runs > 0 {
			out[i].AvgTime = j.spent / time.Duration(j.runs)
		}
	}
	return out
}
