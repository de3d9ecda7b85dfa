package scheduler

import (
	"sync"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
)

// Failure kinds counted by Stats, beyond the generation taxonomy.
const (
	FailurePlan         = "PlanGenerationFailure"
	FailureContent      = "ContentGenerationFailure"
	FailurePersistence  = "PersistenceFailure"
	FailureNotification = "NotificationFailure"
)

// Stats are per-process counters, reset daily.
type Stats struct {
	mu        sync.Mutex
	since     time.Time
	ticks     int
	skipped   int
	decisions map[domain.Action]int
	artifacts map[domain.Action]int
	noTarget  int
	failures  map[string]int
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Since        time.Time      `json:"since"`
	TicksRun     int            `json:"ticksRun"`
	TicksSkipped int            `json:"ticksSkipped"`
	Decisions    map[string]int `json:"decisions"`
	Artifacts    map[string]int `json:"artifacts"`
	NoTarget     int            `json:"noTarget"`
	Failures     map[string]int `json:"failures"`
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	s := &Stats{}
	s.Reset()
	return s
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.since = time.Now()
	s.ticks, s.skipped, s.noTarget = 0, 0, 0
	s.decisions = make(map[domain.Action]int)
	s.artifacts = make(map[domain.Action]int)
	s.failures = make(map[string]int)
}

func (s *Stats) tickRun() {
	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()
}

func (s *Stats) tickSkipped() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

func (s *Stats) decision(a domain.Action) {
	s.mu.Lock()
	s.decisions[a]++
	s.mu.Unlock()
}

func (s *Stats) artifact(a domain.Action) {
	s.mu.Lock()
	s.artifacts[a]++
	s.mu.Unlock()
}

func (s *Stats) missingTarget() {
	s.mu.Lock()
	s.noTarget++
	s.mu.Unlock()
}

func (s *Stats) failure(kind string) {
	s.mu.Lock()
	s.failures[kind]++
	s.mu.Unlock()
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{
		Since:        s.since,
		TicksRun:     s.ticks,
		TicksSkipped: s.skipped,
		Decisions:    make(map[string]int, len(s.decisions)),
		Artifacts:    make(map[string]int, len(s.artifacts)),
		NoTarget:     s.noTarget,
		Failures:     make(map[string]int, len(s.failures)),
	}
	for k, v := range s.decisions {
		snap.Decisions[string(k)] = v
	}
	for k, v := range s.artifacts {
		snap.Artifacts[string(k)] = v
	}
	for k, v := range s.failures {
		snap.Failures[k] = v
	}
	return snap
}
