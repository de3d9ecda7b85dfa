// Package scheduler runs the recurring behavior tick for all active robots.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/ashureev/robofeed/internal/generation"
	"github.com/ashureev/robofeed/internal/notify"
	"github.com/ashureev/robofeed/internal/store"
	"github.com/ashureev/robofeed/internal/worldctx"
	"golang.org/x/sync/semaphore"
)

// ErrTickRunning is returned when a tick is requested while one is in progress.
var ErrTickRunning = errors.New("tick already running")

// Decider is the probability gate.
type Decider interface {
	Decide(profile *domain.RobotProfile, now time.Time) domain.BehaviorDecision
}

// Planner ensures a robot's daily plan.
type Planner interface {
	EnsurePlan(ctx context.Context, robotID string, date time.Time) (*domain.DailyPlan, error)
}

// World supplies world context for prompts.
type World interface {
	For(robotID, location string) worldctx.Snapshot
}

// Repository is the persistence the scheduler needs.
type Repository interface {
	store.RobotRepository
	store.LogRepository
	store.ContentRepository
	store.LinkRepository
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Repo      Repository
	Gate      Decider
	Planner   Planner
	Generator generation.Generator
	World     World
	Publisher notify.Publisher
}

// Config tunes the scheduler.
type Config struct {
	Interval       time.Duration
	Concurrency    int
	TargetLookback time.Duration
}

// TickResult summarizes one tick.
type TickResult struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Evaluated int           `json:"evaluated"`
	Acting    int           `json:"acting"`
	Created   int           `json:"created"`
}

// Scheduler evaluates every active robot once per tick.
type Scheduler struct {
	repo    Repository
	gate    Decider
	planner Planner
	gen     generation.Generator
	world   World
	pub     notify.Publisher
	cfg     Config
	stats   *Stats
	logger  *slog.Logger

	running atomic.Bool
	ticks   sync.WaitGroup
	now     func() time.Time
	after   func(d time.Duration, f func())
}

// New creates a scheduler.
func New(deps Deps, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.TargetLookback <= 0 {
		cfg.TargetLookback = 24 * time.Hour
	}
	return &Scheduler{
		repo:    deps.Repo,
		gate:    deps.Gate,
		planner: deps.Planner,
		gen:     deps.Generator,
		world:   deps.World,
		pub:     deps.Publisher,
		cfg:     cfg,
		stats:   NewStats(),
		logger:  logger,
		now:     time.Now,
		after:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Stats returns the scheduler's counters.
func (s *Scheduler) Stats() *Stats {
	return s.stats
}

// Running reports whether a tick is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Start fires a tick every interval until ctx is done. A tick that would
// overlap a running one is skipped.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer ticker.Stop()
		s.logger.Info("Behavior scheduler started", "interval", s.cfg.Interval, "concurrency", s.cfg.Concurrency)

		for {
			select {
			case <-ticker.C:
				s.ticks.Add(1)
				go func() {
					defer s.ticks.Done()
					if _, err := s.Tick(ctx); err != nil && !errors.Is(err, ErrTickRunning) {
						s.logger.Error("Behavior tick failed", "error", err)
					}
				}()
			case <-ctx.Done():
				s.logger.Info("Behavior scheduler shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Wait blocks until ticks started by Start have returned.
func (s *Scheduler) Wait() {
	s.ticks.Wait()
}

// Tick runs one evaluation pass. Gate decisions are drawn in robot ID order,
// then acting robots are processed concurrently. A failure for one robot
// never aborts the others.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.stats.tickSkipped()
		s.logger.Warn("Skipping tick, previous tick still running")
		return TickResult{}, ErrTickRunning
	}
	defer s.running.Store(false)
	s.stats.tickRun()

	now := s.now()
	result := TickResult{StartedAt: now}

	robots, err := s.repo.ListActiveRobots(ctx)
	if err != nil {
		return result, fmt.Errorf("list active robots: %w", err)
	}
	result.Evaluated = len(robots)

	type job struct {
		robot    *domain.RobotProfile
		decision domain.BehaviorDecision
	}
	var jobs []job
	for _, robot := range robots {
		d := s.gate.Decide(robot, now)
		s.stats.decision(d.Action)
		if d.Acts() {
			jobs = append(jobs, job{robot: robot, decision: d})
		}
	}
	result.Acting = len(jobs)

	var (
		created atomic.Int32
		wg      sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))
	for _, j := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.logger.Warn("Tick cancelled before all robots ran", "error", err)
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if s.process(ctx, j.robot, j.decision) {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	result.Created = int(created.Load())
	result.Duration = s.now().Sub(now)
	s.logger.Info("Behavior tick completed",
		"evaluated", result.Evaluated, "acting", result.Acting,
		"created", result.Created, "duration", result.Duration)
	return result, nil
}
