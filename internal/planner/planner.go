// Package planner ensures every robot has one daily plan per calendar day.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/ashureev/robofeed/internal/generation"
	"github.com/ashureev/robofeed/internal/prompt"
	"github.com/ashureev/robofeed/internal/store"
	"github.com/ashureev/robofeed/internal/worldctx"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrRobotNotFound is returned when planning for an unknown robot.
var ErrRobotNotFound = errors.New("robot not found")

// World supplies world context for a robot.
type World interface {
	For(robotID, location string) worldctx.Snapshot
}

// Repository is the persistence the planner needs.
type Repository interface {
	store.RobotRepository
	store.PlanRepository
	store.LogRepository
}

// Config tunes the planner.
type Config struct {
	// PendingTTL is how long a PENDING plan is left to its owner.
	PendingTTL time.Duration
	// Concurrency bounds EnsureAll.
	Concurrency int
}

// Planner generates and persists daily plans.
type Planner struct {
	repo   Repository
	gen    generation.Generator
	world  World
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// New creates a planner.
func New(repo Repository, gen generation.Generator, world World, cfg Config, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	return &Planner{repo: repo, gen: gen, world: world, cfg: cfg, now: time.Now, logger: logger}
}

// EnsurePlan returns the plan for (robotID, date), generating it if absent or FAILED.
// Generation and parse failures come back as a FAILED plan, not an error.
// A PENDING plan owned by a concurrent caller is returned unchanged. A plan
// soft-deleted while in flight yields an error wrapping store.ErrPlanConflict.
// The returned plan is never nil when err is nil.
func (p *Planner) EnsurePlan(ctx context.Context, robotID string, date time.Time) (*domain.DailyPlan, error) {
	planDate := domain.PlanDate(date)

	existing, err := p.repo.GetPlan(ctx, robotID, planDate)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if existing.Usable() {
		return existing, nil
	}

	robot, err := p.repo.GetRobot(ctx, robotID)
	if err != nil {
		return nil, fmt.Errorf("get robot: %w", err)
	}
	if robot == nil {
		return nil, fmt.Errorf("%w: %s", ErrRobotNotFound, robotID)
	}

	plan, owned, err := p.claim(ctx, existing, robotID, planDate)
	if err != nil || !owned {
		return plan, err
	}

	return p.generate(ctx, robot, plan, date)
}

// claim takes ownership of the plan key. It reports ownership, or returns the
// current row when another caller holds it.
func (p *Planner) claim(ctx context.Context, existing *domain.DailyPlan, robotID, planDate string) (*domain.DailyPlan, bool, error) {
	if existing == nil {
		plan := &domain.DailyPlan{ID: uuid.NewString(), RobotID: robotID, PlanDate: planDate}
		ok, err := p.repo.ClaimPlan(ctx, plan)
		if err != nil {
			return nil, false, fmt.Errorf("claim plan: %w", err)
		}
		if ok {
			return plan, true, nil
		}
	} else {
		ok, err := p.repo.ReclaimPlan(ctx, existing.ID, p.now().Add(-p.cfg.PendingTTL))
		if err != nil {
			return nil, false, fmt.Errorf("reclaim plan: %w", err)
		}
		if ok {
			existing.Status = domain.PlanPending
			existing.ErrorMsg = ""
			return existing, true, nil
		}
	}

	current, err := p.repo.GetPlan(ctx, robotID, planDate)
	if err != nil {
		return nil, false, fmt.Errorf("get plan: %w", err)
	}
	if current == nil {
		return nil, false, fmt.Errorf("plan %s/%s deleted during claim: %w", robotID, planDate, store.ErrPlanConflict)
	}
	p.logger.Debug("Plan held by another worker", "robot_id", robotID, "plan_date", planDate)
	return current, false, nil
}

func (p *Planner) generate(ctx context.Context, robot *domain.RobotProfile, plan *domain.DailyPlan, date time.Time) (*domain.DailyPlan, error) {
	text := prompt.DailyPlan(robot, date, p.world.For(robot.RobotID, robot.Location))
	entry := &domain.GenerationLog{
		ID:            uuid.NewString(),
		RobotSnapshot: *robot,
		Prompt:        text,
		Type:          domain.LogDiary,
		Context:       "plan_date=" + plan.PlanDate,
	}

	res, genErr := p.gen.Generate(ctx, generation.Request{
		Prompt: text,
		Inputs: prompt.Inputs(robot),
		User:   "robot-" + robot.RobotID,
	})
	if genErr == nil {
		entry.RawContent = res.Text
		entry.TokensUsed = res.TokensUsed
		plan.Diary, plan.Slots, genErr = prompt.ParsePlan(res.Text)
		if genErr != nil {
			genErr = fmt.Errorf("%w: %v", generation.ErrMalformedResponse, genErr)
		}
	}

	if genErr != nil {
		plan.Status = domain.PlanFailed
		plan.ErrorMsg = genErr.Error()
		plan.Diary, plan.Slots = "", nil
		entry.Failed = true
		entry.ErrorKind = generation.KindOf(genErr)
		if entry.RawContent == "" {
			entry.RawContent = genErr.Error()
		}
		p.logger.Warn("Daily plan generation failed",
			"robot_id", robot.RobotID, "plan_date", plan.PlanDate,
			"kind", entry.ErrorKind, "error", genErr)
	} else {
		plan.Status = domain.PlanSuccess
		plan.ErrorMsg = ""
		p.logger.Info("Daily plan generated", "robot_id", robot.RobotID, "plan_date", plan.PlanDate, "slots", len(plan.Slots))
	}

	if err := p.repo.AppendLog(ctx, entry); err != nil {
		p.logger.Error("Failed to append plan generation log", "robot_id", robot.RobotID, "error", err)
	}

	if err := p.repo.CompletePlan(ctx, plan); err != nil {
		if errors.Is(err, store.ErrPlanConflict) {
			// A stale-claim takeover finished first; its row wins.
			current, getErr := p.repo.GetPlan(ctx, robot.RobotID, plan.PlanDate)
			if getErr != nil {
				return nil, fmt.Errorf("get plan: %w", getErr)
			}
			if current == nil {
				return nil, fmt.Errorf("plan %s/%s deleted during generation: %w", robot.RobotID, plan.PlanDate, err)
			}
			return current, nil
		}
		return nil, fmt.Errorf("complete plan: %w", err)
	}
	return plan, nil
}

// Summary counts EnsureAll outcomes.
type Summary struct {
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Conflicts int `json:"conflicts"`
	Errors    int `json:"errors"`
}

// EnsureAll ensures plans for every active robot with bounded concurrency.
// Per-robot errors are counted and logged, never returned.
func (p *Planner) EnsureAll(ctx context.Context, date time.Time) (Summary, error) {
	robots, err := p.repo.ListActiveRobots(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list active robots: %w", err)
	}

	results := make([]*domain.DailyPlan, len(robots))
	errs := make([]error, len(robots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, robot := range robots {
		g.Go(func() error {
			results[i], errs[i] = p.EnsurePlan(gctx, robot.RobotID, date)
			return nil
		})
	}
	_ = g.Wait()

	var sum Summary
	for i, plan := range results {
		switch {
		case errors.Is(errs[i], store.ErrPlanConflict):
			sum.Conflicts++
			p.logger.Info("Plan changed while ensuring", "robot_id", robots[i].RobotID, "error", errs[i])
		case errs[i] != nil:
			sum.Errors++
			p.logger.Error("Failed to ensure plan", "robot_id", robots[i].RobotID, "error", errs[i])
		case plan.Status == domain.PlanSuccess:
			sum.Success++
		case plan.Status == domain.PlanFailed:
			sum.Failed++
		default:
			sum.Pending++
		}
	}
	return sum, nil
}
