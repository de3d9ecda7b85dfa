package planner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/ashureev/robofeed/internal/generation"
	"github.com/ashureev/robofeed/internal/store"
	"github.com/ashureev/robofeed/internal/worldctx"
)

const validPlan = `{"diary":"a good day","slots":[{"start":"09:00","end":"12:00","events":[{"content":"reading","mood":"calm"}]}]}`

type fakeGenerator struct {
	calls atomic.Int32
	fn    func(req generation.Request) (*generation.Result, error)
}

func (f *fakeGenerator) Generate(_ context.Context, req generation.Request) (*generation.Result, error) {
	f.calls.Add(1)
	return f.fn(req)
}

func answer(text string) func(generation.Request) (*generation.Result, error) {
	return func(generation.Request) (*generation.Result, error) {
		return &generation.Result{Text: text, TokensUsed: 42}, nil
	}
}

type emptyWorld struct{}

func (emptyWorld) For(string, string) worldctx.Snapshot { return worldctx.Snapshot{} }

func newTestPlanner(t *testing.T, gen generation.Generator, robots ...string) (*Planner, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "planner.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for _, id := range robots {
		robot := &domain.RobotProfile{
			RobotID:          id,
			Name:             "robot " + id,
			ReplySpeed:       5,
			ReplyFrequency:   5,
			ActiveTimeRanges: []domain.TimeRange{{Start: "08:00", End: "22:00"}},
			IsActive:         true,
		}
		if err := s.UpsertRobot(context.Background(), robot); err != nil {
			t.Fatalf("UpsertRobot failed: %v", err)
		}
	}
	return New(s, gen, emptyWorld{}, Config{Concurrency: 4}, nil), s
}

var day = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

func TestEnsurePlanGeneratesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen := &fakeGenerator{fn: answer(validPlan)}
	p, s := newTestPlanner(t, gen, "r1")

	plan, err := p.EnsurePlan(ctx, "r1", day)
	if err != nil {
		t.Fatalf("EnsurePlan failed: %v", err)
	}
	if plan.Status != domain.PlanSuccess || plan.Diary != "a good day" || len(plan.Slots) != 1 {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	again, err := p.EnsurePlan(ctx, "r1", day)
	if err != nil {
		t.Fatalf("second EnsurePlan failed: %v", err)
	}
	if again.ID != plan.ID || gen.calls.Load() != 1 {
		t.Fatalf("expected cached plan and one generation call, got %d calls", gen.calls.Load())
	}

	logs, err := s.ListLogs(ctx, domain.LogFilter{RobotID: "r1", Type: domain.LogDiary})
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Failed || logs[0].RawContent != validPlan || logs[0].TokensUsed != 42 {
		t.Fatalf("unexpected diary logs: %+v", logs)
	}
}

func TestEnsurePlanTimeoutMarksFailedThenRetries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen := &fakeGenerator{fn: func(generation.Request) (*generation.Result, error) {
		return nil, fmt.Errorf("%w: deadline exceeded", generation.ErrTimeout)
	}}
	p, s := newTestPlanner(t, gen, "r1")

	plan, err := p.EnsurePlan(ctx, "r1", day)
	if err != nil {
		t.Fatalf("EnsurePlan returned error for a generation failure: %v", err)
	}
	if plan.Status != domain.PlanFailed || plan.ErrorMsg == "" || len(plan.Slots) != 0 {
		t.Fatalf("expected FAILED plan, got %+v", plan)
	}

	logs, err := s.ListLogs(ctx, domain.LogFilter{RobotID: "r1"})
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if len(logs) != 1 || !logs[0].Failed || logs[0].ErrorKind != "Timeout" {
		t.Fatalf("expected one Timeout failure log, got %+v", logs)
	}

	gen.fn = answer(validPlan)
	retried, err := p.EnsurePlan(ctx, "r1", day)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if retried.Status != domain.PlanSuccess || retried.ID != plan.ID {
		t.Fatalf("expected the same row to succeed on retry, got %+v", retried)
	}
}

func TestEnsurePlanMalformedAnswer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, s := newTestPlanner(t, &fakeGenerator{fn: answer("I'd rather not plan today.")}, "r1")

	plan, err := p.EnsurePlan(ctx, "r1", day)
	if err != nil {
		t.Fatalf("EnsurePlan failed: %v", err)
	}
	if plan.Status != domain.PlanFailed {
		t.Fatalf("expected FAILED plan, got %s", plan.Status)
	}

	logs, err := s.ListLogs(ctx, domain.LogFilter{RobotID: "r1"})
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].ErrorKind != "MalformedResponse" || logs[0].RawContent != "I'd rather not plan today." {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestEnsurePlanDeletedWhileGenerating(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var s *store.SQLiteStore
	gen := &fakeGenerator{fn: func(generation.Request) (*generation.Result, error) {
		if _, err := s.SoftDeletePlan(ctx, "r1", domain.PlanDate(day)); err != nil {
			t.Errorf("SoftDeletePlan failed: %v", err)
		}
		return &generation.Result{Text: validPlan}, nil
	}}
	p, st := newTestPlanner(t, gen, "r1")
	s = st

	plan, err := p.EnsurePlan(ctx, "r1", day)
	if !errors.Is(err, store.ErrPlanConflict) {
		t.Fatalf("expected ErrPlanConflict, got plan=%+v err=%v", plan, err)
	}
	if plan != nil {
		t.Fatalf("expected no plan alongside the error, got %+v", plan)
	}

	// The next call regenerates under a fresh key.
	gen.fn = answer(validPlan)
	plan, err = p.EnsurePlan(ctx, "r1", day)
	if err != nil || plan == nil || plan.Status != domain.PlanSuccess {
		t.Fatalf("expected regenerated plan, got plan=%+v err=%v", plan, err)
	}
}

func TestEnsureAllCountsConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var s *store.SQLiteStore
	gen := &fakeGenerator{fn: func(req generation.Request) (*generation.Result, error) {
		if req.User == "robot-r2" {
			if _, err := s.SoftDeletePlan(ctx, "r2", domain.PlanDate(day)); err != nil {
				t.Errorf("SoftDeletePlan failed: %v", err)
			}
		}
		return &generation.Result{Text: validPlan}, nil
	}}
	p, st := newTestPlanner(t, gen, "r1", "r2")
	s = st

	sum, err := p.EnsureAll(ctx, day)
	if err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	if sum.Success != 1 || sum.Conflicts != 1 || sum.Errors != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestEnsurePlanConcurrentCallersGenerateOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	release := make(chan struct{})
	gen := &fakeGenerator{fn: func(generation.Request) (*generation.Result, error) {
		<-release
		return &generation.Result{Text: validPlan}, nil
	}}
	p, s := newTestPlanner(t, gen, "r1")

	var wg sync.WaitGroup
	statuses := make(chan domain.PlanStatus, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			plan, err := p.EnsurePlan(ctx, "r1", day)
			if err != nil {
				t.Errorf("EnsurePlan failed: %v", err)
				return
			}
			statuses <- plan.Status
		}()
	}

	// Losers return the PENDING row without waiting for the winner.
	for range 7 {
		if st := <-statuses; st != domain.PlanPending {
			t.Errorf("expected PENDING for a losing caller, got %s", st)
		}
	}
	close(release)
	wg.Wait()
	close(statuses)
	if st := <-statuses; st != domain.PlanSuccess {
		t.Errorf("expected winner to see SUCCESS, got %s", st)
	}

	if n := gen.calls.Load(); n != 1 {
		t.Fatalf("expected one generation call, got %d", n)
	}
	plans, err := s.ListPlans(ctx, "r1", 10)
	if err != nil {
		t.Fatalf("ListPlans failed: %v", err)
	}
	if len(plans) != 1 || plans[0].Status != domain.PlanSuccess {
		t.Fatalf("expected one SUCCESS plan, got %+v", plans)
	}
}

func TestEnsurePlanUnknownRobot(t *testing.T) {
	t.Parallel()
	p, _ := newTestPlanner(t, &fakeGenerator{fn: answer(validPlan)})

	if _, err := p.EnsurePlan(context.Background(), "ghost", day); !errors.Is(err, ErrRobotNotFound) {
		t.Fatalf("expected ErrRobotNotFound, got %v", err)
	}
}

func TestEnsureAllCountsOutcomes(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{fn: func(req generation.Request) (*generation.Result, error) {
		if req.User == "robot-r2" {
			return nil, generation.ErrUpstream
		}
		return &generation.Result{Text: validPlan}, nil
	}}
	p, _ := newTestPlanner(t, gen, "r1", "r2", "r3")

	sum, err := p.EnsureAll(context.Background(), day)
	if err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	if sum.Success != 2 || sum.Failed != 1 || sum.Errors != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}
