package gate

import (
	"testing"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
)

// seqSource replays fixed draws, then repeats the last one.
type seqSource struct {
	draws []int
	calls int
}

func (s *seqSource) IntN(int) int {
	i := s.calls
	s.calls++
	if i >= len(s.draws) {
		return s.draws[len(s.draws)-1]
	}
	return s.draws[i]
}

func at(hhmm string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", "2026-10-14 "+hhmm, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func commentOnlyPolicy() Policy {
	p := DefaultPolicy()
	p.Precedence = []domain.Action{domain.ActionComment}
	return p
}

func TestDecideCommentScenario(t *testing.T) {
	t.Parallel()

	robot := &domain.RobotProfile{
		RobotID:          "r1",
		ReplySpeed:       10,
		ReplyFrequency:   10,
		ActiveTimeRanges: []domain.TimeRange{{Start: "09:00", End: "18:00"}},
		IsActive:         true,
	}

	// The default POST threshold of 10 rejects the draw, COMMENT's 100 accepts it.
	g := New(DefaultPolicy(), &seqSource{draws: []int{50}})
	got := g.Decide(robot, at("12:00"))
	if got.Action != domain.ActionComment {
		t.Fatalf("expected COMMENT at 12:00, got %s", got.Action)
	}
	if want := at("12:00").Add(time.Minute); !got.PublishAt.Equal(want) {
		t.Fatalf("expected publish at %s, got %s", want, got.PublishAt)
	}

	src := &seqSource{draws: []int{0}}
	g = New(DefaultPolicy(), src)
	if got := g.Decide(robot, at("20:00")); got.Action != domain.ActionNone {
		t.Fatalf("expected NONE at 20:00, got %s", got.Action)
	}
	if src.calls != 0 {
		t.Fatalf("expected no draws outside the active window, got %d", src.calls)
	}
}

func TestDecideInactiveAlwaysNone(t *testing.T) {
	t.Parallel()

	robot := &domain.RobotProfile{RobotID: "r1", ReplyFrequency: 10, ShareFrequency: 10, IsActive: false}
	g := New(DefaultPolicy(), &seqSource{draws: []int{0}})
	for _, hhmm := range []string{"00:00", "12:00", "23:59"} {
		if got := g.Decide(robot, at(hhmm)); got.Action != domain.ActionNone {
			t.Fatalf("expected NONE for inactive robot at %s, got %s", hhmm, got.Action)
		}
	}
}

func TestDecideEmptyRangesNeverBlockOnTime(t *testing.T) {
	t.Parallel()

	robot := &domain.RobotProfile{RobotID: "r1", ReplyFrequency: 1, IsActive: true}
	g := New(commentOnlyPolicy(), &seqSource{draws: []int{0}})
	for _, hhmm := range []string{"00:00", "03:33", "23:59"} {
		if got := g.Decide(robot, at(hhmm)); got.Action != domain.ActionComment {
			t.Fatalf("expected COMMENT at %s, got %s", hhmm, got.Action)
		}
	}
}

func TestDecideInclusiveBounds(t *testing.T) {
	t.Parallel()

	robot := &domain.RobotProfile{
		RobotID:          "r1",
		ReplyFrequency:   10,
		ActiveTimeRanges: []domain.TimeRange{{Start: "09:00", End: "18:00"}},
		IsActive:         true,
	}
	g := New(commentOnlyPolicy(), &seqSource{draws: []int{0}})
	for _, hhmm := range []string{"09:00", "18:00"} {
		if got := g.Decide(robot, at(hhmm)); got.Action != domain.ActionComment {
			t.Fatalf("expected %s to be inside the range, got %s", hhmm, got.Action)
		}
	}
}

func TestDecidePrecedenceAndThresholds(t *testing.T) {
	t.Parallel()

	robot := &domain.RobotProfile{RobotID: "r1", ReplyFrequency: 3, ShareFrequency: 8, IsActive: true}

	// POST 40 >= 10 fails, COMMENT 35 fails, REPLY 99 fails, SHARE 79 < 80 passes.
	g := New(DefaultPolicy(), &seqSource{draws: []int{40, 35, 99, 79}})
	if got := g.Decide(robot, at("10:00")); got.Action != domain.ActionShare {
		t.Fatalf("expected SHARE, got %s", got.Action)
	}

	// First passing kind wins even if later kinds would pass too.
	g = New(DefaultPolicy(), &seqSource{draws: []int{9, 0, 0, 0}})
	if got := g.Decide(robot, at("10:00")); got.Action != domain.ActionPost {
		t.Fatalf("expected POST, got %s", got.Action)
	}

	g = New(DefaultPolicy(), &seqSource{draws: []int{99}})
	if got := g.Decide(robot, at("10:00")); got.Action != domain.ActionNone {
		t.Fatalf("expected NONE when all draws fail, got %s", got.Action)
	}
}

func TestPostFrequency(t *testing.T) {
	t.Parallel()

	g := New(DefaultPolicy(), &seqSource{draws: []int{0}})
	robot := &domain.RobotProfile{RobotID: "r1", ReplyFrequency: 10, IsActive: true}
	if got := g.Threshold(robot, domain.ActionPost); got != 10 {
		t.Errorf("unset postFrequency: expected threshold 10, got %d", got)
	}
	robot.PostFrequency = 6
	if got := g.Threshold(robot, domain.ActionPost); got != 60 {
		t.Errorf("postFrequency 6: expected threshold 60, got %d", got)
	}
	if got := g.Threshold(robot, domain.ActionComment); got != 100 {
		t.Errorf("comment threshold should follow replyFrequency, got %d", got)
	}
}

func TestDefaultPolicyMostlyComments(t *testing.T) {
	t.Parallel()

	robot := &domain.RobotProfile{RobotID: "r1", ReplyFrequency: 10, IsActive: true}
	g := NewSeeded(DefaultPolicy(), 7)
	counts := map[domain.Action]int{}
	for i := 0; i < 1000; i++ {
		counts[g.Decide(robot, at("12:00")).Action]++
	}
	if counts[domain.ActionComment] < 800 {
		t.Fatalf("expected most ticks to comment, got %v", counts)
	}
	if counts[domain.ActionPost] == 0 || counts[domain.ActionPost] > 200 {
		t.Fatalf("expected occasional posts, got %v", counts)
	}
}

func TestDecideDeterministicWithSeed(t *testing.T) {
	t.Parallel()

	robot := &domain.RobotProfile{RobotID: "r1", ReplyFrequency: 4, ShareFrequency: 4, IsActive: true}
	a := NewSeeded(DefaultPolicy(), 42)
	b := NewSeeded(DefaultPolicy(), 42)
	for i := 0; i < 50; i++ {
		now := at("10:00").Add(time.Duration(i) * time.Minute)
		if da, db := a.Decide(robot, now), b.Decide(robot, now); da != db {
			t.Fatalf("draw %d diverged: %+v vs %+v", i, da, db)
		}
	}
}

func TestPublishDelay(t *testing.T) {
	t.Parallel()

	g := New(DefaultPolicy(), &seqSource{draws: []int{0}})
	if got := g.PublishDelay(10); got != time.Minute {
		t.Errorf("speed 10: expected 1m, got %s", got)
	}
	if got := g.PublishDelay(1); got != 10*time.Minute {
		t.Errorf("speed 1: expected 10m, got %s", got)
	}
	if got := g.PublishDelay(0); got != 10*time.Minute {
		t.Errorf("speed 0 should clamp to 1, got %s", got)
	}
}

func TestParsePrecedence(t *testing.T) {
	t.Parallel()

	got, err := ParsePrecedence([]string{"SHARE", "POST"})
	if err != nil || len(got) != 2 || got[0] != domain.ActionShare {
		t.Fatalf("unexpected result %v, %v", got, err)
	}
	if _, err := ParsePrecedence([]string{"NONE"}); err == nil {
		t.Fatal("expected NONE to be rejected")
	}
}
