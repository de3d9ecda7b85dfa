package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/ashureev/robofeed/internal/generation"
	"github.com/ashureev/robofeed/internal/notify"
	"github.com/ashureev/robofeed/internal/planner"
	"github.com/ashureev/robofeed/internal/store"
	"github.com/ashureev/robofeed/internal/worldctx"
)

const goodPlan = `{"diary":"fine","slots":[{"start":"00:00","end":"23:59","events":[{"content":"hanging out","mood":"happy"}]}]}`

var tickTime = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type fixedGate map[string]domain.Action

func (g fixedGate) Decide(p *domain.RobotProfile, now time.Time) domain.BehaviorDecision {
	a, ok := g[p.RobotID]
	if !ok {
		a = domain.ActionNone
	}
	return domain.BehaviorDecision{RobotID: p.RobotID, Action: a, EvaluatedAt: now, PublishAt: now.Add(3 * time.Minute)}
}

type scriptedGenerator struct {
	mu       sync.Mutex
	calls    []generation.Request
	plan     func() (*generation.Result, error)
	content  func(req generation.Request) (*generation.Result, error)
	thoughts func() (*generation.Result, error)
}

func isPlanPrompt(req generation.Request) bool {
	return strings.Contains(req.Prompt, "Write a detailed plan")
}

func isThoughtsPrompt(req generation.Request) bool {
	return strings.Contains(req.Prompt, "inner monologue")
}

func (g *scriptedGenerator) Generate(_ context.Context, req generation.Request) (*generation.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	switch {
	case isPlanPrompt(req):
		return g.plan()
	case isThoughtsPrompt(req):
		return g.thoughts()
	}
	return g.content(req)
}

func (g *scriptedGenerator) contentCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.calls {
		if !isPlanPrompt(r) && !isThoughtsPrompt(r) {
			n++
		}
	}
	return n
}

func text(s string) func() (*generation.Result, error) {
	return func() (*generation.Result, error) { return &generation.Result{Text: s}, nil }
}

type published struct {
	msg        notify.Message
	recipients []string
}

type recordingPublisher struct {
	mu         sync.Mutex
	published  []published
	broadcasts []notify.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg notify.Message, recipients []string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, published{msg: msg, recipients: recipients})
	return len(recipients)
}

func (p *recordingPublisher) Broadcast(_ context.Context, msg notify.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = append(p.broadcasts, msg)
	return 1
}

// flakyRepo fails content saves or one log type on demand.
type flakyRepo struct {
	*store.SQLiteStore
	saveErr error
	failLog domain.LogType
}

func (r *flakyRepo) SavePost(ctx context.Context, post *domain.Post) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.SQLiteStore.SavePost(ctx, post)
}

func (r *flakyRepo) SaveComment(ctx context.Context, comment *domain.Comment) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.SQLiteStore.SaveComment(ctx, comment)
}

func (r *flakyRepo) AppendLog(ctx context.Context, entry *domain.GenerationLog) error {
	if r.failLog != "" && entry.Type == r.failLog {
		return errors.New("disk full")
	}
	return r.SQLiteStore.AppendLog(ctx, entry)
}

type emptyWorld struct{}

func (emptyWorld) For(string, string) worldctx.Snapshot { return worldctx.Snapshot{} }

type harness struct {
	sched *Scheduler
	store *store.SQLiteStore
	gen   *scriptedGenerator
	pub   *recordingPublisher
	gate  fixedGate

	mu     sync.Mutex
	delays []time.Duration
}

func newHarness(t *testing.T, gate fixedGate, robots ...string) *harness {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "scheduler.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for _, id := range robots {
		if err := s.UpsertRobot(ctx, &domain.RobotProfile{
			RobotID: id, Name: "robot " + id, ReplySpeed: 8, ReplyFrequency: 5, ShareFrequency: 5, IsActive: true,
		}); err != nil {
			t.Fatalf("UpsertRobot failed: %v", err)
		}
	}

	h := &harness{
		store: s,
		gen: &scriptedGenerator{
			plan:     text(goodPlan),
			content:  func(generation.Request) (*generation.Result, error) { return &generation.Result{Text: `"Lovely day!"`}, nil },
			thoughts: text("I wonder if anyone will notice."),
		},
		pub:  &recordingPublisher{},
		gate: gate,
	}
	h.build(s, 2)
	return h
}

// build wires a fresh scheduler over repo.
func (h *harness) build(repo Repository, concurrency int) {
	pl := planner.New(h.store, h.gen, emptyWorld{}, planner.Config{}, nil)
	h.sched = New(Deps{
		Repo:      repo,
		Gate:      h.gate,
		Planner:   pl,
		Generator: h.gen,
		World:     emptyWorld{},
		Publisher: h.pub,
	}, Config{Concurrency: concurrency}, nil)
	h.sched.now = func() time.Time { return tickTime }
	h.sched.after = func(d time.Duration, f func()) {
		h.mu.Lock()
		h.delays = append(h.delays, d)
		h.mu.Unlock()
		f()
	}
}

func (h *harness) logs(t *testing.T, robotID string, typ domain.LogType) []*domain.GenerationLog {
	t.Helper()
	logs, err := h.store.ListLogs(context.Background(), domain.LogFilter{RobotID: robotID, Type: typ})
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	return logs
}

func (h *harness) posts(t *testing.T) []*domain.Post {
	t.Helper()
	posts, err := h.store.ListPublishedPosts(context.Background(), tickTime.Add(time.Hour), 100)
	if err != nil {
		t.Fatalf("ListPublishedPosts failed: %v", err)
	}
	return posts
}

func TestTickPostCreatesOneArtifactAndLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, fixedGate{"r1": domain.ActionPost}, "r1")
	if err := h.store.UpsertLink(ctx, &domain.UserRobotLink{UserID: "alice", RobotID: "r1"}); err != nil {
		t.Fatalf("UpsertLink failed: %v", err)
	}

	res, err := h.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Evaluated != 1 || res.Acting != 1 || res.Created != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	posts := h.posts(t)
	if len(posts) != 1 || posts[0].Content != "Lovely day!" || !posts[0].PublishAt.Equal(tickTime.Add(3*time.Minute)) {
		t.Fatalf("unexpected posts: %+v", posts)
	}

	logs := h.logs(t, "r1", domain.LogPost)
	if len(logs) != 1 || logs[0].Failed || logs[0].RawContent != `"Lovely day!"` {
		t.Fatalf("expected one post log with the raw answer, got %+v", logs)
	}

	if len(h.delays) != 1 || h.delays[0] != 3*time.Minute {
		t.Fatalf("expected notification scheduled for publishAt, got %v", h.delays)
	}
	if len(h.pub.published) != 1 || h.pub.published[0].msg.Kind != notify.KindPostUpdate {
		t.Fatalf("unexpected published: %+v", h.pub.published)
	}
	if got := h.pub.published[0].recipients; len(got) != 1 || got[0] != "alice" {
		t.Fatalf("expected linked user as recipient, got %v", got)
	}
	if len(h.pub.broadcasts) != 1 || h.pub.broadcasts[0].Kind != notify.KindRobotAction {
		t.Fatalf("expected a robot action broadcast, got %+v", h.pub.broadcasts)
	}
	if snap := h.sched.Stats().Snapshot(); snap.Artifacts["POST"] != 1 || snap.TicksRun != 1 {
		t.Fatalf("unexpected stats: %+v", snap)
	}
}

func TestTickStoresInnerThoughts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedGate{"r1": domain.ActionPost}, "r1")

	if _, err := h.sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	posts := h.posts(t)
	if len(posts) != 1 || posts[0].InnerThoughts != "I wonder if anyone will notice." {
		t.Fatalf("expected inner thoughts on the post, got %+v", posts)
	}

	logs := h.logs(t, "r1", domain.LogInnerThoughts)
	if len(logs) != 1 || logs[0].Failed || !strings.Contains(logs[0].Context, "artifact="+posts[0].ID) {
		t.Fatalf("expected one inner thoughts log linked to the post, got %+v", logs)
	}
	if !strings.Contains(logs[0].Prompt, "Lovely day!") {
		t.Fatalf("expected the monologue prompt to quote the post, got %q", logs[0].Prompt)
	}

	if len(h.pub.broadcasts) != 1 {
		t.Fatalf("expected one robot action broadcast, got %d", len(h.pub.broadcasts))
	}
	summary, ok := h.pub.broadcasts[0].Data.(notify.RobotActionSummary)
	if !ok || summary.InnerThoughts != posts[0].InnerThoughts {
		t.Fatalf("expected broadcast to carry inner thoughts, got %+v", h.pub.broadcasts[0].Data)
	}
}

func TestTickInnerThoughtsFallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedGate{"r1": domain.ActionPost}, "r1")
	h.gen.thoughts = func() (*generation.Result, error) { return nil, generation.ErrTimeout }

	res, err := h.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("expected the post to survive a monologue failure, got %+v", res)
	}
	posts := h.posts(t)
	if len(posts) != 1 || !strings.Contains(posts[0].InnerThoughts, "robot r1 is thinking") {
		t.Fatalf("expected fallback inner thoughts, got %+v", posts)
	}
	logs := h.logs(t, "r1", domain.LogInnerThoughts)
	if len(logs) != 1 || !logs[0].Failed || logs[0].ErrorKind != "Timeout" {
		t.Fatalf("expected one failed inner thoughts log, got %+v", logs)
	}
	if post := h.logs(t, "r1", domain.LogPost); len(post) != 1 || post[0].Failed {
		t.Fatalf("expected the post log to succeed, got %+v", post)
	}
}

func TestTickSaveFailureIsPersistenceFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedGate{"r1": domain.ActionPost}, "r1")
	h.build(&flakyRepo{SQLiteStore: h.store, saveErr: errors.New("database is locked")}, 2)

	res, err := h.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Created != 0 || len(h.posts(t)) != 0 {
		t.Fatalf("expected no artifact, got %+v", res)
	}
	logs := h.logs(t, "r1", domain.LogPost)
	if len(logs) != 1 || !logs[0].Failed || logs[0].ErrorKind != FailurePersistence {
		t.Fatalf("expected one log flagged %s, got %+v", FailurePersistence, logs)
	}
	if len(h.pub.published) != 0 || len(h.pub.broadcasts) != 0 {
		t.Fatal("expected no notification")
	}
	if snap := h.sched.Stats().Snapshot(); snap.Failures[FailurePersistence] != 1 || snap.Artifacts["POST"] != 0 {
		t.Fatalf("unexpected stats: %+v", snap)
	}
}

func TestTickLogFailureDiscardsArtifact(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedGate{"r1": domain.ActionPost}, "r1")
	h.build(&flakyRepo{SQLiteStore: h.store, failLog: domain.LogPost}, 2)

	res, err := h.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Created != 0 {
		t.Fatalf("expected no artifact counted, got %+v", res)
	}
	if posts := h.posts(t); len(posts) != 0 {
		t.Fatalf("expected the unlogged post to be discarded, got %+v", posts)
	}
	if len(h.pub.published) != 0 || len(h.pub.broadcasts) != 0 {
		t.Fatal("expected no notification")
	}
	if snap := h.sched.Stats().Snapshot(); snap.Failures[FailurePersistence] != 1 || snap.Artifacts["POST"] != 0 {
		t.Fatalf("unexpected stats: %+v", snap)
	}
}

func TestTickConcurrencyIsBounded(t *testing.T) {
	t.Parallel()
	const limit = 2
	robots := []string{"r1", "r2", "r3", "r4", "r5"}
	gate := fixedGate{}
	for _, id := range robots {
		gate[id] = domain.ActionPost
	}
	h := newHarness(t, gate, robots...)
	h.build(h.store, limit)

	var (
		inFlight, peak atomic.Int32
		fullOnce       sync.Once
	)
	full := make(chan struct{})
	h.gen.content = func(req generation.Request) (*generation.Result, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n >= limit {
			fullOnce.Do(func() { close(full) })
		}
		select {
		case <-full:
		case <-time.After(time.Second):
		}
		time.Sleep(10 * time.Millisecond)
		return &generation.Result{Text: "hello from " + req.User}, nil
	}

	res, err := h.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Created != len(robots) {
		t.Fatalf("expected every robot to post, got %+v", res)
	}
	if got := peak.Load(); got != limit {
		t.Fatalf("expected at most %d concurrent generations, peak was %d", limit, got)
	}
}

func TestTickShareLinksOriginalPost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, fixedGate{"r1": domain.ActionShare}, "r1")

	human := &domain.Post{ID: "p-human", AuthorID: "bob", AuthorType: domain.AuthorUser, Content: "sunset pics", PublishAt: tickTime.Add(-time.Hour)}
	if err := h.store.SavePost(ctx, human); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}
	if err := h.store.UpsertLink(ctx, &domain.UserRobotLink{UserID: "alice", RobotID: "r1"}); err != nil {
		t.Fatalf("UpsertLink failed: %v", err)
	}

	res, err := h.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("expected one share, got %+v", res)
	}

	var share *domain.Post
	for _, p := range h.posts(t) {
		if p.AuthorID == "r1" {
			share = p
		}
	}
	if share == nil || share.SharedPostID != "p-human" {
		t.Fatalf("expected r1 to share p-human, got %+v", share)
	}
	if logs := h.logs(t, "r1", domain.LogShare); len(logs) != 1 || logs[0].Failed {
		t.Fatalf("expected one share log, got %+v", logs)
	}
	if len(h.pub.published) != 1 || h.pub.published[0].msg.Kind != notify.KindPostUpdate {
		t.Fatalf("unexpected published: %+v", h.pub.published)
	}
	if got := h.pub.published[0].recipients; len(got) != 1 || got[0] != "alice" {
		t.Fatalf("expected only the linked user as recipient, got %v", got)
	}

	// Already shared, so nothing is left to share.
	res, err = h.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	if res.Created != 0 {
		t.Fatalf("expected the shared post to be skipped, got %+v", res)
	}
	if snap := h.sched.Stats().Snapshot(); snap.NoTarget != 1 {
		t.Fatalf("expected a no-target drop, got %+v", snap)
	}
}

func TestTickContentFailureLogsWithoutArtifact(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedGate{"r1": domain.ActionPost}, "r1")
	h.gen.content = func(generation.Request) (*generation.Result, error) {
		return nil, generation.ErrRateLimited
	}

	res, err := h.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Created != 0 || len(h.posts(t)) != 0 {
		t.Fatalf("expected no artifact, got %+v", res)
	}
	logs := h.logs(t, "r1", domain.LogPost)
	if len(logs) != 1 || !logs[0].Failed || logs[0].ErrorKind != "RateLimited" || logs[0].RawContent == "" {
		t.Fatalf("expected one failed log with the error, got %+v", logs)
	}
	if len(h.pub.published) != 0 {
		t.Fatal("expected no notification")
	}
	if snap := h.sched.Stats().Snapshot(); snap.Failures[FailureContent] != 1 || snap.Failures["RateLimited"] != 1 {
		t.Fatalf("unexpected failures: %+v", snap.Failures)
	}
}

func TestTickPlanTimeoutSkipsRobotThenRecovers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, fixedGate{"r1": domain.ActionPost}, "r1")
	h.gen.plan = func() (*generation.Result, error) { return nil, generation.ErrTimeout }

	if _, err := h.sched.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if h.gen.contentCalls() != 0 {
		t.Fatal("expected content generation to be skipped after a plan failure")
	}
	plan, err := h.store.GetPlan(ctx, "r1", "2026-10-14")
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if plan == nil || plan.Status != domain.PlanFailed {
		t.Fatalf("expected FAILED plan, got %+v", plan)
	}
	if diary := h.logs(t, "r1", domain.LogDiary); len(diary) != 1 || diary[0].ErrorKind != "Timeout" {
		t.Fatalf("expected a Timeout diary log, got %+v", diary)
	}
	if len(h.logs(t, "r1", domain.LogPost)) != 0 || len(h.posts(t)) != 0 {
		t.Fatal("expected no post log or artifact")
	}

	h.gen.plan = text(goodPlan)
	res, err := h.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("expected recovery on the next tick, got %+v", res)
	}
}

func TestTickFailureIsRobotScoped(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedGate{"r1": domain.ActionPost, "r2": domain.ActionPost, "r3": domain.ActionNone}, "r1", "r2", "r3")
	h.gen.content = func(req generation.Request) (*generation.Result, error) {
		if req.User == "robot-r1" {
			return nil, generation.ErrUpstream
		}
		return &generation.Result{Text: "hello from r2"}, nil
	}

	res, err := h.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Evaluated != 3 || res.Acting != 2 || res.Created != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	posts := h.posts(t)
	if len(posts) != 1 || posts[0].AuthorID != "r2" {
		t.Fatalf("expected only r2's post, got %+v", posts)
	}
	if snap := h.sched.Stats().Snapshot(); snap.Decisions["NONE"] != 1 || snap.Decisions["POST"] != 2 {
		t.Fatalf("unexpected decisions: %+v", snap.Decisions)
	}
}

func TestTickCommentTargetsHumanPost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, fixedGate{"r1": domain.ActionComment}, "r1", "r2")

	human := &domain.Post{ID: "p-human", AuthorID: "bob", AuthorType: domain.AuthorUser, Content: "coffee?", PublishAt: tickTime.Add(-2 * time.Hour)}
	robotPost := &domain.Post{ID: "p-robot", AuthorID: "r2", AuthorType: domain.AuthorRobot, Content: "tea!", PublishAt: tickTime.Add(-time.Hour)}
	for _, p := range []*domain.Post{human, robotPost} {
		if err := h.store.SavePost(ctx, p); err != nil {
			t.Fatalf("SavePost failed: %v", err)
		}
	}
	if err := h.store.UpsertLink(ctx, &domain.UserRobotLink{UserID: "alice", RobotID: "r1"}); err != nil {
		t.Fatalf("UpsertLink failed: %v", err)
	}

	res, err := h.sched.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("expected one comment, got %+v", res)
	}

	comments, err := h.store.ListPostComments(ctx, "p-human", tickTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListPostComments failed: %v", err)
	}
	if len(comments) != 1 || comments[0].AuthorID != "r1" {
		t.Fatalf("expected r1 to comment on the human post, got %+v", comments)
	}

	if len(h.pub.published) != 1 || h.pub.published[0].msg.Kind != notify.KindCommentUpdate {
		t.Fatalf("unexpected published: %+v", h.pub.published)
	}
	got := map[string]bool{}
	for _, id := range h.pub.published[0].recipients {
		got[id] = true
	}
	if len(got) != 2 || !got["bob"] || !got["alice"] {
		t.Fatalf("expected post author and linked user, got %v", h.pub.published[0].recipients)
	}

	// Already commented on the human post, so the next comment goes to the robot post.
	if _, err := h.sched.Tick(ctx); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	again, err := h.store.ListPostComments(ctx, "p-robot", tickTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListPostComments failed: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("expected a comment on the robot post, got %+v", again)
	}
}

func TestTickWithoutTargetDropsAction(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedGate{"r1": domain.ActionReply}, "r1")

	res, err := h.sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if res.Created != 0 || h.gen.contentCalls() != 0 {
		t.Fatalf("expected no generation without a target, got %+v", res)
	}
	if logs := h.logs(t, "r1", domain.LogReply); len(logs) != 0 {
		t.Fatalf("expected no reply log, got %+v", logs)
	}
	if snap := h.sched.Stats().Snapshot(); snap.NoTarget != 1 {
		t.Fatalf("expected no-target count, got %+v", snap)
	}
}

func TestTickOverlapIsSkipped(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedGate{"r1": domain.ActionPost}, "r1")

	entered := make(chan struct{})
	release := make(chan struct{})
	h.gen.content = func(generation.Request) (*generation.Result, error) {
		close(entered)
		<-release
		return &generation.Result{Text: "slow post"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.sched.Tick(context.Background())
		done <- err
	}()
	<-entered

	if _, err := h.sched.Tick(context.Background()); !errors.Is(err, ErrTickRunning) {
		t.Fatalf("expected ErrTickRunning, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Tick failed: %v", err)
	}

	snap := h.sched.Stats().Snapshot()
	if snap.TicksRun != 1 || snap.TicksSkipped != 1 {
		t.Fatalf("unexpected tick counts: %+v", snap)
	}
	if h.sched.Running() {
		t.Fatal("expected scheduler idle after tick")
	}
}

func TestJobsArchiveAndReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, fixedGate{}, "r1")

	old := &domain.GenerationLog{ID: "old", Type: domain.LogPost, GeneratedAt: tickTime.Add(-10 * 24 * time.Hour)}
	fresh := &domain.GenerationLog{ID: "fresh", Type: domain.LogPost, GeneratedAt: tickTime.Add(-time.Hour)}
	for _, l := range []*domain.GenerationLog{old, fresh} {
		l.RobotSnapshot = domain.RobotProfile{RobotID: "r1"}
		if err := h.store.AppendLog(ctx, l); err != nil {
			t.Fatalf("AppendLog failed: %v", err)
		}
	}

	jobs, err := NewJobs(h.store, h.sched.Stats(), JobsConfig{
		ArchiveSchedule:    "0 2 * * *",
		Retention:          7 * 24 * time.Hour,
		StatsResetSchedule: "0 0 * * *",
	}, nil)
	if err != nil {
		t.Fatalf("NewJobs failed: %v", err)
	}
	jobs.now = func() time.Time { return tickTime }

	jobs.Archive(ctx)
	logs := h.logs(t, "r1", "")
	if len(logs) != 1 || logs[0].ID != "fresh" {
		t.Fatalf("expected only the fresh log to survive, got %+v", logs)
	}

	if _, err := h.sched.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	jobs.ResetStats()
	if snap := h.sched.Stats().Snapshot(); snap.TicksRun != 0 {
		t.Fatalf("expected reset counters, got %+v", snap)
	}

	if _, err := NewJobs(h.store, NewStats(), JobsConfig{ArchiveSchedule: "not a cron", Retention: time.Hour}, nil); err == nil {
		t.Fatal("expected invalid schedule to fail")
	}
}
