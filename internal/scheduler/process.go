package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/ashureev/robofeed/internal/generation"
	"github.com/ashureev/robofeed/internal/notify"
	"github.com/ashureev/robofeed/internal/prompt"
	"github.com/ashureev/robofeed/internal/store"
	"github.com/google/uuid"
)

const notifyTimeout = 10 * time.Second

// artifact is a saved post or comment awaiting notification.
type artifact struct {
	id      string
	post    *domain.Post
	comment *domain.Comment
}

// process runs plan, target, content, inner thoughts, persist, log and notify
// for one acting robot, in that order. It reports whether an artifact was
// created.
func (s *Scheduler) process(ctx context.Context, robot *domain.RobotProfile, d domain.BehaviorDecision) bool {
	logger := s.logger.With("robot_id", robot.RobotID, "action", d.Action)
	now := d.EvaluatedAt

	plan, err := s.planner.EnsurePlan(ctx, robot.RobotID, now)
	if errors.Is(err, store.ErrPlanConflict) {
		logger.Info("Daily plan changed concurrently, skipping robot", "error", err)
		return false
	}
	if err != nil {
		s.stats.failure(FailurePersistence)
		logger.Error("Failed to ensure daily plan", "error", err)
		return false
	}
	if !plan.Usable() {
		if plan != nil && plan.Status == domain.PlanFailed {
			s.stats.failure(FailurePlan)
		}
		logger.Info("No usable daily plan, skipping robot")
		return false
	}

	target, ok, err := s.selectTarget(ctx, robot.RobotID, d.Action, now)
	if err != nil {
		s.stats.failure(FailurePersistence)
		logger.Error("Failed to select target", "error", err)
		return false
	}
	if !ok {
		s.stats.missingTarget()
		logger.Debug("No eligible target, dropping action")
		return false
	}

	text := prompt.Action(prompt.ActionInput{
		Robot:  robot,
		Plan:   plan,
		Now:    now,
		World:  s.world.For(robot.RobotID, robot.Location),
		Action: d.Action,
		Target: target,
	})
	entry := &domain.GenerationLog{
		ID:            uuid.NewString(),
		RobotSnapshot: *robot,
		Prompt:        text,
		Type:          d.Action.LogType(),
		Context:       targetContext(target),
	}

	res, err := s.gen.Generate(ctx, generation.Request{
		Prompt: text,
		Inputs: prompt.Inputs(robot),
		User:   "robot-" + robot.RobotID,
	})
	var content string
	if err == nil {
		entry.RawContent = res.Text
		entry.TokensUsed = res.TokensUsed
		if content = prompt.CleanCompletion(res.Text); content == "" {
			err = errors.Join(generation.ErrMalformedResponse, errors.New("empty content after cleanup"))
		}
	}
	if err != nil {
		s.recordGenerationFailure(ctx, logger, entry, err)
		return false
	}

	id := uuid.NewString()
	thoughts, thoughtsEntry := s.innerThoughts(ctx, logger, robot, d, target, content, id)

	art, err := s.save(ctx, id, robot, d, target, content, thoughts)
	if err != nil {
		s.stats.failure(FailurePersistence)
		logger.Error("Failed to save artifact", "error", err)
		entry.Failed = true
		entry.ErrorKind = FailurePersistence
		if logErr := s.repo.AppendLog(ctx, entry); logErr != nil {
			logger.Error("Failed to append generation log", "error", logErr)
		}
		return false
	}

	// An artifact is only kept once its content log is written.
	entry.Context = appendContext(entry.Context, "artifact="+art.id)
	if err := s.repo.AppendLog(ctx, entry); err != nil {
		s.stats.failure(FailurePersistence)
		logger.Error("Failed to append generation log, discarding artifact", "artifact_id", art.id, "error", err)
		s.discard(ctx, logger, art)
		return false
	}
	if err := s.repo.AppendLog(ctx, thoughtsEntry); err != nil {
		s.stats.failure(FailurePersistence)
		logger.Warn("Failed to append inner thoughts log", "artifact_id", art.id, "error", err)
	}

	s.stats.artifact(d.Action)
	logger.Info("Robot content created", "artifact_id", art.id, "publish_at", d.PublishAt)
	s.scheduleNotify(ctx, robot, d, art)
	return true
}

// innerThoughts generates the private monologue behind an action. A failed
// attempt is logged and replaced by a fallback so the action still lands.
func (s *Scheduler) innerThoughts(ctx context.Context, logger *slog.Logger, robot *domain.RobotProfile, d domain.BehaviorDecision, target prompt.Target, content, artifactID string) (string, *domain.GenerationLog) {
	situation := prompt.Situation(d.Action, content, target)
	text := prompt.InnerThoughts(robot, situation)
	entry := &domain.GenerationLog{
		ID:            uuid.NewString(),
		RobotSnapshot: *robot,
		Prompt:        text,
		Type:          domain.LogInnerThoughts,
		Context:       appendContext(targetContext(target), "artifact="+artifactID),
	}

	res, err := s.gen.Generate(ctx, generation.Request{
		Prompt: text,
		Inputs: prompt.Inputs(robot),
		User:   "robot-" + robot.RobotID,
	})
	var thoughts string
	if err == nil {
		entry.RawContent = res.Text
		entry.TokensUsed = res.TokensUsed
		if thoughts = prompt.CleanCompletion(res.Text); thoughts == "" {
			err = errors.Join(generation.ErrMalformedResponse, errors.New("empty inner thoughts after cleanup"))
		}
	}
	if err != nil {
		kind := generation.KindOf(err)
		s.stats.failure(kind)
		logger.Warn("Inner thoughts generation failed, using fallback", "kind", kind, "error", err)
		entry.Failed = true
		entry.ErrorKind = kind
		entry.RawContent = err.Error()
		thoughts = prompt.FallbackThoughts(robot, situation)
	}
	return thoughts, entry
}

func (s *Scheduler) discard(ctx context.Context, logger *slog.Logger, art artifact) {
	var err error
	if art.post != nil {
		err = s.repo.DeletePost(ctx, art.id)
	} else {
		err = s.repo.DeleteComment(ctx, art.id)
	}
	if err != nil {
		logger.Error("Failed to discard unlogged artifact", "artifact_id", art.id, "error", err)
	}
}

func (s *Scheduler) recordGenerationFailure(ctx context.Context, logger *slog.Logger, entry *domain.GenerationLog, err error) {
	kind := generation.KindOf(err)
	s.stats.failure(FailureContent)
	s.stats.failure(kind)
	logger.Warn("Content generation failed", "kind", kind, "error", err)

	entry.Failed = true
	entry.ErrorKind = kind
	entry.RawContent = err.Error()
	if logErr := s.repo.AppendLog(ctx, entry); logErr != nil {
		s.stats.failure(FailurePersistence)
		logger.Error("Failed to append generation failure log", "error", logErr)
	}
}

func (s *Scheduler) save(ctx context.Context, id string, robot *domain.RobotProfile, d domain.BehaviorDecision, target prompt.Target, content, thoughts string) (artifact, error) {
	switch d.Action {
	case domain.ActionPost, domain.ActionShare:
		post := &domain.Post{
			ID:            id,
			AuthorID:      robot.RobotID,
			AuthorType:    domain.AuthorRobot,
			Content:       content,
			InnerThoughts: thoughts,
			PublishAt:     d.PublishAt,
			CreatedAt:     d.EvaluatedAt,
		}
		if d.Action == domain.ActionShare {
			post.SharedPostID = target.Post.ID
		}
		return artifact{id: id, post: post}, s.repo.SavePost(ctx, post)
	default:
		comment := &domain.Comment{
			ID:            id,
			PostID:        target.Post.ID,
			AuthorID:      robot.RobotID,
			AuthorType:    domain.AuthorRobot,
			Content:       content,
			InnerThoughts: thoughts,
			PublishAt:     d.PublishAt,
			CreatedAt:     d.EvaluatedAt,
		}
		if d.Action == domain.ActionReply {
			comment.ParentCommentID = target.Comment.ID
		}
		return artifact{id: id, comment: comment}, s.repo.SaveComment(ctx, comment)
	}
}

// scheduleNotify resolves recipients now and delivers once the artifact is
// visible at its publishAt.
func (s *Scheduler) scheduleNotify(ctx context.Context, robot *domain.RobotProfile, d domain.BehaviorDecision, art artifact) {
	recipients, err := s.recipients(ctx, robot.RobotID, art)
	if err != nil {
		s.stats.failure(FailureNotification)
		s.logger.Warn("Failed to resolve recipients", "robot_id", robot.RobotID, "artifact_id", art.id, "error", err)
	}

	var msg notify.Message
	if art.post != nil {
		msg = notify.NewPostUpdate(art.post)
	} else {
		msg = notify.NewCommentUpdate(art.comment)
	}
	var thoughts string
	if art.post != nil {
		thoughts = art.post.InnerThoughts
	} else {
		thoughts = art.comment.InnerThoughts
	}
	action := notify.NewRobotAction(robot, d.Action, art.id, thoughts, d.PublishAt)

	deliver := func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		sent := s.pub.Publish(nctx, msg, recipients)
		s.pub.Broadcast(nctx, action)
		s.logger.Debug("Artifact notified", "robot_id", robot.RobotID, "artifact_id", art.id, "recipients", len(recipients), "sent", sent)
	}

	if delay := d.PublishAt.Sub(s.now()); delay > 0 {
		s.after(delay, deliver)
		return
	}
	deliver()
}

// recipients returns the users to notify, never robots.
func (s *Scheduler) recipients(ctx context.Context, robotID string, art artifact) ([]string, error) {
	linked, err := s.repo.LinkedUsers(ctx, robotID)
	if err != nil {
		return nil, err
	}
	if art.comment == nil {
		return linked, nil
	}

	participants, err := s.repo.PostParticipants(ctx, art.comment.PostID)
	if err != nil {
		return linked, err
	}
	seen := make(map[string]struct{}, len(participants)+len(linked))
	var out []string
	for _, id := range append(participants, linked...) {
		if id == robotID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func targetContext(t prompt.Target) string {
	ctx := ""
	if t.Post != nil {
		ctx = appendContext(ctx, "post="+t.Post.ID)
	}
	if t.Comment != nil {
		ctx = appendContext(ctx, "comment="+t.Comment.ID)
	}
	return ctx
}

func appendContext(ctx, kv string) string {
	if ctx == "" {
		return kv
	}
	return ctx + " " + kv
}
