package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/ashureev/robofeed/internal/prompt"
)

// selectTarget finds what a COMMENT, REPLY or SHARE responds to. POST needs
// no target. ok is false when nothing eligible exists.
func (s *Scheduler) selectTarget(ctx context.Context, robotID string, action domain.Action, now time.Time) (prompt.Target, bool, error) {
	since := now.Add(-s.cfg.TargetLookback)

	switch action {
	case domain.ActionPost:
		return prompt.Target{}, true, nil

	case domain.ActionComment, domain.ActionShare:
		posts, err := s.repo.RecentPosts(ctx, since, now)
		if err != nil {
			return prompt.Target{}, false, fmt.Errorf("list recent posts: %w", err)
		}
		eligible := func(p *domain.Post) (bool, error) {
			if p.AuthorID == robotID {
				return false, nil
			}
			if action == domain.ActionComment {
				done, err := s.repo.HasCommented(ctx, robotID, p.ID)
				return !done, err
			}
			if p.SharedPostID != "" {
				return false, nil
			}
			done, err := s.repo.HasShared(ctx, robotID, p.ID)
			return !done, err
		}
		post, ok, err := pick(posts, func(p *domain.Post) domain.AuthorType { return p.AuthorType }, eligible)
		if err != nil || !ok {
			return prompt.Target{}, false, err
		}
		return prompt.Target{Post: post}, true, nil

	case domain.ActionReply:
		comments, err := s.repo.RecentComments(ctx, since, now)
		if err != nil {
			return prompt.Target{}, false, fmt.Errorf("list recent comments: %w", err)
		}
		eligible := func(c *domain.Comment) (bool, error) {
			if c.AuthorID == robotID {
				return false, nil
			}
			done, err := s.repo.HasReplied(ctx, robotID, c.ID)
			return !done, err
		}
		comment, ok, err := pick(comments, func(c *domain.Comment) domain.AuthorType { return c.AuthorType }, eligible)
		if err != nil || !ok {
			return prompt.Target{}, false, err
		}
		post, err := s.repo.GetPost(ctx, comment.PostID)
		if err != nil {
			return prompt.Target{}, false, fmt.Errorf("get post: %w", err)
		}
		if post == nil {
			return prompt.Target{}, false, nil
		}
		return prompt.Target{Post: post, Comment: comment}, true, nil
	}
	return prompt.Target{}, false, nil
}

// pick returns the first eligible item authored by a human, else the first
// eligible robot-authored one. items are newest first.
func pick[T any](items []T, author func(T) domain.AuthorType, eligible func(T) (bool, error)) (T, bool, error) {
	var zero T
	for _, want := range []domain.AuthorType{domain.AuthorUser, domain.AuthorRobot} {
		for _, item := range items {
			if author(item) != want {
				continue
			}
			ok, err := eligible(item)
			if err != nil {
				return zero, false, err
			}
			if ok {
				return item, true, nil
			}
		}
	}
	return zero, false, nil
}
