// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
)

// ErrPlanConflict is returned when a plan write loses a compare-and-swap.
var ErrPlanConflict = errors.New("plan status changed concurrently")

// RobotRepository gives access to robot profiles.
type RobotRepository interface {
	// ListRobots returns all robots ordered by robot ID.
	ListRobots(ctx context.Context) ([]*domain.RobotProfile, error)

	// ListActiveRobots returns robots with isActive set, ordered by robot ID.
	ListActiveRobots(ctx context.Context) ([]*domain.RobotProfile, error)

	// GetRobot retrieves a robot by ID. Returns nil, nil when absent.
	GetRobot(ctx context.Context, robotID string) (*domain.RobotProfile, error)

	// UpsertRobot creates or replaces a robot profile.
	UpsertRobot(ctx context.Context, robot *domain.RobotProfile) error
}

// PlanRepository persists daily plans keyed by (robotID, planDate).
type PlanRepository interface {
	// GetPlan returns the live plan for a robot and date, or nil, nil.
	GetPlan(ctx context.Context, robotID, planDate string) (*domain.DailyPlan, error)

	// ClaimPlan inserts plan as PENDING if no live plan exists for its key.
	// It reports whether the insert happened.
	ClaimPlan(ctx context.Context, plan *domain.DailyPlan) (bool, error)

	// ReclaimPlan moves a plan back to PENDING if it is FAILED, or PENDING and
	// last updated before staleBefore. It reports whether the swap happened.
	ReclaimPlan(ctx context.Context, planID string, staleBefore time.Time) (bool, error)

	// CompletePlan writes the outcome of a PENDING plan. It returns
	// ErrPlanConflict if the plan is no longer PENDING.
	CompletePlan(ctx context.Context, plan *domain.DailyPlan) error

	// ListPlans returns live plans for a robot, newest date first.
	ListPlans(ctx context.Context, robotID string, limit int) ([]*domain.DailyPlan, error)

	// SoftDeletePlan marks the live plan for a key deleted.
	SoftDeletePlan(ctx context.Context, robotID, planDate string) (bool, error)
}

// LogRepository stores generation logs. Logs are never updated.
type LogRepository interface {
	// AppendLog inserts a generation log.
	AppendLog(ctx context.Context, entry *domain.GenerationLog) error

	// ListLogs returns logs matching filter, newest first.
	ListLogs(ctx context.Context, filter domain.LogFilter) ([]*domain.GenerationLog, error)

	// DeleteLogsBefore removes logs generated before cutoff.
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ContentRepository stores posts and comments produced on the feed.
type ContentRepository interface {
	// SavePost inserts a post.
	SavePost(ctx context.Context, post *domain.Post) error

	// SaveComment inserts a comment or reply.
	SaveComment(ctx context.Context, comment *domain.Comment) error

	// DeletePost removes a post. Deleting a missing post is not an error.
	DeletePost(ctx context.Context, postID string) error

	// DeleteComment removes a comment. Deleting a missing comment is not an error.
	DeleteComment(ctx context.Context, commentID string) error

	// GetPost retrieves a post by ID. Returns nil, nil when absent.
	GetPost(ctx context.Context, postID string) (*domain.Post, error)

	// ListPublishedPosts returns posts with publishAt <= now, newest first.
	ListPublishedPosts(ctx context.Context, now time.Time, limit int) ([]*domain.Post, error)

	// ListPostComments returns published comments under a post, oldest first.
	ListPostComments(ctx context.Context, postID string, now time.Time) ([]*domain.Comment, error)

	// RecentPosts returns posts published in [since, now], newest first.
	RecentPosts(ctx context.Context, since, now time.Time) ([]*domain.Post, error)

	// RecentComments returns comments published in [since, now], newest first.
	RecentComments(ctx context.Context, since, now time.Time) ([]*domain.Comment, error)

	// HasCommented reports whether author commented directly on the post.
	HasCommented(ctx context.Context, authorID, postID string) (bool, error)

	// HasReplied reports whether author replied to the comment.
	HasReplied(ctx context.Context, authorID, commentID string) (bool, error)

	// HasShared reports whether author already shared the post.
	HasShared(ctx context.Context, authorID, postID string) (bool, error)

	// PostParticipants returns distinct human authors of the post and its comments.
	PostParticipants(ctx context.Context, postID string) ([]string, error)
}

// LinkRepository stores user-robot follow links.
type LinkRepository interface {
	// UpsertLink creates or updates a link.
	UpsertLink(ctx context.Context, link *domain.UserRobotLink) error

	// LinkedUsers returns user IDs with an active link to the robot.
	LinkedUsers(ctx context.Context, robotID string) ([]string, error)
}

// Repository is the full persistence capability set of the service.
type Repository interface {
	RobotRepository
	PlanRepository
	LogRepository
	ContentRepository
	LinkRepository

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
