package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
)

const (
	postColumns    = `id, author_id, author_type, content, shared_post_id, inner_thoughts, publish_at, created_at`
	commentColumns = `id, post_id, parent_comment_id, author_id, author_type, content, inner_thoughts, publish_at, created_at`
)

// SavePost inserts a post.
func (s *SQLiteStore) SavePost(ctx context.Context, post *domain.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	if post.PublishAt.IsZero() {
		post.PublishAt = post.CreatedAt
	}
	_, err := s.exec(ctx, "save post",
		`INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.AuthorID, string(post.AuthorType), post.Content,
		nullString(post.SharedPostID), post.InnerThoughts, toMillis(post.PublishAt), toMillis(post.CreatedAt),
	)
	return err
}

// SaveComment inserts a comment or reply.
func (s *SQLiteStore) SaveComment(ctx context.Context, comment *domain.Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	if comment.PublishAt.IsZero() {
		comment.PublishAt = comment.CreatedAt
	}
	_, err := s.exec(ctx, "save comment",
		`INSERT INTO comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		comment.ID, comment.PostID, nullString(comment.ParentCommentID), comment.AuthorID,
		string(comment.AuthorType), comment.Content, comment.InnerThoughts,
		toMillis(comment.PublishAt), toMillis(comment.CreatedAt),
	)
	return err
}

// DeletePost removes a post that must not be published.
func (s *SQLiteStore) DeletePost(ctx context.Context, postID string) error {
	_, err := s.exec(ctx, "delete post", `DELETE FROM posts WHERE id = ?`, postID)
	return err
}

// DeleteComment removes a comment that must not be published.
func (s *SQLiteStore) DeleteComment(ctx context.Context, commentID string) error {
	_, err := s.exec(ctx, "delete comment", `DELETE FROM comments WHERE id = ?`, commentID)
	return err
}

// GetPost retrieves a post by ID.
func (s *SQLiteStore) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, postID)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return post, err
}

// ListPublishedPosts returns posts with publishAt <= now, newest first.
func (s *SQLiteStore) ListPublishedPosts(ctx context.Context, now time.Time, limit int) ([]*domain.Post, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts WHERE publish_at <= ? ORDER BY publish_at DESC LIMIT ?`,
		toMillis(now), limit)
}

// RecentPosts returns posts published in [since, now], newest first.
func (s *SQLiteStore) RecentPosts(ctx context.Context, since, now time.Time) ([]*domain.Post, error) {
	return s.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts WHERE publish_at >= ? AND publish_at <= ? ORDER BY publish_at DESC LIMIT 200`,
		toMillis(since), toMillis(now))
}

func (s *SQLiteStore) queryPosts(ctx context.Context, query string, args ...any) ([]*domain.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer closeRows(rows, "posts")

	var posts []*domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func scanPost(row rowScanner) (*domain.Post, error) {
	var post domain.Post
	var authorType string
	var shared sql.NullString
	var publishAt, createdAt int64

	err := row.Scan(&post.ID, &post.AuthorID, &authorType, &post.Content, &shared, &post.InnerThoughts, &publishAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan post row: %w", err)
	}
	post.AuthorType = domain.AuthorType(authorType)
	post.SharedPostID = shared.String
	post.PublishAt = fromMillis(publishAt)
	post.CreatedAt = fromMillis(createdAt)
	return &post, nil
}

// ListPostComments returns published comments under a post, oldest first.
func (s *SQLiteStore) ListPostComments(ctx context.Context, postID string, now time.Time) ([]*domain.Comment, error) {
	return s.queryComments(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE post_id = ? AND publish_at <= ? ORDER BY publish_at ASC`,
		postID, toMillis(now))
}

// RecentComments returns comments published in [since, now], newest first.
func (s *SQLiteStore) RecentComments(ctx context.Context, since, now time.Time) ([]*domain.Comment, error) {
	return s.queryComments(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE publish_at >= ? AND publish_at <= ? ORDER BY publish_at DESC LIMIT 200`,
		toMillis(since), toMillis(now))
}

func (s *SQLiteStore) queryComments(ctx context.Context, query string, args ...any) ([]*domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer closeRows(rows, "comments")

	var comments []*domain.Comment
	for rows.Next() {
		var c domain.Comment
		var parent sql.NullString
		var authorType string
		var publishAt, createdAt int64
		if err := rows.Scan(&c.ID, &c.PostID, &parent, &c.AuthorID, &authorType, &c.Content, &c.InnerThoughts, &publishAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		c.ParentCommentID = parent.String
		c.AuthorType = domain.AuthorType(authorType)
		c.PublishAt = fromMillis(publishAt)
		c.CreatedAt = fromMillis(createdAt)
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// HasCommented reports whether author commented directly on the post.
func (s *SQLiteStore) HasCommented(ctx context.Context, authorID, postID string) (bool, error) {
	return s.exists(ctx,
		`SELECT 1 FROM comments WHERE author_id = ? AND post_id = ? AND parent_comment_id IS NULL LIMIT 1`,
		authorID, postID)
}

// HasReplied reports whether author replied to the comment.
func (s *SQLiteStore) HasReplied(ctx context.Context, authorID, commentID string) (bool, error) {
	return s.exists(ctx,
		`SELECT 1 FROM comments WHERE author_id = ? AND parent_comment_id = ? LIMIT 1`,
		authorID, commentID)
}

// HasShared reports whether author already shared the post.
func (s *SQLiteStore) HasShared(ctx context.Context, authorID, postID string) (bool, error) {
	return s.exists(ctx,
		`SELECT 1 FROM posts WHERE author_id = ? AND shared_post_id = ? LIMIT 1`,
		authorID, postID)
}

func (s *SQLiteStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query exists: %w", err)
	}
	return true, nil
}

// PostParticipants returns distinct human authors of the post and its comments.
func (s *SQLiteStore) PostParticipants(ctx context.Context, postID string) ([]string, error) {
	query := `
	SELECT author_id FROM posts WHERE id = ? AND author_type = ?
	UNION
	SELECT author_id FROM comments WHERE post_id = ? AND author_type = ?`

	rows, err := s.db.QueryContext(ctx, query,
		postID, string(domain.AuthorUser), postID, string(domain.AuthorUser))
	if err != nil {
		return nil, fmt.Errorf("query post participants: %w", err)
	}
	defer closeRows(rows, "post participants")

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return users, nil
}
