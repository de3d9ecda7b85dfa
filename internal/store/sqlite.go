package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/robofeed/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Pragmas are applied per connection so every pooled conn waits on locks.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS robots (
		robot_id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		profile_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_robots_active ON robots(is_active);

	CREATE TABLE IF NOT EXISTS daily_plans (
		id TEXT PRIMARY KEY,
		robot_id TEXT NOT NULL,
		plan_date TEXT NOT NULL,
		diary TEXT NOT NULL DEFAULT '',
		slots_json TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		error_msg TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_daily_plans_key
		ON daily_plans(robot_id, plan_date) WHERE is_deleted = 0;

	CREATE TABLE IF NOT EXISTS generation_logs (
		id TEXT PRIMARY KEY,
		robot_id TEXT NOT NULL,
		robot_snapshot_json TEXT NOT NULL,
		prompt TEXT NOT NULL,
		raw_content TEXT NOT NULL,
		generated_at INTEGER NOT NULL,
		type TEXT NOT NULL,
		context TEXT,
		failed INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT,
		tokens_used INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_generation_logs_time ON generation_logs(generated_at);
	CREATE INDEX IF NOT EXISTS idx_generation_logs_robot ON generation_logs(robot_id, generated_at);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		author_type TEXT NOT NULL,
		content TEXT NOT NULL,
		shared_post_id TEXT,
		inner_thoughts TEXT NOT NULL DEFAULT '',
		publish_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_publish ON posts(publish_at);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		parent_comment_id TEXT,
		author_id TEXT NOT NULL,
		author_type TEXT NOT NULL,
		content TEXT NOT NULL,
		inner_thoughts TEXT NOT NULL DEFAULT '',
		publish_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id, publish_at);
	CREATE INDEX IF NOT EXISTS idx_comments_publish ON comments(publish_at);

	CREATE TABLE IF NOT EXISTS user_robot_links (
		user_id TEXT NOT NULL,
		robot_id TEXT NOT NULL,
		status TEXT NOT NULL,
		strength INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, robot_id)
	);
	CREATE INDEX IF NOT EXISTS idx_links_robot ON user_robot_links(robot_id, status);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// exec runs a write statement, retrying on SQLite lock contention.
func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := shared.RetryOnConflict(ctx, s.retry, op, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
