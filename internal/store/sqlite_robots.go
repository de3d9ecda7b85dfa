package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
)

// ListRobots returns all robots ordered by robot ID.
func (s *SQLiteStore) ListRobots(ctx context.Context) ([]*domain.RobotProfile, error) {
	return s.queryRobots(ctx, `SELECT profile_json, created_at, updated_at FROM robots ORDER BY robot_id`)
}

// ListActiveRobots returns robots with isActive set, ordered by robot ID.
func (s *SQLiteStore) ListActiveRobots(ctx context.Context) ([]*domain.RobotProfile, error) {
	return s.queryRobots(ctx, `SELECT profile_json, created_at, updated_at FROM robots WHERE is_active = 1 ORDER BY robot_id`)
}

func (s *SQLiteStore) queryRobots(ctx context.Context, query string, args ...any) ([]*domain.RobotProfile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query robots: %w", err)
	}
	defer closeRows(rows, "robots")

	var robots []*domain.RobotProfile
	for rows.Next() {
		robot, err := scanRobot(rows)
		if err != nil {
			return nil, err
		}
		robots = append(robots, robot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate robots: %w", err)
	}
	return robots, nil
}

// GetRobot retrieves a robot by ID.
func (s *SQLiteStore) GetRobot(ctx context.Context, robotID string) (*domain.RobotProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT profile_json, created_at, updated_at FROM robots WHERE robot_id = ?`, robotID)
	robot, err := scanRobot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return robot, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRobot(row rowScanner) (*domain.RobotProfile, error) {
	var profileJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(&profileJSON, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan robot row: %w", err)
	}

	var robot domain.RobotProfile
	if err := json.Unmarshal([]byte(profileJSON), &robot); err != nil {
		return nil, fmt.Errorf("decode robot profile: %w", err)
	}
	robot.CreatedAt = fromMillis(createdAt)
	robot.UpdatedAt = fromMillis(updatedAt)
	return &robot, nil
}

// UpsertRobot creates or replaces a robot profile. The original creation time is kept.
func (s *SQLiteStore) UpsertRobot(ctx context.Context, robot *domain.RobotProfile) error {
	now := time.Now()
	if robot.CreatedAt.IsZero() {
		robot.CreatedAt = now
	}
	robot.UpdatedAt = now

	profileJSON, err := json.Marshal(robot)
	if err != nil {
		return fmt.Errorf("encode robot profile: %w", err)
	}

	query := `
	INSERT INTO robots (robot_id, name, is_active, profile_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(robot_id) DO UPDATE SET
		name = excluded.name,
		is_active = excluded.is_active,
		profile_json = excluded.profile_json,
		updated_at = excluded.updated_at`

	_, err = s.exec(ctx, "upsert robot", query,
		robot.RobotID, robot.Name, robot.IsActive, string(profileJSON),
		toMillis(robot.CreatedAt), toMillis(robot.UpdatedAt),
	)
	return err
}

// UpsertLink creates or updates a user-robot link.
func (s *SQLiteStore) UpsertLink(ctx context.Context, link *domain.UserRobotLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	if link.Status == "" {
		link.Status = domain.LinkStatusActive
	}

	query := `
	INSERT INTO user_robot_links (user_id, robot_id, status, strength, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id, robot_id) DO UPDATE SET
		status = excluded.status,
		strength = excluded.strength`

	_, err := s.exec(ctx, "upsert link", query,
		link.UserID, link.RobotID, link.Status, link.Strength, toMillis(link.CreatedAt))
	return err
}

// LinkedUsers returns user IDs with an active link to the robot.
func (s *SQLiteStore) LinkedUsers(ctx context.Context, robotID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM user_robot_links WHERE robot_id = ? AND status = ? ORDER BY user_id`,
		robotID, domain.LinkStatusActive)
	if err != nil {
		return nil, fmt.Errorf("query linked users: %w", err)
	}
	defer closeRows(rows, "user_robot_links")

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan linked user: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked users: %w", err)
	}
	return users, nil
}
