package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
)

const planColumns = `id, robot_id, plan_date, diary, slots_json, status, error_msg, created_at, updated_at, is_deleted`

// GetPlan returns the live plan for a robot and date.
func (s *SQLiteStore) GetPlan(ctx context.Context, robotID, planDate string) (*domain.DailyPlan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM daily_plans WHERE robot_id = ? AND plan_date = ? AND is_deleted = 0`,
		robotID, planDate)
	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return plan, err
}

func scanPlan(row rowScanner) (*domain.DailyPlan, error) {
	var plan domain.DailyPlan
	var slotsJSON, status string
	var errorMsg sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&plan.ID, &plan.RobotID, &plan.PlanDate, &plan.Diary, &slotsJSON,
		&status, &errorMsg, &createdAt, &updatedAt, &plan.IsDeleted,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan plan row: %w", err)
	}

	if err := json.Unmarshal([]byte(slotsJSON), &plan.Slots); err != nil {
		return nil, fmt.Errorf("decode plan slots: %w", err)
	}
	plan.Status = domain.PlanStatus(status)
	plan.ErrorMsg = errorMsg.String
	plan.CreatedAt = fromMillis(createdAt)
	plan.UpdatedAt = fromMillis(updatedAt)
	return &plan, nil
}

// ClaimPlan inserts plan as PENDING if no live plan exists for its key.
func (s *SQLiteStore) ClaimPlan(ctx context.Context, plan *domain.DailyPlan) (bool, error) {
	now := time.Now()
	plan.Status = domain.PlanPending
	plan.CreatedAt = now
	plan.UpdatedAt = now

	query := `
	INSERT INTO daily_plans (id, robot_id, plan_date, diary, slots_json, status, created_at, updated_at, is_deleted)
	VALUES (?, ?, ?, '', '[]', ?, ?, ?, 0)
	ON CONFLICT DO NOTHING`

	result, err := s.exec(ctx, "claim plan", query,
		plan.ID, plan.RobotID, plan.PlanDate, string(domain.PlanPending),
		toMillis(now), toMillis(now),
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ReclaimPlan moves a FAILED or stale PENDING plan back to PENDING.
func (s *SQLiteStore) ReclaimPlan(ctx context.Context, planID string, staleBefore time.Time) (bool, error) {
	query := `
	UPDATE daily_plans SET status = ?, error_msg = NULL, updated_at = ?
	WHERE id = ? AND is_deleted = 0
	  AND (status = ? OR (status = ? AND updated_at < ?))`

	result, err := s.exec(ctx, "reclaim plan", query,
		string(domain.PlanPending), toMillis(time.Now()), planID,
		string(domain.PlanFailed), string(domain.PlanPending), toMillis(staleBefore),
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows == 1, nil
}

// CompletePlan writes a SUCCESS or FAILED outcome over a PENDING plan.
func (s *SQLiteStore) CompletePlan(ctx context.Context, plan *domain.DailyPlan) error {
	if plan.Status != domain.PlanSuccess && plan.Status != domain.PlanFailed {
		return fmt.Errorf("complete plan: invalid status %q", plan.Status)
	}
	slots := plan.Slots
	if slots == nil {
		slots = []domain.PlanSlot{}
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode plan slots: %w", err)
	}
	plan.UpdatedAt = time.Now()

	query := `
	UPDATE daily_plans SET diary = ?, slots_json = ?, status = ?, error_msg = ?, updated_at = ?
	WHERE id = ? AND status = ? AND is_deleted = 0`

	result, err := s.exec(ctx, "complete plan", query,
		plan.Diary, string(slotsJSON), string(plan.Status), nullString(plan.ErrorMsg),
		toMillis(plan.UpdatedAt), plan.ID, string(domain.PlanPending),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPlanConflict
	}
	return nil
}

// ListPlans returns live plans for a robot, newest date first.
func (s *SQLiteStore) ListPlans(ctx context.Context, robotID string, limit int) ([]*domain.DailyPlan, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM daily_plans WHERE robot_id = ? AND is_deleted = 0 ORDER BY plan_date DESC LIMIT ?`,
		robotID, limit)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer closeRows(rows, "daily_plans")

	var plans []*domain.DailyPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

// SoftDeletePlan marks the live plan for a key deleted.
func (s *SQLiteStore) SoftDeletePlan(ctx context.Context, robotID, planDate string) (bool, error) {
	result, err := s.exec(ctx, "soft delete plan",
		`UPDATE daily_plans SET is_deleted = 1, updated_at = ? WHERE robot_id = ? AND plan_date = ? AND is_deleted = 0`,
		toMillis(time.Now()), robotID, planDate)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}
