package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
)

// AppendLog inserts a generation log.
func (s *SQLiteStore) AppendLog(ctx context.Context, entry *domain.GenerationLog) error {
	if entry.GeneratedAt.IsZero() {
		entry.GeneratedAt = time.Now()
	}
	snapshot, err := json.Marshal(entry.RobotSnapshot)
	if err != nil {
		return fmt.Errorf("encode robot snapshot: %w", err)
	}

	query := `
	INSERT INTO generation_logs (
		id, robot_id, robot_snapshot_json, prompt, raw_content,
		generated_at, type, context, failed, error_kind, tokens_used
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.exec(ctx, "append generation log", query,
		entry.ID, entry.RobotSnapshot.RobotID, string(snapshot), entry.Prompt, entry.RawContent,
		toMillis(entry.GeneratedAt), string(entry.Type), nullString(entry.Context),
		entry.Failed, nullString(entry.ErrorKind), entry.TokensUsed,
	)
	return err
}

// ListLogs returns logs matching filter, newest first.
func (s *SQLiteStore) ListLogs(ctx context.Context, filter domain.LogFilter) ([]*domain.GenerationLog, error) {
	var where []string
	var args []any
	if filter.RobotID != "" {
		where = append(where, "robot_id = ?")
		args = append(args, filter.RobotID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}

	query := `
	SELECT id, robot_snapshot_json, prompt, raw_content, generated_at,
	       type, context, failed, error_kind, tokens_used
	FROM generation_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " ORDER BY generated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query generation logs: %w", err)
	}
	defer closeRows(rows, "generation_logs")

	var logs []*domain.GenerationLog
	for rows.Next() {
		var entry domain.GenerationLog
		var snapshot, logType string
		var logContext, errorKind sql.NullString
		var generatedAt int64

		if err := rows.Scan(
			&entry.ID, &snapshot, &entry.Prompt, &entry.RawContent, &generatedAt,
			&logType, &logContext, &entry.Failed, &errorKind, &entry.TokensUsed,
		); err != nil {
			return nil, fmt.Errorf("scan generation log row: %w", err)
		}
		if err := json.Unmarshal([]byte(snapshot), &entry.RobotSnapshot); err != nil {
			return nil, fmt.Errorf("decode robot snapshot: %w", err)
		}
		entry.GeneratedAt = fromMillis(generatedAt)
		entry.Type = domain.LogType(logType)
		entry.Context = logContext.String
		entry.ErrorKind = errorKind.String
		logs = append(logs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generation logs: %w", err)
	}
	return logs, nil
}

// DeleteLogsBefore removes logs generated before cutoff.
func (s *SQLiteStore) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.exec(ctx, "delete generation logs",
		`DELETE FROM generation_logs WHERE generated_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
