package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

func insertWorklog(ctx context.Context, q execer, w *types.Worklog, now time.Time) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO worklogs (task_id, user_id, start_at, time_spent, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.TaskID, w.UserID, formatTime(w.Start), w.TimeSpent, w.Comment, formatTime(now))
	if err != nil {
		return constraintErr("insert worklog", err)
	}
	if w.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read worklog id: %w", err)
	}
	w.CreatedAt = now
	return nil
}

// ListWorklogs returns the work logged on a task, oldest first
func (s *SQLiteStorage) ListWorklogs(ctx context.Context, taskID int64) ([]*types.Worklog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, user_id, start_at, time_spent, comment, created_at
		FROM worklogs WHERE task_id = ? ORDER BY start_at, id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list worklogs: %w", err)
	}
	defer rows.Close()

	var out []*types.Worklog
	for rows.Next() {
		var w types.Worklog
		var start, created string
		if err := rows.Scan(&w.ID, &w.TaskID, &w.UserID, &start, &w.TimeSpent, &w.Comment, &created); err != nil {
			return nil, fmt.Errorf("failed to scan worklog: %w", err)
		}
		if w.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		if w.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}
