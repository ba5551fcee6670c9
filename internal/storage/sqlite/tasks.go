package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

const taskColumns = `id, sprint_id, parent_id, order_id, name, kind, status, resource_id,
	start_at, finish_at, fixed_start, original_estimate, min_estimate, max_estimate,
	remaining, time_spent, progress, impediment, notes, created_at, updated_at`

// PlanUpdate is everything a planner edit writes back in one transaction.
// Tasks in Changes with a negative ID are new; they receive real IDs and
// every reference to them (parents, relations, worklogs, events) is remapped.
type PlanUpdate struct {
	Sprint   *types.Sprint
	Changes  *tasklist.Changeset
	Worklogs []*types.Worklog
	Events   []*types.Event
}

// GetTask returns the task with its predecessor relations, or nil
func (s *SQLiteStorage) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	tasks, err := s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil || len(tasks) == 0 {
		return nil, err
	}
	if err := s.loadRelations(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks[0], nil
}

// ListTasks returns the tasks of a sprint in list order with their relations
func (s *SQLiteStorage) ListTasks(ctx context.Context, sprintID int64) ([]*types.Task, error) {
	tasks, err := s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE sprint_id = ? ORDER BY order_id, id`, sprintID)
	if err != nil {
		return nil, err
	}
	if err := s.loadRelations(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// SearchTasks finds tasks across sprints. Relations are not loaded.
func (s *SQLiteStorage) SearchTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	var where []string
	var args []any

	if filter.SprintID != nil {
		where = append(where, "sprint_id = ?")
		args = append(args, *filter.SprintID)
	}
	if filter.ResourceID != nil {
		where = append(where, "resource_id = ?")
		args = append(args, *filter.ResourceID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Query != "" {
		where = append(where, "(name LIKE ? OR notes LIKE ?)")
		pattern := "%" + filter.Query + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sprint_id, order_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return s.queryTasks(ctx, query, args...)
}

// SaveSprintPlan persists a change set atomically and returns the mapping
// from temporary to assigned task IDs. Steps run in dependency order: tasks
// (parents before children, as the change set is in list order), relation
// removals, relation inserts, task deletes, worklogs, the sprint row and
// finally audit events.
func (s *SQLiteStorage) SaveSprintPlan(ctx context.Context, u *PlanUpdate, actor string) (map[int64]int64, error) {
	idMap := make(map[int64]int64)
	resolve := func(id int64) int64 {
		if real, ok := idMap[id]; ok {
			return real
		}
		return id
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		if u.Changes != nil {
			for _, t := range u.Changes.Updated {
				if t.ParentID != nil {
					p := resolve(*t.ParentID)
					t.ParentID = &p
				}
				if t.ID < 0 {
					tempID := t.ID
					if err := insertTask(ctx, tx, t, now); err != nil {
						return err
					}
					idMap[tempID] = t.ID
					continue
				}
				if err := updateTask(ctx, tx, t, now); err != nil {
					return err
				}
			}

			for _, r := range u.Changes.Removed {
				if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, r.ID); err != nil {
					return fmt.Errorf("failed to remove relation %d: %w", r.ID, err)
				}
			}

			for _, r := range u.Changes.Added {
				r.PredecessorID = resolve(r.PredecessorID)
				r.SuccessorID = resolve(r.SuccessorID)
				res, err := tx.ExecContext(ctx, `
					INSERT INTO relations (successor_id, predecessor_id, visible) VALUES (?, ?, ?)
				`, r.SuccessorID, r.PredecessorID, boolInt(r.Visible))
				if err != nil {
					return constraintErr("insert relation", err)
				}
				if r.ID, err = res.LastInsertId(); err != nil {
					return fmt.Errorf("failed to read relation id: %w", err)
				}
			}

			for _, id := range u.Changes.Deleted {
				// tasks created and removed within the same edit were never stored
				if id < 0 {
					continue
				}
				// children may already be gone through the parent cascade
				if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
					return fmt.Errorf("failed to delete task %d: %w", id, err)
				}
			}
		}

		for _, w := range u.Worklogs {
			w.TaskID = resolve(w.TaskID)
			if err := insertWorklog(ctx, tx, w, now); err != nil {
				return err
			}
		}

		if u.Sprint != nil {
			if err := updateSprint(ctx, tx, u.Sprint); err != nil {
				return err
			}
		}

		for _, e := range u.Events {
			if e.EntityType == types.EntityTask {
				e.EntityID = resolve(e.EntityID)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO events (entity_type, entity_id, event_type, actor, old_value, new_value, comment, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, e.EntityType, e.EntityID, e.EventType, actor, e.OldValue, e.NewValue, e.Comment, formatTime(now)); err != nil {
				return fmt.Errorf("failed to record event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idMap, nil
}

func insertTask(ctx context.Context, tx *sql.Tx, t *types.Task, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (sprint_id, parent_id, order_id, name, kind, status, resource_id,
			start_at, finish_at, fixed_start, original_estimate, min_estimate, max_estimate,
			remaining, time_spent, progress, impediment, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.SprintID, nullInt64(t.ParentID), t.OrderID, t.Name, t.Kind, t.Status, nullInt64(t.ResourceID),
		formatTimePtr(t.Start), formatTimePtr(t.Finish), formatTimePtr(t.FixedStart),
		t.OriginalEstimate, t.MinEstimate, t.MaxEstimate, t.Remaining, t.TimeSpent, t.Progress,
		boolInt(t.Impediment), t.Notes, formatTime(now), formatTime(now))
	if err != nil {
		return constraintErr("insert task", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read task id: %w", err)
	}
	t.ID = id
	t.CreatedAt, t.UpdatedAt = now, now
	for _, r := range t.Predecessors {
		r.SuccessorID = id
	}
	return nil
}

func updateTask(ctx context.Context, tx *sql.Tx, t *types.Task, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET parent_id = ?, order_id = ?, name = ?, kind = ?, status = ?, resource_id = ?,
			start_at = ?, finish_at = ?, fixed_start = ?, original_estimate = ?, min_estimate = ?,
			max_estimate = ?, remaining = ?, time_spent = ?, progress = ?, impediment = ?, notes = ?,
			updated_at = ?
		WHERE id = ?
	`, nullInt64(t.ParentID), t.OrderID, t.Name, t.Kind, t.Status, nullInt64(t.ResourceID),
		formatTimePtr(t.Start), formatTimePtr(t.Finish), formatTimePtr(t.FixedStart),
		t.OriginalEstimate, t.MinEstimate, t.MaxEstimate, t.Remaining, t.TimeSpent, t.Progress,
		boolInt(t.Impediment), t.Notes, formatTime(now), t.ID)
	if err != nil {
		return constraintErr("update task", err)
	}
	none, err := notFound(res)
	if err != nil {
		return err
	}
	if none {
		return fmt.Errorf("task %d: %w", t.ID, ErrNotFound)
	}
	t.UpdatedAt = now

	// a relation revived within the edit may have changed visibility
	for _, r := range t.Predecessors {
		if r.ID <= 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE relations SET visible = ? WHERE id = ?`, boolInt(r.Visible), r.ID); err != nil {
			return fmt.Errorf("failed to update relation %d: %w", r.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) queryTasks(ctx context.Context, query string, args ...any) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		var t types.Task
		var parentID, resourceID sql.NullInt64
		var start, finish, fixed sql.NullString
		var impediment int
		var created, updated string
		if err := rows.Scan(&t.ID, &t.SprintID, &parentID, &t.OrderID, &t.Name, &t.Kind, &t.Status, &resourceID,
			&start, &finish, &fixed, &t.OriginalEstimate, &t.MinEstimate, &t.MaxEstimate,
			&t.Remaining, &t.TimeSpent, &t.Progress, &impediment, &t.Notes, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.ParentID, t.ResourceID = int64Ptr(parentID), int64Ptr(resourceID)
		t.Impediment = impediment != 0
		if t.Start, err = parseNullTime(start); err != nil {
			return nil, err
		}
		if t.Finish, err = parseNullTime(finish); err != nil {
			return nil, err
		}
		if t.FixedStart, err = parseNullTime(fixed); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if t.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// loadRelations attaches predecessor relations to the given tasks
func (s *SQLiteStorage) loadRelations(ctx context.Context, tasks []*types.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[int64]*types.Task, len(tasks))
	placeholders := make([]string, len(tasks))
	args := make([]any, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = t
		placeholders[i] = "?"
		args[i] = t.ID
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, successor_id, predecessor_id, visible FROM relations
		WHERE successor_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY id
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to load relations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r types.Relation
		var visible int
		if err := rows.Scan(&r.ID, &r.SuccessorID, &r.PredecessorID, &visible); err != nil {
			return fmt.Errorf("failed to scan relation: %w", err)
		}
		r.Visible = visible != 0
		if t := byID[r.SuccessorID]; t != nil {
			t.Predecessors = append(t.Predecessors, &r)
		}
	}
	return rows.Err()
}
