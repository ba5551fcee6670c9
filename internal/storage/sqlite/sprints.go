package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

const sprintColumns = `id, feature_id, name, status, start_at, end_at, release_date,
	original_estimation, worked, remaining, created_at, updated_at`

// CreateSprint inserts a sprint. An empty status defaults to created.
func (s *SQLiteStorage) CreateSprint(ctx context.Context, sp *types.Sprint, actor string) error {
	if sp.Status == "" {
		sp.Status = types.SprintCreated
	}
	if err := sp.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sprints (feature_id, name, status, start_at, end_at, release_date,
				original_estimation, worked, remaining, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sp.FeatureID, sp.Name, sp.Status, formatTimePtr(sp.Start), formatTimePtr(sp.End), formatTimePtr(sp.ReleaseDate),
			sp.OriginalEstimation, sp.Worked, sp.Remaining, formatTime(now), formatTime(now))
		if err != nil {
			return constraintErr("insert sprint", err)
		}
		if sp.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read sprint id: %w", err)
		}
		sp.CreatedAt, sp.UpdatedAt = now, now
		return recordEvent(ctx, tx, types.EntitySprint, sp.ID, types.EventCreated, actor, nil, sp, "")
	})
}

// GetSprint returns the sprint or nil
func (s *SQLiteStorage) GetSprint(ctx context.Context, id int64) (*types.Sprint, error) {
	return getSprint(ctx, s.db, id)
}

func getSprint(ctx context.Context, q execer, id int64) (*types.Sprint, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get sprint: %w", err)
	}
	sprints, err := scanSprints(rows)
	if err != nil || len(sprints) == 0 {
		return nil, err
	}
	return sprints[0], nil
}

// ListSprints returns the sprints of a feature, or all sprints when featureID is 0
func (s *SQLiteStorage) ListSprints(ctx context.Context, featureID int64) ([]*types.Sprint, error) {
	query := `SELECT ` + sprintColumns + ` FROM sprints`
	var args []any
	if featureID != 0 {
		query += ` WHERE feature_id = ?`
		args = append(args, featureID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sprints: %w", err)
	}
	return scanSprints(rows)
}

// UpdateSprint writes every mutable sprint column. Status changes are
// recorded as their own event.
func (s *SQLiteStorage) UpdateSprint(ctx context.Context, sp *types.Sprint, actor string) error {
	if err := sp.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := getSprint(ctx, tx, sp.ID)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("sprint %d: %w", sp.ID, ErrNotFound)
		}
		if err := updateSprint(ctx, tx, sp); err != nil {
			return err
		}
		sp.CreatedAt = old.CreatedAt
		event := types.EventUpdated
		if old.Status != sp.Status {
			event = types.EventStatusChanged
		}
		return recordEvent(ctx, tx, types.EntitySprint, sp.ID, event, actor, old, sp, "")
	})
}

func updateSprint(ctx context.Context, q execer, sp *types.Sprint) error {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		UPDATE sprints SET name = ?, status = ?, start_at = ?, end_at = ?, release_date = ?,
			original_estimation = ?, worked = ?, remaining = ?, updated_at = ?
		WHERE id = ?
	`, sp.Name, sp.Status, formatTimePtr(sp.Start), formatTimePtr(sp.End), formatTimePtr(sp.ReleaseDate),
		sp.OriginalEstimation, sp.Worked, sp.Remaining, formatTime(now), sp.ID)
	if err != nil {
		return constraintErr("update sprint", err)
	}
	none, err := notFound(res)
	if err != nil {
		return err
	}
	if none {
		return fmt.Errorf("sprint %d: %w", sp.ID, ErrNotFound)
	}
	sp.UpdatedAt = now
	return nil
}

// DeleteSprint removes a sprint and its tasks
func (s *SQLiteStorage) DeleteSprint(ctx context.Context, id int64, actor string) error {
	return s.deleteRow(ctx, "sprints", types.EntitySprint, id, actor)
}

// ProductOfSprint resolves the product owning a sprint, 0 when the sprint is unknown
func (s *SQLiteStorage) ProductOfSprint(ctx context.Context, sprintID int64) (int64, error) {
	var productID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT v.product_id FROM sprints s
		JOIN features f ON f.id = s.feature_id
		JOIN versions v ON v.id = f.version_id
		WHERE s.id = ?
	`, sprintID).Scan(&productID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve sprint product: %w", err)
	}
	return productID, nil
}

func scanSprints(rows *sql.Rows) ([]*types.Sprint, error) {
	defer rows.Close()
	var out []*types.Sprint
	for rows.Next() {
		var sp types.Sprint
		var start, end, release sql.NullString
		var created, updated string
		if err := rows.Scan(&sp.ID, &sp.FeatureID, &sp.Name, &sp.Status, &start, &end, &release,
			&sp.OriginalEstimation, &sp.Worked, &sp.Remaining, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan sprint: %w", err)
		}
		var err error
		if sp.Start, err = parseNullTime(start); err != nil {
			return nil, err
		}
		if sp.End, err = parseNullTime(end); err != nil {
			return nil, err
		}
		if sp.ReleaseDate, err = parseNullTime(release); err != nil {
			return nil, err
		}
		if sp.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if sp.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, &sp)
	}
	return out, rows.Err()
}
