package sqlite

import (
	"context"
	"fmt"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// GetStatistics returns aggregate counts over the whole database
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	var st types.Statistics

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM versions),
			(SELECT COUNT(*) FROM features),
			(SELECT COUNT(*) FROM sprints),
			(SELECT COUNT(*) FROM sprints WHERE status = 'started'),
			(SELECT COUNT(*) FROM users)
	`).Scan(&st.Products, &st.Versions, &st.Features, &st.Sprints, &st.StartedSprints, &st.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog counts: %w", err)
	}

	// Work sums cover leaf tasks only, stories aggregate their children
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'todo' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind != 'story' THEN original_estimate ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind != 'story' THEN time_spent ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind != 'story' THEN remaining ELSE 0 END), 0)
		FROM tasks
	`).Scan(&st.Tasks, &st.OpenTasks, &st.InProgressTasks, &st.DoneTasks,
		&st.OriginalEstimate, &st.TimeSpent, &st.Remaining)
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics: %w", err)
	}

	return &st, nil
}
