package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// CreateGroup inserts a group together with its members
func (s *SQLiteStorage) CreateGroup(ctx context.Context, g *types.UserGroup, actor string) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_groups (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)
		`, g.Name, g.Description, formatTime(now), formatTime(now))
		if err != nil {
			return constraintErr("insert group", err)
		}
		if g.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read group id: %w", err)
		}
		if err := setMembers(ctx, tx, g.ID, g.MemberIDs); err != nil {
			return err
		}
		g.CreatedAt, g.UpdatedAt = now, now
		return recordEvent(ctx, tx, types.EntityGroup, g.ID, types.EventCreated, actor, nil, g, "")
	})
}

// GetGroup returns the group with its member IDs, or nil
func (s *SQLiteStorage) GetGroup(ctx context.Context, id int64) (*types.UserGroup, error) {
	groups, err := s.queryGroups(ctx, `
		SELECT id, name, description, created_at, updated_at FROM user_groups WHERE id = ?
	`, id)
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	return groups[0], nil
}

// ListGroups returns every group ordered by name
func (s *SQLiteStorage) ListGroups(ctx context.Context) ([]*types.UserGroup, error) {
	return s.queryGroups(ctx, `
		SELECT id, name, description, created_at, updated_at FROM user_groups ORDER BY name
	`)
}

// ListGroupsForUser returns the groups the user is a member of
func (s *SQLiteStorage) ListGroupsForUser(ctx context.Context, userID int64) ([]*types.UserGroup, error) {
	return s.queryGroups(ctx, `
		SELECT g.id, g.name, g.description, g.created_at, g.updated_at
		FROM user_groups g JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ? ORDER BY g.name
	`, userID)
}

// UpdateGroup writes the group fields and replaces its member list
func (s *SQLiteStorage) UpdateGroup(ctx context.Context, g *types.UserGroup, actor string) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	old, err := s.GetGroup(ctx, g.ID)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("group %d: %w", g.ID, ErrNotFound)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_groups SET name = ?, description = ?, updated_at = ? WHERE id = ?
		`, g.Name, g.Description, formatTime(now), g.ID); err != nil {
			return constraintErr("update group", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, g.ID); err != nil {
			return fmt.Errorf("failed to clear group members: %w", err)
		}
		if err := setMembers(ctx, tx, g.ID, g.MemberIDs); err != nil {
			return err
		}
		g.CreatedAt, g.UpdatedAt = old.CreatedAt, now
		return recordEvent(ctx, tx, types.EntityGroup, g.ID, types.EventUpdated, actor, old, g, "")
	})
}

// DeleteGroup removes a group and the access it granted
func (s *SQLiteStorage) DeleteGroup(ctx context.Context, id int64, actor string) error {
	return s.deleteRow(ctx, "user_groups", types.EntityGroup, id, actor)
}

func setMembers(ctx context.Context, tx *sql.Tx, groupID int64, memberIDs []int64) error {
	for _, uid := range memberIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO group_members (group_id, user_id) VALUES (?, ?)
		`, groupID, uid); err != nil {
			return constraintErr("add group member", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) queryGroups(ctx context.Context, query string, args ...any) ([]*types.UserGroup, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	var groups []*types.UserGroup
	byID := make(map[int64]*types.UserGroup)
	for rows.Next() {
		var g types.UserGroup
		var created, updated string
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &created, &updated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		if g.CreatedAt, err = parseTime(created); err != nil {
			rows.Close()
			return nil, err
		}
		if g.UpdatedAt, err = parseTime(updated); err != nil {
			rows.Close()
			return nil, err
		}
		g.MemberIDs = []int64{}
		groups = append(groups, &g)
		byID[g.ID] = &g
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(groups) == 0 {
		return groups, nil
	}

	members, err := s.db.QueryContext(ctx, `SELECT group_id, user_id FROM group_members ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	defer members.Close()
	for members.Next() {
		var gid, uid int64
		if err := members.Scan(&gid, &uid); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		if g := byID[gid]; g != nil {
			g.MemberIDs = append(g.MemberIDs, uid)
		}
	}
	return groups, members.Err()
}
