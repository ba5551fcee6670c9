package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

const userColumns = `id, name, email, admin, availability, first_working_day, last_working_day, created_at, updated_at`

// CreateUser inserts a user. A zero availability defaults to full time.
func (s *SQLiteStorage) CreateUser(ctx context.Context, u *types.User, actor string) error {
	if u.Availability == 0 {
		u.Availability = 1
	}
	if err := u.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO users (name, email, admin, availability, first_working_day, last_working_day, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, u.Name, u.Email, boolInt(u.Admin), u.Availability, formatTimePtr(u.FirstWorkingDay), formatTimePtr(u.LastWorkingDay),
			formatTime(now), formatTime(now))
		if err != nil {
			return constraintErr("insert user", err)
		}
		if u.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read user id: %w", err)
		}
		u.CreatedAt, u.UpdatedAt = now, now
		return recordEvent(ctx, tx, types.EntityUser, u.ID, types.EventCreated, actor, nil, u, "")
	})
}

// GetUser returns the user or nil
func (s *SQLiteStorage) GetUser(ctx context.Context, id int64) (*types.User, error) {
	users, err := s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return users[0], nil
}

// GetUserByName returns the user with the given name or nil
func (s *SQLiteStorage) GetUserByName(ctx context.Context, name string) (*types.User, error) {
	users, err := s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE name = ?`, name)
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return users[0], nil
}

// ListUsers returns every user ordered by name
func (s *SQLiteStorage) ListUsers(ctx context.Context) ([]*types.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
}

// UpdateUser writes the mutable user fields
func (s *SQLiteStorage) UpdateUser(ctx context.Context, u *types.User, actor string) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	old, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("user %d: %w", u.ID, ErrNotFound)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET name = ?, email = ?, admin = ?, availability = ?,
				first_working_day = ?, last_working_day = ?, updated_at = ?
			WHERE id = ?
		`, u.Name, u.Email, boolInt(u.Admin), u.Availability, formatTimePtr(u.FirstWorkingDay), formatTimePtr(u.LastWorkingDay),
			formatTime(now), u.ID); err != nil {
			return constraintErr("update user", err)
		}
		u.CreatedAt, u.UpdatedAt = old.CreatedAt, now
		return recordEvent(ctx, tx, types.EntityUser, u.ID, types.EventUpdated, actor, old, u, "")
	})
}

// DeleteUser removes a user. Their tasks become unassigned.
func (s *SQLiteStorage) DeleteUser(ctx context.Context, id int64, actor string) error {
	return s.deleteRow(ctx, "users", types.EntityUser, id, actor)
}

func (s *SQLiteStorage) queryUsers(ctx context.Context, query string, args ...any) ([]*types.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var out []*types.User
	for rows.Next() {
		var u types.User
		var admin int
		var first, last sql.NullString
		var created, updated string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &admin, &u.Availability, &first, &last, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Admin = admin != 0
		if u.FirstWorkingDay, err = parseNullTime(first); err != nil {
			return nil, err
		}
		if u.LastWorkingDay, err = parseNullTime(last); err != nil {
			return nil, err
		}
		if u.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if u.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// AddOffDay records an absence range for a user
func (s *SQLiteStorage) AddOffDay(ctx context.Context, o *types.OffDay, actor string) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO off_days (user_id, first_day, last_day, type) VALUES (?, ?, ?, ?)
		`, o.UserID, formatTime(o.FirstDay), formatTime(o.LastDay), o.Type)
		if err != nil {
			return constraintErr("insert off day", err)
		}
		if o.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read off day id: %w", err)
		}
		return recordEvent(ctx, tx, types.EntityUser, o.UserID, types.EventUpdated, actor, nil, o, "off day added")
	})
}

// DeleteOffDay removes an absence range
func (s *SQLiteStorage) DeleteOffDay(ctx context.Context, id int64, actor string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var userID int64
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM off_days WHERE id = ?`, id).Scan(&userID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("off day %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get off day: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM off_days WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete off day: %w", err)
		}
		return recordEvent(ctx, tx, types.EntityUser, userID, types.EventUpdated, actor, nil, nil, fmt.Sprintf("off day %d removed", id))
	})
}

// ListOffDays returns the absences of a user, or of everyone when userID is 0
func (s *SQLiteStorage) ListOffDays(ctx context.Context, userID int64) ([]*types.OffDay, error) {
	query := `SELECT id, user_id, first_day, last_day, type FROM off_days`
	var args []any
	if userID != 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY user_id, first_day`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list off days: %w", err)
	}
	defer rows.Close()

	var out []*types.OffDay
	for rows.Next() {
		var o types.OffDay
		var first, last string
		if err := rows.Scan(&o.ID, &o.UserID, &first, &last, &o.Type); err != nil {
			return nil, fmt.Errorf("failed to scan off day: %w", err)
		}
		if o.FirstDay, err = parseTime(first); err != nil {
			return nil, err
		}
		if o.LastDay, err = parseTime(last); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}
