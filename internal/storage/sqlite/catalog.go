package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// CreateProduct inserts a product and assigns its ID
func (s *SQLiteStorage) CreateProduct(ctx context.Context, p *types.Product, actor string) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO products (name, created_at, updated_at) VALUES (?, ?, ?)
		`, p.Name, formatTime(now), formatTime(now))
		if err != nil {
			return constraintErr("insert product", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read product id: %w", err)
		}
		p.CreatedAt, p.UpdatedAt = now, now
		return recordEvent(ctx, tx, types.EntityProduct, p.ID, types.EventCreated, actor, nil, p, "")
	})
}

// GetProduct returns the product or nil when it does not exist
func (s *SQLiteStorage) GetProduct(ctx context.Context, id int64) (*types.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at FROM products WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	products, err := scanProducts(rows)
	if err != nil || len(products) == 0 {
		return nil, err
	}
	return products[0], nil
}

// ListProducts returns every product ordered by name
func (s *SQLiteStorage) ListProducts(ctx context.Context) ([]*types.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at FROM products ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return scanProducts(rows)
}

// UpdateProduct renames a product
func (s *SQLiteStorage) UpdateProduct(ctx context.Context, p *types.Product, actor string) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	old, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("product %d: %w", p.ID, ErrNotFound)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET name = ?, updated_at = ? WHERE id = ?
		`, p.Name, formatTime(now), p.ID); err != nil {
			return constraintErr("update product", err)
		}
		p.CreatedAt, p.UpdatedAt = old.CreatedAt, now
		return recordEvent(ctx, tx, types.EntityProduct, p.ID, types.EventUpdated, actor, old, p, "")
	})
}

// DeleteProduct removes a product with all its versions, features, sprints and tasks
func (s *SQLiteStorage) DeleteProduct(ctx context.Context, id int64, actor string) error {
	return s.deleteRow(ctx, "products", types.EntityProduct, id, actor)
}

func scanProducts(rows *sql.Rows) ([]*types.Product, error) {
	defer rows.Close()
	var out []*types.Product
	for rows.Next() {
		var p types.Product
		var created, updated string
		if err := rows.Scan(&p.ID, &p.Name, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		var err error
		if p.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// GrantAccess adds an ACL entry. Granting an existing entry is a no-op.
func (s *SQLiteStorage) GrantAccess(ctx context.Context, e *types.ACLEntry, actor string) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO product_acl (product_id, user_id, group_id, created_at)
			VALUES (?, ?, ?, ?)
		`, e.ProductID, nullInt64(e.UserID), nullInt64(e.GroupID), formatTime(now))
		if err != nil {
			return constraintErr("grant access", err)
		}
		e.CreatedAt = now
		// Only record event if a row was actually inserted
		if none, err := notFound(res); err != nil || none {
			return err
		}
		return recordEvent(ctx, tx, types.EntityProduct, e.ProductID, types.EventAccessGranted, actor, nil, nil, e.String())
	})
}

// RevokeAccess removes an ACL entry
func (s *SQLiteStorage) RevokeAccess(ctx context.Context, e *types.ACLEntry, actor string) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var res sql.Result
		var err error
		if e.UserID != nil {
			res, err = tx.ExecContext(ctx, `DELETE FROM product_acl WHERE product_id = ? AND user_id = ?`, e.ProductID, *e.UserID)
		} else {
			res, err = tx.ExecContext(ctx, `DELETE FROM product_acl WHERE product_id = ? AND group_id = ?`, e.ProductID, *e.GroupID)
		}
		if err != nil {
			return fmt.Errorf("failed to revoke access: %w", err)
		}
		none, err := notFound(res)
		if err != nil {
			return err
		}
		if none {
			return fmt.Errorf("acl entry %s on product %d: %w", e, e.ProductID, ErrNotFound)
		}
		return recordEvent(ctx, tx, types.EntityProduct, e.ProductID, types.EventAccessRevoked, actor, nil, nil, e.String())
	})
}

// ListACL returns the access entries of a product
func (s *SQLiteStorage) ListACL(ctx context.Context, productID int64) ([]*types.ACLEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, user_id, group_id, created_at
		FROM product_acl WHERE product_id = ? ORDER BY id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list acl: %w", err)
	}
	defer rows.Close()

	var out []*types.ACLEntry
	for rows.Next() {
		var e types.ACLEntry
		var userID, groupID sql.NullInt64
		var created string
		if err := rows.Scan(&e.ProductID, &userID, &groupID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan acl entry: %w", err)
		}
		e.UserID, e.GroupID = int64Ptr(userID), int64Ptr(groupID)
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// HasAccess reports whether the user is listed on the product directly or
// through one of their groups.
func (s *SQLiteStorage) HasAccess(ctx context.Context, productID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM product_acl a
		WHERE a.product_id = ?
		  AND (a.user_id = ?
		       OR a.group_id IN (SELECT group_id FROM group_members WHERE user_id = ?))
	`, productID, userID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check access: %w", err)
	}
	return n > 0, nil
}

// CreateVersion inserts a version
func (s *SQLiteStorage) CreateVersion(ctx context.Context, v *types.Version, actor string) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO versions (product_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		`, v.ProductID, v.Name, formatTime(now), formatTime(now))
		if err != nil {
			return constraintErr("insert version", err)
		}
		if v.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read version id: %w", err)
		}
		v.CreatedAt, v.UpdatedAt = now, now
		return recordEvent(ctx, tx, types.EntityVersion, v.ID, types.EventCreated, actor, nil, v, "")
	})
}

// GetVersion returns the version or nil
func (s *SQLiteStorage) GetVersion(ctx context.Context, id int64) (*types.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, name, created_at, updated_at FROM versions WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	versions, err := scanVersions(rows)
	if err != nil || len(versions) == 0 {
		return nil, err
	}
	return versions[0], nil
}

// ListVersions returns the versions of a product in semantic version order
func (s *SQLiteStorage) ListVersions(ctx context.Context, productID int64) ([]*types.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, name, created_at, updated_at FROM versions WHERE product_id = ?
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	versions, err := scanVersions(rows)
	if err != nil {
		return nil, err
	}
	types.SortVersions(versions)
	return versions, nil
}

// UpdateVersion renames a version
func (s *SQLiteStorage) UpdateVersion(ctx context.Context, v *types.Version, actor string) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	old, err := s.GetVersion(ctx, v.ID)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("version %d: %w", v.ID, ErrNotFound)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE versions SET name = ?, updated_at = ? WHERE id = ?
		`, v.Name, formatTime(now), v.ID); err != nil {
			return constraintErr("update version", err)
		}
		v.ProductID, v.CreatedAt, v.UpdatedAt = old.ProductID, old.CreatedAt, now
		return recordEvent(ctx, tx, types.EntityVersion, v.ID, types.EventUpdated, actor, old, v, "")
	})
}

// DeleteVersion removes a version and everything below it
func (s *SQLiteStorage) DeleteVersion(ctx context.Context, id int64, actor string) error {
	return s.deleteRow(ctx, "versions", types.EntityVersion, id, actor)
}

func scanVersions(rows *sql.Rows) ([]*types.Version, error) {
	defer rows.Close()
	var out []*types.Version
	for rows.Next() {
		var v types.Version
		var created, updated string
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		var err error
		if v.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if v.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// CreateFeature inserts a feature
func (s *SQLiteStorage) CreateFeature(ctx context.Context, f *types.Feature, actor string) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO features (version_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		`, f.VersionID, f.Name, formatTime(now), formatTime(now))
		if err != nil {
			return constraintErr("insert feature", err)
		}
		if f.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read feature id: %w", err)
		}
		f.CreatedAt, f.UpdatedAt = now, now
		return recordEvent(ctx, tx, types.EntityFeature, f.ID, types.EventCreated, actor, nil, f, "")
	})
}

// GetFeature returns the feature or nil
func (s *SQLiteStorage) GetFeature(ctx context.Context, id int64) (*types.Feature, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version_id, name, created_at, updated_at FROM features WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get feature: %w", err)
	}
	features, err := scanFeatures(rows)
	if err != nil || len(features) == 0 {
		return nil, err
	}
	return features[0], nil
}

// ListFeatures returns the features of a version ordered by name
func (s *SQLiteStorage) ListFeatures(ctx context.Context, versionID int64) ([]*types.Feature, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version_id, name, created_at, updated_at FROM features WHERE version_id = ? ORDER BY name
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	return scanFeatures(rows)
}

// UpdateFeature renames a feature
func (s *SQLiteStorage) UpdateFeature(ctx context.Context, f *types.Feature, actor string) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	old, err := s.GetFeature(ctx, f.ID)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("feature %d: %w", f.ID, ErrNotFound)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE features SET name = ?, updated_at = ? WHERE id = ?
		`, f.Name, formatTime(now), f.ID); err != nil {
			return constraintErr("update feature", err)
		}
		f.VersionID, f.CreatedAt, f.UpdatedAt = old.VersionID, old.CreatedAt, now
		return recordEvent(ctx, tx, types.EntityFeature, f.ID, types.EventUpdated, actor, old, f, "")
	})
}

// DeleteFeature removes a feature and its sprints
func (s *SQLiteStorage) DeleteFeature(ctx context.Context, id int64, actor string) error {
	return s.deleteRow(ctx, "features", types.EntityFeature, id, actor)
}

func scanFeatures(rows *sql.Rows) ([]*types.Feature, error) {
	defer rows.Close()
	var out []*types.Feature
	for rows.Next() {
		var f types.Feature
		var created, updated string
		if err := rows.Scan(&f.ID, &f.VersionID, &f.Name, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		var err error
		if f.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if f.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// deleteRow deletes by primary key from one of the fixed catalog tables
func (s *SQLiteStorage) deleteRow(ctx context.Context, table string, entity types.EntityType, id int64, actor string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", entity, err)
		}
		none, err := notFound(res)
		if err != nil {
			return err
		}
		if none {
			return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
		}
		return recordEvent(ctx, tx, entity, id, types.EventDeleted, actor, nil, nil, "")
	})
}
