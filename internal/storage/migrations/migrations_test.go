package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	createWidgets = Migration{
		Version:     1,
		Description: "Add widgets table",
		Up:          `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		Down:        `DROP TABLE widgets`,
	}
	addColor = Migration{
		Version:     2,
		Description: "Add widget color",
		Up:          `ALTER TABLE widgets ADD COLUMN color TEXT NOT NULL DEFAULT ''`,
		Down:        `ALTER TABLE widgets DROP COLUMN color`,
	}
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	// registered out of order on purpose
	m := NewManager(addColor, createWidgets)

	n, err := m.Apply(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = db.Exec("INSERT INTO widgets (id, name, color) VALUES (1, 'gear', 'red')")
	require.NoError(t, err)

	n, err = m.Apply(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n, "second apply is a no-op")

	require.NoError(t, m.Rollback(ctx, db))
	v, err = Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = db.Exec("INSERT INTO widgets (id, name, color) VALUES (2, 'cog', 'blue')")
	assert.Error(t, err, "color column should be gone")

	status, err := m.Status(ctx, db)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Applied)
	assert.False(t, status[1].Applied)
}

func TestRollbackEmpty(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	m := NewManager(createWidgets)

	_, err := m.Status(ctx, db)
	require.NoError(t, err)
	assert.Error(t, m.Rollback(ctx, db))
}

func TestFailedMigrationIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	broken := Migration{Version: 2, Description: "broken", Up: `CREATE TABLE oops (`}
	m := NewManager(createWidgets, broken)

	n, err := m.Apply(ctx, db)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	v, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
