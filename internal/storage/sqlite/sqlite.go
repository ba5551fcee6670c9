// Package sqlite stores products, sprints and their task plans in a SQLite
// database through the ncruces/go-sqlite3 database/sql driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/abdallabushnaq/kassandra/internal/storage/migrations"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

var (
	// ErrNotFound is returned when an update or delete matches no row
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness or reference constraint
	ErrConflict = errors.New("conflict")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the database at path and applies pending
// schema migrations.
// The special path ":memory:" opens a private in-memory database.
func New(path string) (*SQLiteStorage, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if _, err := migrations.NewManager(schemaMigrations...).Apply(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: path}, nil
}

func open(path string) (*sql.DB, error) {
	memory := path == ":memory:"
	if dir := filepath.Dir(path); !memory && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL for concurrent readers, immediate transactions so writers queue on
	// BEGIN instead of failing on lock upgrade
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(10000)&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// MigrationStatus lists the schema migrations of the database at path
// without applying pending ones
func MigrationStatus(ctx context.Context, path string) ([]migrations.Status, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return migrations.NewManager(schemaMigrations...).Status(ctx, db)
}

// RollbackMigration reverts the newest applied migration of the database
// at path and returns the schema version left in effect
func RollbackMigration(ctx context.Context, path string) (int, error) {
	db, err := open(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	if err := migrations.NewManager(schemaMigrations...).Rollback(ctx, db); err != nil {
		return 0, err
	}
	return migrations.Version(ctx, db)
}

// Path returns the database file path
func (s *SQLiteStorage) Path() string { return s.path }

// SchemaVersion returns the applied schema version
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	return migrations.Version(ctx, s.db)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing when it returns nil
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// recordEvent appends an audit event. Values are stored as JSON.
func recordEvent(ctx context.Context, q execer, entity types.EntityType, entityID int64, event types.EventType, actor string, oldValue, newValue any, comment string) error {
	var oldStr, newStr, commentStr *string
	if oldValue != nil {
		data, _ := json.Marshal(oldValue)
		s := string(data)
		oldStr = &s
	}
	if newValue != nil {
		data, _ := json.Marshal(newValue)
		s := string(data)
		newStr = &s
	}
	if comment != "" {
		commentStr = &comment
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO events (entity_type, entity_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entity, entityID, event, actor, oldStr, newStr, commentStr, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// GetConfig gets a configuration value from the config table
func (s *SQLiteStorage) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig sets a configuration value in the config table
func (s *SQLiteStorage) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Times are stored as RFC 3339 text in UTC with a fixed-width fraction so
// that text order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// constraintErr maps SQLite constraint failures to ErrConflict
func constraintErr(op string, err error) error {
	if errors.Is(err, sqlite3.CONSTRAINT) {
		return fmt.Errorf("failed to %s: %w: %v", op, ErrConflict, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// notFound reports whether a delete or update touched no rows
func notFound(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n == 0, nil
}
