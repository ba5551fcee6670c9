package storage

import (
	"context"
	"os"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/storage/migrations"
	"github.com/abdallabushnaq/kassandra/internal/storage/sqlite"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

var (
	// ErrNotFound is returned when an update or delete matches nothing
	ErrNotFound = sqlite.ErrNotFound
	// ErrConflict is returned for duplicate names and dangling references
	ErrConflict = sqlite.ErrConflict
)

// PlanUpdate is the batch a planner edit writes back atomically
type PlanUpdate = sqlite.PlanUpdate

// Getters return (nil, nil) when the record does not exist. Mutations take
// the acting user's name for the audit trail.

// ProductStore manages products and their access lists
type ProductStore interface {
	CreateProduct(ctx context.Context, p *types.Product, actor string) error
	GetProduct(ctx context.Context, id int64) (*types.Product, error)
	ListProducts(ctx context.Context) ([]*types.Product, error)
	UpdateProduct(ctx context.Context, p *types.Product, actor string) error
	DeleteProduct(ctx context.Context, id int64, actor string) error

	GrantAccess(ctx context.Context, e *types.ACLEntry, actor string) error
	RevokeAccess(ctx context.Context, e *types.ACLEntry, actor string) error
	ListACL(ctx context.Context, productID int64) ([]*types.ACLEntry, error)
	HasAccess(ctx context.Context, productID, userID int64) (bool, error)
}

// VersionStore manages product versions
type VersionStore interface {
	CreateVersion(ctx context.Context, v *types.Version, actor string) error
	GetVersion(ctx context.Context, id int64) (*types.Version, error)
	ListVersions(ctx context.Context, productID int64) ([]*types.Version, error)
	UpdateVersion(ctx context.Context, v *types.Version, actor string) error
	DeleteVersion(ctx context.Context, id int64, actor string) error
}

// FeatureStore manages version features
type FeatureStore interface {
	CreateFeature(ctx context.Context, f *types.Feature, actor string) error
	GetFeature(ctx context.Context, id int64) (*types.Feature, error)
	ListFeatures(ctx context.Context, versionID int64) ([]*types.Feature, error)
	UpdateFeature(ctx context.Context, f *types.Feature, actor string) error
	DeleteFeature(ctx context.Context, id int64, actor string) error
}

// SprintStore manages sprints
type SprintStore interface {
	CreateSprint(ctx context.Context, s *types.Sprint, actor string) error
	GetSprint(ctx context.Context, id int64) (*types.Sprint, error)
	ListSprints(ctx context.Context, featureID int64) ([]*types.Sprint, error)
	UpdateSprint(ctx context.Context, s *types.Sprint, actor string) error
	DeleteSprint(ctx context.Context, id int64, actor string) error
	ProductOfSprint(ctx context.Context, sprintID int64) (int64, error)
}

// TaskStore reads tasks and persists sprint plans
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (*types.Task, error)
	ListTasks(ctx context.Context, sprintID int64) ([]*types.Task, error)
	SearchTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error)
	SaveSprintPlan(ctx context.Context, u *PlanUpdate, actor string) (map[int64]int64, error)
	ListWorklogs(ctx context.Context, taskID int64) ([]*types.Worklog, error)
}

// UserStore manages users and their off days
type UserStore interface {
	CreateUser(ctx context.Context, u *types.User, actor string) error
	GetUser(ctx context.Context, id int64) (*types.User, error)
	GetUserByName(ctx context.Context, name string) (*types.User, error)
	ListUsers(ctx context.Context) ([]*types.User, error)
	UpdateUser(ctx context.Context, u *types.User, actor string) error
	DeleteUser(ctx context.Context, id int64, actor string) error

	AddOffDay(ctx context.Context, o *types.OffDay, actor string) error
	DeleteOffDay(ctx context.Context, id int64, actor string) error
	ListOffDays(ctx context.Context, userID int64) ([]*types.OffDay, error)
}

// GroupStore manages user groups
type GroupStore interface {
	CreateGroup(ctx context.Context, g *types.UserGroup, actor string) error
	GetGroup(ctx context.Context, id int64) (*types.UserGroup, error)
	ListGroups(ctx context.Context) ([]*types.UserGroup, error)
	ListGroupsForUser(ctx context.Context, userID int64) ([]*types.UserGroup, error)
	UpdateGroup(ctx context.Context, g *types.UserGroup, actor string) error
	DeleteGroup(ctx context.Context, id int64, actor string) error
}

// Storage defines the interface for Kassandra storage backends
type Storage interface {
	ProductStore
	VersionStore
	FeatureStore
	SprintStore
	TaskStore
	UserStore
	GroupStore

	// Audit trail
	GetEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error)
	PruneEvents(ctx context.Context, cutoff time.Time) (int, error)

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Config
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Lifecycle
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

var _ Storage = (*sqlite.SQLiteStorage)(nil)

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: KASSANDRA_DB_PATH, else ".kassandra/kassandra.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	if p := os.Getenv(EnvDBPath); p != "" {
		return &Config{Path: p}
	}
	return &Config{Path: defaultDBPath}
}

// MigrationStatus is the applied state of one schema migration
type MigrationStatus = migrations.Status

// Migrations lists the schema migrations of the database at path. Pending
// migrations are reported, not applied.
func Migrations(ctx context.Context, path string) ([]MigrationStatus, error) {
	return sqlite.MigrationStatus(ctx, path)
}

// Rollback reverts the newest schema migration of the database at path and
// returns the version left in effect. Opening the database with NewStorage
// applies it again.
func Rollback(ctx context.Context, path string) (int, error) {
	return sqlite.RollbackMigration(ctx, path)
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	return sqlite.New(cfg.Path)
}
