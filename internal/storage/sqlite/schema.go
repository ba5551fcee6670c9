package sqlite

import "github.com/abdallabushnaq/kassandra/internal/storage/migrations"

var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "Create catalog, user and task tables",
		Up:          schemaV1,
		Down: `
			DROP TABLE IF EXISTS config;
			DROP TABLE IF EXISTS events;
			DROP TABLE IF EXISTS worklogs;
			DROP TABLE IF EXISTS relations;
			DROP TABLE IF EXISTS tasks;
			DROP TABLE IF EXISTS product_acl;
			DROP TABLE IF EXISTS group_members;
			DROP TABLE IF EXISTS user_groups;
			DROP TABLE IF EXISTS off_days;
			DROP TABLE IF EXISTS users;
			DROP TABLE IF EXISTS sprints;
			DROP TABLE IF EXISTS features;
			DROP TABLE IF EXISTS versions;
			DROP TABLE IF EXISTS products;
		`,
	},
	{
		Version:     2,
		Description: "Index tasks by resource and events by entity",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_tasks_resource ON tasks(resource_id);
			CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_type, entity_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_tasks_resource;
			DROP INDEX IF EXISTS idx_events_entity;
		`,
	},
}

const schemaV1 = `
-- Catalog
CREATE TABLE products (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE CHECK(length(name) <= 200),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
    name TEXT NOT NULL CHECK(length(name) <= 100),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (product_id, name)
);

CREATE TABLE features (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    version_id INTEGER NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
    name TEXT NOT NULL CHECK(length(name) <= 200),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (version_id, name)
);

CREATE TABLE sprints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature_id INTEGER NOT NULL REFERENCES features(id) ON DELETE CASCADE,
    name TEXT NOT NULL CHECK(length(name) <= 200),
    status TEXT NOT NULL DEFAULT 'created',
    start_at TEXT,
    end_at TEXT,
    release_date TEXT,
    original_estimation INTEGER NOT NULL DEFAULT 0,
    worked INTEGER NOT NULL DEFAULT 0,
    remaining INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX idx_sprints_feature ON sprints(feature_id);

-- Users and access
CREATE TABLE users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL DEFAULT '',
    admin INTEGER NOT NULL DEFAULT 0,
    availability REAL NOT NULL DEFAULT 1 CHECK(availability > 0 AND availability <= 1),
    first_working_day TEXT,
    last_working_day TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE off_days (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    first_day TEXT NOT NULL,
    last_day TEXT NOT NULL,
    type TEXT NOT NULL
);

CREATE INDEX idx_off_days_user ON off_days(user_id);

CREATE TABLE user_groups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE group_members (
    group_id INTEGER NOT NULL REFERENCES user_groups(id) ON DELETE CASCADE,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    PRIMARY KEY (group_id, user_id)
);

CREATE TABLE product_acl (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
    user_id INTEGER REFERENCES users(id) ON DELETE CASCADE,
    group_id INTEGER REFERENCES user_groups(id) ON DELETE CASCADE,
    created_at TEXT NOT NULL,
    CHECK ((user_id IS NULL) != (group_id IS NULL))
);

CREATE UNIQUE INDEX idx_product_acl_user ON product_acl(product_id, user_id) WHERE user_id IS NOT NULL;
CREATE UNIQUE INDEX idx_product_acl_group ON product_acl(product_id, group_id) WHERE group_id IS NOT NULL;

-- Task plans
CREATE TABLE tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sprint_id INTEGER NOT NULL REFERENCES sprints(id) ON DELETE CASCADE,
    parent_id INTEGER REFERENCES tasks(id) ON DELETE CASCADE,
    order_id INTEGER NOT NULL DEFAULT 0,
    name TEXT NOT NULL CHECK(length(name) <= 200),
    kind TEXT NOT NULL DEFAULT 'task',
    status TEXT NOT NULL DEFAULT 'todo',
    resource_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
    start_at TEXT,
    finish_at TEXT,
    fixed_start TEXT,
    original_estimate INTEGER NOT NULL DEFAULT 0 CHECK(original_estimate >= 0),
    min_estimate INTEGER NOT NULL DEFAULT 0,
    max_estimate INTEGER NOT NULL DEFAULT 0,
    remaining INTEGER NOT NULL DEFAULT 0 CHECK(remaining >= 0),
    time_spent INTEGER NOT NULL DEFAULT 0 CHECK(time_spent >= 0),
    progress REAL NOT NULL DEFAULT 0,
    impediment INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX idx_tasks_sprint ON tasks(sprint_id, order_id);
CREATE INDEX idx_tasks_parent ON tasks(parent_id);

CREATE TABLE relations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    successor_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    predecessor_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    visible INTEGER NOT NULL DEFAULT 1,
    CHECK (successor_id != predecessor_id),
    UNIQUE (successor_id, predecessor_id)
);

CREATE INDEX idx_relations_predecessor ON relations(predecessor_id);

CREATE TABLE worklogs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    start_at TEXT NOT NULL,
    time_spent INTEGER NOT NULL CHECK(time_spent > 0),
    comment TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX idx_worklogs_task ON worklogs(task_id);

-- Audit trail
CREATE TABLE events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    comment TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX idx_events_created_at ON events(created_at);

CREATE TABLE config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
