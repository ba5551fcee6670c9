package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvDBPath overrides database discovery when set
	EnvDBPath = "KASSANDRA_DB_PATH"
	// ProjectDir holds the database of a project
	ProjectDir = ".kassandra"

	defaultDBPath = ProjectDir + "/kassandra.db"
)

// DiscoverDatabase returns the database to use: KASSANDRA_DB_PATH when set,
// otherwise the first .kassandra/*.db of the current directory. Parent
// directories are not searched so a nested checkout never picks up an
// outer project's data.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv(EnvDBPath); dbPath != "" {
		// Allow special values like ":memory:" or explicit paths
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return discoverDatabaseInDir(dir)
}

// discoverDatabaseInDir checks for .kassandra/*.db in dir only
func discoverDatabaseInDir(dir string) (string, error) {
	projectDir := filepath.Join(dir, ProjectDir)

	if info, err := os.Stat(projectDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(projectDir)
		if err == nil {
			// ReadDir sorts by name, so the choice is stable
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					absPath, err := filepath.Abs(filepath.Join(projectDir, entry.Name()))
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf(
		"no %s/*.db found in %s\n"+
			"  Run 'kassandra init' to create a database in this directory\n"+
			"  Or use --db flag to specify database path explicitly",
		ProjectDir, dir)
}

// GetProjectRoot returns the directory containing the .kassandra/ directory
// that holds dbPath.
//
// Example:
//
//	dbPath: /home/user/planning/.kassandra/kassandra.db
//	returns: /home/user/planning
func GetProjectRoot(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	dbDir := filepath.Dir(absPath)
	if filepath.Base(dbDir) != ProjectDir {
		return "", fmt.Errorf("database must be in a %s/ directory, got: %s", ProjectDir, dbPath)
	}
	return filepath.Dir(dbDir), nil
}

// InitProject creates the .kassandra directory of projectDir and returns the
// database path to open. The database itself is created on first connection.
func InitProject(projectDir, name string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	dir := filepath.Join(projectDir, ProjectDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", ProjectDir, err)
	}

	dbName := name
	if dbName == "" {
		dbName = "kassandra"
	}
	if !strings.HasSuffix(dbName, ".db") {
		dbName += ".db"
	}
	dbPath := filepath.Join(dir, dbName)

	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}

	// keep WAL side files out of version control
	ignore := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		if err := os.WriteFile(ignore, []byte("*.db-wal\n*.db-shm\n"), 0644); err != nil {
			return "", fmt.Errorf("failed to create .gitignore: %w", err)
		}
	}

	return dbPath, nil
}
