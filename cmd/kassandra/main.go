package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdallabushnaq/kassandra/internal/config"
	"github.com/abdallabushnaq/kassandra/internal/logging"
	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/storage"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

// set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	envFile  string
	dbPath   string
	userName string

	cfg   *config.Config
	log   *zap.SugaredLogger
	store storage.Storage
	plan  *planner.Planner
	actor *types.User
)

// commands annotated with skipStore open the database themselves
const skipStore = "skip-store"

var rootCmd = &cobra.Command{
	Use:   "kassandra",
	Short: "Kassandra - sprint planning with automatic scheduling",
	Long: `Kassandra plans sprints: products, versions and features hold sprints,
sprints hold an ordered tree of stories and tasks with dependencies. Every
change reschedules the sprint against the working calendar and the
availability of each resource.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		if log, err = logging.NewConsole(cliLogLevel(cfg.Logging.Level)); err != nil {
			return err
		}
		if cmd.Annotations[skipStore] != "" {
			return nil
		}
		return openPlanner(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File with KASSANDRA_* settings")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: auto-discover .kassandra/*.db)")
	rootCmd.PersistentFlags().StringVarP(&userName, "user", "u", os.Getenv("KASSANDRA_USER"), "Act as this user")
	rootCmd.Version = version
}

// cliLogLevel keeps info logs of the planner out of command output
func cliLogLevel(level string) string {
	if level == "info" {
		return "warn"
	}
	return level
}

// resolveDBPath picks the database: --db, then KASSANDRA_DATABASE_PATH,
// then discovery in the current directory
func resolveDBPath(flag string, c *config.Config) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if c != nil && c.Database.Path != "" {
		return c.Database.Path, nil
	}
	return storage.DiscoverDatabase()
}

func openPlanner(ctx context.Context) error {
	path, err := resolveDBPath(dbPath, cfg)
	if err != nil {
		return err
	}
	cal, err := cfg.Calendar.Build()
	if err != nil {
		return err
	}
	if store, err = storage.NewStorage(ctx, &storage.Config{Path: path}); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	dbPath = path
	plan = planner.New(store, cal, log)
	return nil
}

// requireActor resolves --user; every command that reads or edits plans
// acts on behalf of a known user
func requireActor(ctx context.Context) *types.User {
	if actor != nil {
		return actor
	}
	u, err := plan.ResolveUser(ctx, userName)
	if err != nil {
		fatal("%v (use --user or KASSANDRA_USER)", err)
	}
	actor = u
	return actor
}

func fatal(format string, args ...any) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), fmt.Sprintf(format, args...))
	if store != nil {
		_ = store.Close()
	}
	os.Exit(1)
}

func success(format string, args ...any) {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

// parseWhen reads a date or a date with time in the calendar time zone
func parseWhen(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD or YYYY-MM-DD HH:MM", s)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
