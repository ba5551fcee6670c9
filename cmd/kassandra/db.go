package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdallabushnaq/kassandra/internal/storage"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect and change the database schema",
}

// dbTarget resolves the database for commands that must not migrate it on
// open
func dbTarget() string {
	path, err := resolveDBPath(dbPath, cfg)
	if err != nil {
		fatal("%v", err)
	}
	return path
}

var dbStatusCmd = &cobra.Command{
	Use:         "status",
	Short:       "List schema migrations and whether they are applied",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipStore: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		path := dbTarget()
		status, err := storage.Migrations(cmd.Context(), path)
		if err != nil {
			fatal("failed to read migrations: %v", err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s\n", path)
		for _, s := range status {
			state := green("applied")
			if !s.Applied {
				state = yellow("pending")
			}
			fmt.Printf("  %3d  %-8s %s\n", s.Version, state, s.Description)
		}
	},
}

var dbRollbackYes bool

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Revert the newest schema migration",
	Long: `Revert the newest applied schema migration. Reverting the first
migration drops every table. Any later command that opens the database
applies pending migrations again.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipStore: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		if !dbRollbackYes {
			fatal("rollback changes the schema, pass --yes to confirm")
		}
		path := dbTarget()
		v, err := storage.Rollback(cmd.Context(), path)
		if err != nil {
			fatal("failed to roll back: %v", err)
		}
		log.Infow("schema rolled back", "path", path, "version", v)
		success("Schema of %s is now at version %d", path, v)
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// opening the store applied them
		v, err := store.SchemaVersion(cmd.Context())
		if err != nil {
			fatal("failed to read schema version: %v", err)
		}
		success("Schema of %s is at version %d", dbPath, v)
	},
}

func init() {
	dbRollbackCmd.Flags().BoolVar(&dbRollbackYes, "yes", false, "Confirm the rollback")
	dbCmd.AddCommand(dbStatusCmd, dbRollbackCmd, dbMigrateCmd)
	rootCmd.AddCommand(dbCmd)
}
