package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdallabushnaq/kassandra/internal/storage"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

var (
	initAdmin string
	initEmail string
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a planning database in the current directory",
	Long: `Create a planning database in .kassandra/ and its first user.

The first user is always an administrator. Administrators create further
users, products and grant access to them.

Example:
  kassandra init --admin alice           # Creates .kassandra/kassandra.db
  kassandra init team --admin alice      # Creates .kassandra/team.db`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipStore: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		if initAdmin == "" {
			initAdmin = userName
		}
		if initAdmin == "" {
			fatal("--admin is required")
		}

		cwd, err := os.Getwd()
		if err != nil {
			fatal("failed to get current directory: %v", err)
		}
		path := dbPath
		if path == "" {
			if path, err = storage.InitProject(cwd, name); err != nil {
				fatal("%v", err)
			}
		}
		dbPath = path

		ctx := cmd.Context()
		if err := openPlanner(ctx); err != nil {
			fatal("%v", err)
		}
		admin := &types.User{Name: initAdmin, Email: initEmail}
		if err := plan.CreateUser(ctx, nil, admin); err != nil {
			fatal("failed to create administrator: %v", err)
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Println()
		success("Initialized Kassandra")
		fmt.Printf("  Database: %s\n", cyan(path))
		fmt.Printf("  Administrator: %s\n\n", cyan(admin.Name))
		fmt.Printf("Next: kassandra --user %s product create <name>\n\n", admin.Name)
	},
}

func init() {
	initCmd.Flags().StringVar(&initAdmin, "admin", "", "Name of the first (administrator) user")
	initCmd.Flags().StringVar(&initEmail, "email", "", "Email of the administrator")
	rootCmd.AddCommand(initCmd)
}
