package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

var (
	userEmail        string
	userAdmin        bool
	userAvailability float64
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a user (administrators only)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		u := &types.User{
			Name:         args[0],
			Email:        userEmail,
			Admin:        userAdmin,
			Availability: userAvailability,
		}
		if err := plan.CreateUser(ctx, requireActor(ctx), u); err != nil {
			fatal("failed to add user: %v", err)
		}
		success("Added user %s (#%d)", u.Name, u.ID)
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		users, err := plan.ListUsers(ctx, requireActor(ctx))
		if err != nil {
			fatal("failed to list users: %v", err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		for _, u := range users {
			role := ""
			if u.Admin {
				role = color.New(color.FgYellow).Sprint("admin")
			}
			fmt.Printf("  %s %-20s %-30s %3.0f%%  %s\n", green(fmt.Sprintf("#%-4d", u.ID)), u.Name, u.Email, u.Availability*100, role)
		}
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant administrator rights")
	userAddCmd.Flags().Float64Var(&userAvailability, "availability", 1, "Fraction of a working day spent on sprint work")
	userCmd.AddCommand(userAddCmd, userListCmd)
	rootCmd.AddCommand(userCmd)
}
