package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

func parseIDArg(s, what string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fatal("invalid %s id %q", what, s)
	}
	return id
}

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage products",
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the products you can access",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		products, err := plan.ListProducts(ctx, requireActor(ctx))
		if err != nil {
			fatal("failed to list products: %v", err)
		}
		if len(products) == 0 {
			fmt.Println("No products found.")
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		for _, p := range products {
			fmt.Printf("  %s %s\n", green(fmt.Sprintf("#%-4d", p.ID)), p.Name)
		}
	},
}

var productCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a product (administrators only)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		p, err := plan.CreateProduct(ctx, requireActor(ctx), args[0])
		if err != nil {
			fatal("failed to create product: %v", err)
		}
		success("Created product %s (#%d)", p.Name, p.ID)
	},
}

var grantGroup bool

var productGrantCmd = &cobra.Command{
	Use:   "grant <product-id> <user-id>",
	Short: "Give a user, or a group with --group, access to a product",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		entry := &types.ACLEntry{ProductID: parseIDArg(args[0], "product")}
		id := parseIDArg(args[1], "grantee")
		if grantGroup {
			entry.GroupID = &id
		} else {
			entry.UserID = &id
		}
		if err := plan.GrantAccess(ctx, requireActor(ctx), entry); err != nil {
			fatal("failed to grant access: %v", err)
		}
		success("Access granted")
	},
}

var versionCreateCmd = &cobra.Command{
	Use:   "version <product-id> <name>",
	Short: "Create a version of a product",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		v, err := plan.CreateVersion(ctx, requireActor(ctx), parseIDArg(args[0], "product"), args[1])
		if err != nil {
			fatal("failed to create version: %v", err)
		}
		success("Created version %s (#%d)", v.Name, v.ID)
	},
}

var featureCreateCmd = &cobra.Command{
	Use:   "feature <version-id> <name>",
	Short: "Create a feature of a version",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		f, err := plan.CreateFeature(ctx, requireActor(ctx), parseIDArg(args[0], "version"), args[1])
		if err != nil {
			fatal("failed to create feature: %v", err)
		}
		success("Created feature %s (#%d)", f.Name, f.ID)
	},
}

var sprintCmd = &cobra.Command{
	Use:   "sprint",
	Short: "Create, show and reschedule sprints",
}

var (
	sprintStart   string
	sprintRelease string
)

var sprintCreateCmd = &cobra.Command{
	Use:   "create <feature-id> <name>",
	Short: "Create a sprint",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		loc := plan.Calendar().Location
		in := planner.SprintInput{Name: args[1]}
		var err error
		if in.Start, err = parseWhen(sprintStart, loc); err != nil {
			fatal("--start: %v", err)
		}
		if in.ReleaseDate, err = parseWhen(sprintRelease, loc); err != nil {
			fatal("--release: %v", err)
		}
		sp, err := plan.CreateSprint(ctx, requireActor(ctx), parseIDArg(args[0], "feature"), in)
		if err != nil {
			fatal("failed to create sprint: %v", err)
		}
		success("Created sprint %s (#%d)", sp.Name, sp.ID)
	},
}

var sprintShowCmd = &cobra.Command{
	Use:   "show <sprint-id>",
	Short: "Show a sprint plan",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		p, err := plan.LoadSprint(ctx, requireActor(ctx), parseIDArg(args[0], "sprint"))
		if err != nil {
			fatal("failed to load sprint: %v", err)
		}
		printPlan(p)
	},
}

var sprintRecalcCmd = &cobra.Command{
	Use:   "recalc <sprint-id>",
	Short: "Reschedule a sprint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		p, err := plan.Recalculate(ctx, requireActor(ctx), parseIDArg(args[0], "sprint"))
		if err != nil {
			fatal("failed to recalculate sprint: %v", err)
		}
		success("Recalculated %d tasks", len(p.Tasks))
		printPlan(p)
	},
}

var sprintStatusCmd = &cobra.Command{
	Use:   "status <sprint-id> <created|started|closed>",
	Short: "Change the status of a sprint",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		status := types.SprintStatus(args[1])
		if !status.IsValid() {
			fatal("invalid sprint status %q", args[1])
		}
		p, err := plan.SetSprintStatus(ctx, requireActor(ctx), parseIDArg(args[0], "sprint"), status)
		if err != nil {
			fatal("failed to change sprint status: %v", err)
		}
		success("Sprint %s is %s", p.Sprint.Name, p.Sprint.Status)
	},
}

var sprintCheckCmd = &cobra.Command{
	Use:   "check <sprint-id>",
	Short: "Check a sprint plan for problems",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		res, err := plan.CheckSprint(ctx, requireActor(ctx), parseIDArg(args[0], "sprint"))
		if err != nil {
			fatal("failed to check sprint: %v", err)
		}
		if !res.HasErrors() && !res.HasWarnings() {
			success("No problems found")
			return
		}
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		for _, e := range res.Errors {
			fmt.Printf("  %s %s: %s\n", red("✗"), e.Code, e.Message)
		}
		for _, w := range res.Warnings {
			fmt.Printf("  %s %s [%s]: %s\n", yellow("!"), w.Code, w.Severity, w.Message)
		}
		if res.HasErrors() {
			fatal("sprint has %d errors", len(res.Errors))
		}
	},
}

func init() {
	productGrantCmd.Flags().BoolVar(&grantGroup, "group", false, "The grantee is a group")
	productCmd.AddCommand(productListCmd, productCreateCmd, productGrantCmd, versionCreateCmd, featureCreateCmd)

	sprintCreateCmd.Flags().StringVar(&sprintStart, "start", "", "Start date (YYYY-MM-DD [HH:MM])")
	sprintCreateCmd.Flags().StringVar(&sprintRelease, "release", "", "Release date (YYYY-MM-DD)")
	sprintCmd.AddCommand(sprintCreateCmd, sprintShowCmd, sprintRecalcCmd, sprintStatusCmd, sprintCheckCmd)

	rootCmd.AddCommand(productCmd, sprintCmd)
}
