package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/repl"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <product-id>",
	Short: "Export a product with all its sprints as YAML",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		var w io.Writer = os.Stdout
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				fatal("failed to create %s: %v", exportOutput, err)
			}
			defer f.Close()
			w = f
		}
		if err := plan.ExportProduct(ctx, requireActor(ctx), parseIDArg(args[0], "product"), w); err != nil {
			fatal("failed to export product: %v", err)
		}
	},
}

var importName string

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a product exported with 'kassandra export'",
	Long: `Import a product document as a new product. Users are matched by name;
assignments to unknown users are dropped with a warning. Use --name when a
product with the same name already exists.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				fatal("failed to open %s: %v", args[0], err)
			}
			defer f.Close()
			r = f
		}
		res, err := plan.ImportProduct(ctx, requireActor(ctx), r, importName)
		if err != nil {
			fatal("failed to import: %v", err)
		}
		success("Imported %s (#%d): %d sprints, %d tasks", res.Product.Name, res.Product.ID, res.Sprints, res.Tasks)
		yellow := color.New(color.FgYellow).SprintFunc()
		for _, w := range res.Warnings {
			fmt.Printf("  %s %s\n", yellow("!"), w)
		}
	},
}

func printPlan(p *planner.Plan) {
	repl.PrintPlan(os.Stdout, plan.Calendar(), p)
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	importCmd.Flags().StringVar(&importName, "name", "", "Name of the imported product")
	rootCmd.AddCommand(exportCmd, importCmd)
}
