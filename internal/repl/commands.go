package repl

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/schedule"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

func parseID(args []string, what string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("usage: %s <id>", what)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

// cmdProducts prints the catalog tree down to features
func (r *REPL) cmdProducts(args []string) error {
	products, err := r.p.ListProducts(r.ctx, r.actor)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}
	if len(products) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(r.out, "\n%s No products found.\n\n", yellow("ℹ"))
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintln(r.out)
	for _, prod := range products {
		fmt.Fprintf(r.out, "%s %s\n", green(fmt.Sprintf("#%d", prod.ID)), cyan(prod.Name))
		versions, err := r.p.ListVersions(r.ctx, r.actor, prod.ID)
		if err != nil {
			return fmt.Errorf("failed to list versions: %w", err)
		}
		for _, v := range versions {
			fmt.Fprintf(r.out, "  %s version %s\n", green(fmt.Sprintf("#%d", v.ID)), v.Name)
			features, err := r.p.ListFeatures(r.ctx, r.actor, v.ID)
			if err != nil {
				return fmt.Errorf("failed to list features: %w", err)
			}
			for _, f := range features {
				fmt.Fprintf(r.out, "    %s feature %s\n", green(fmt.Sprintf("#%d", f.ID)), f.Name)
			}
		}
	}
	fmt.Fprintln(r.out)
	return nil
}

// cmdSprints lists the sprints of one feature, or of every feature the
// user can see
func (r *REPL) cmdSprints(args []string) error {
	var sprints []*types.Sprint
	if len(args) > 0 {
		id, err := parseID(args, "sprints")
		if err != nil {
			return err
		}
		if sprints, err = r.p.ListSprints(r.ctx, r.actor, id); err != nil {
			return fmt.Errorf("failed to list sprints: %w", err)
		}
	} else {
		var err error
		if sprints, err = r.allSprints(); err != nil {
			return err
		}
	}

	if len(sprints) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(r.out, "\n%s No sprints found.\n\n", yellow("ℹ"))
		return nil
	}
	fmt.Fprintln(r.out)
	for _, sp := range sprints {
		fmt.Fprintf(r.out, "  %s %-30s %s  %s -> %s\n",
			color.New(color.FgGreen).Sprintf("#%-4d", sp.ID),
			sp.Name,
			statusColor(string(sp.Status)),
			r.formatTime(sp.Start),
			r.formatTime(sp.End),
		)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) allSprints() ([]*types.Sprint, error) {
	var out []*types.Sprint
	products, err := r.p.ListProducts(r.ctx, r.actor)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	for _, prod := range products {
		versions, err := r.p.ListVersions(r.ctx, r.actor, prod.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list versions: %w", err)
		}
		for _, v := range versions {
			features, err := r.p.ListFeatures(r.ctx, r.actor, v.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list features: %w", err)
			}
			for _, f := range features {
				sprints, err := r.p.ListSprints(r.ctx, r.actor, f.ID)
				if err != nil {
					return nil, fmt.Errorf("failed to list sprints: %w", err)
				}
				out = append(out, sprints...)
			}
		}
	}
	return out, nil
}

func (r *REPL) cmdSprint(args []string) error {
	id, err := parseID(args, "sprint")
	if err != nil {
		return err
	}
	plan, err := r.p.LoadSprint(r.ctx, r.actor, id)
	if err != nil {
		return fmt.Errorf("failed to load sprint: %w", err)
	}
	r.printPlan(plan)
	return nil
}

func (r *REPL) cmdRecalc(args []string) error {
	id, err := parseID(args, "recalc")
	if err != nil {
		return err
	}
	plan, err := r.p.Recalculate(r.ctx, r.actor, id)
	if err != nil {
		return fmt.Errorf("failed to recalculate sprint: %w", err)
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Recalculated %d tasks\n", green("✓"), len(plan.Tasks))
	r.printPlan(plan)
	return nil
}

func (r *REPL) cmdCheck(args []string) error {
	id, err := parseID(args, "check")
	if err != nil {
		return err
	}
	res, err := r.p.CheckSprint(r.ctx, r.actor, id)
	if err != nil {
		return fmt.Errorf("failed to check sprint: %w", err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintln(r.out)
	if !res.HasErrors() && !res.HasWarnings() {
		fmt.Fprintf(r.out, "%s No problems found\n\n", green("✓"))
		return nil
	}
	for _, e := range res.Errors {
		fmt.Fprintf(r.out, "  %s %s: %s\n", red("✗"), e.Code, e.Message)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(r.out, "  %s %s [%s]: %s\n", yellow("!"), w.Code, w.Severity, w.Message)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) printPlan(plan *planner.Plan) {
	PrintPlan(r.out, r.p.Calendar(), plan)
}

// PrintPlan writes a sprint plan as an indented table, one task per line
func PrintPlan(w io.Writer, cal *schedule.Calendar, plan *planner.Plan) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	sp := plan.Sprint
	fmt.Fprintf(w, "\n%s  %s  %s -> %s\n\n", cyan(sp.Name), statusColor(string(sp.Status)),
		formatTime(cal, sp.Start), formatTime(cal, sp.End))

	depth := make(map[int64]int, len(plan.Tasks))
	for _, t := range plan.Tasks {
		if t.ParentID != nil {
			depth[t.ID] = depth[*t.ParentID] + 1
		}
	}
	for _, t := range plan.Tasks {
		resource := ""
		if t.ResourceID != nil {
			if u := plan.Users[*t.ResourceID]; u != nil {
				resource = u.Name
			}
		}
		name := strings.Repeat("  ", depth[t.ID]) + t.Name
		if t.Kind == types.KindStory {
			name = color.New(color.Bold).Sprint(name)
		}
		fmt.Fprintf(w, "  %-5d %-36s %-11s %-10s %s  %s  %s\n",
			t.ID, name, statusColor(string(t.Status)), resource,
			formatTime(cal, t.Start), formatTime(cal, t.Finish), formatWork(cal, t.Remaining))
	}
	for _, warn := range plan.Warnings {
		fmt.Fprintf(w, "  %s %s\n", color.New(color.FgYellow).Sprint("!"), warn)
	}
	fmt.Fprintln(w)
}

func statusColor(status string) string {
	switch status {
	case string(types.TaskDone), string(types.SprintClosed):
		return color.New(color.FgGreen).Sprint(status)
	case string(types.TaskInProgress), string(types.SprintStarted):
		return color.New(color.FgYellow).Sprint(status)
	default:
		return status
	}
}

func (r *REPL) formatTime(t *time.Time) string {
	return formatTime(r.p.Calendar(), t)
}

func formatTime(cal *schedule.Calendar, t *time.Time) string {
	if t == nil {
		return "-               "
	}
	return t.In(cal.Location).Format("2006-01-02 15:04")
}

// formatWork renders minutes in working days, hours and minutes
func formatWork(cal *schedule.Calendar, minutes int) string {
	perDay := cal.WorkingMinutesPerDay
	if minutes == 0 {
		return "0m"
	}
	var parts []string
	if d := minutes / perDay; d > 0 {
		parts = append(parts, fmt.Sprintf("%dd", d))
		minutes -= d * perDay
	}
	if h := minutes / 60; h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
		minutes -= h * 60
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}
