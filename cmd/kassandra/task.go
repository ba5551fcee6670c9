package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Edit the tasks of a sprint",
	Long: `Edit the tasks of a sprint. Every change reschedules the sprint.

Work amounts are minutes.`,
}

var (
	taskKind     string
	taskParent   int64
	taskAfter    int64
	taskResource int64
	taskEstimate int
	taskNotes    string
)

var taskAddCmd = &cobra.Command{
	Use:   "add <sprint-id> <name>",
	Short: "Add a task, story or milestone",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		in := planner.TaskInput{
			Name:             args[1],
			Kind:             types.TaskKind(taskKind),
			AfterID:          taskAfter,
			OriginalEstimate: taskEstimate,
			Notes:            taskNotes,
		}
		if !in.Kind.IsValid() {
			fatal("invalid kind %q", taskKind)
		}
		if taskParent > 0 {
			in.ParentID = &taskParent
		}
		if taskResource > 0 {
			in.ResourceID = &taskResource
		}
		t, err := plan.CreateTask(ctx, requireActor(ctx), parseIDArg(args[0], "sprint"), in)
		if err != nil {
			fatal("failed to add task: %v", err)
		}
		success("Added %s %s (#%d), finishes %s", t.Kind, t.Name, t.ID, formatWhen(t.Finish))
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id> <todo|in_progress|done>",
	Short: "Change the status of a task",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		status := types.TaskStatus(args[1])
		if !status.IsValid() {
			fatal("invalid task status %q", args[1])
		}
		t, err := plan.UpdateTask(ctx, requireActor(ctx), parseIDArg(args[0], "task"), planner.TaskPatch{Status: &status})
		if err != nil {
			fatal("failed to update task: %v", err)
		}
		success("%s is %s", t.Name, t.Status)
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id> <before|after|into> <target-id>",
	Short: "Move a task next to or into another task",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		pos := tasklist.Position(args[1])
		if !pos.IsValid() {
			fatal("invalid position %q", args[1])
		}
		p, err := plan.MoveTask(ctx, requireActor(ctx), parseIDArg(args[0], "task"), parseIDArg(args[2], "target"), pos)
		if err != nil {
			fatal("failed to move task: %v", err)
		}
		printPlan(p)
	},
}

var taskDependCmd = &cobra.Command{
	Use:   "depend <predecessor-id> <successor-id>",
	Short: "Add or remove a finish to start dependency",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		added, err := plan.ToggleDependency(ctx, requireActor(ctx), parseIDArg(args[0], "predecessor"), parseIDArg(args[1], "successor"))
		if err != nil {
			fatal("failed to toggle dependency: %v", err)
		}
		if added {
			success("Dependency added")
		} else {
			success("Dependency removed")
		}
	},
}

var (
	logSpent     int
	logRemaining int
	logComment   string
)

var taskLogCmd = &cobra.Command{
	Use:   "log <task-id>",
	Short: "Log work on a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		in := planner.WorkInput{
			Start:     time.Now(),
			TimeSpent: logSpent,
			Comment:   logComment,
		}
		if cmd.Flags().Changed("remaining") {
			in.Remaining = &logRemaining
		}
		t, err := plan.LogWork(ctx, requireActor(ctx), parseIDArg(args[0], "task"), in)
		if err != nil {
			fatal("failed to log work: %v", err)
		}
		success("Logged %dm on %s, %dm remaining", logSpent, t.Name, t.Remaining)
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task and, for stories, its children",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		ids, err := plan.DeleteTask(ctx, requireActor(ctx), parseIDArg(args[0], "task"))
		if err != nil {
			fatal("failed to delete task: %v", err)
		}
		success("Deleted %d tasks", len(ids))
	},
}

func formatWhen(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(plan.Calendar().Location).Format("2006-01-02 15:04")
}

func init() {
	taskAddCmd.Flags().StringVar(&taskKind, "kind", string(types.KindTask), "task, story or milestone")
	taskAddCmd.Flags().Int64Var(&taskParent, "parent", 0, "Story to add the task to")
	taskAddCmd.Flags().Int64Var(&taskAfter, "after", 0, "Insert after this task")
	taskAddCmd.Flags().Int64Var(&taskResource, "resource", 0, "Assigned user id")
	taskAddCmd.Flags().IntVar(&taskEstimate, "estimate", 0, "Original estimate in minutes")
	taskAddCmd.Flags().StringVar(&taskNotes, "notes", "", "Notes")

	taskLogCmd.Flags().IntVar(&logSpent, "spent", 0, "Minutes worked")
	taskLogCmd.Flags().IntVar(&logRemaining, "remaining", 0, "Minutes still needed (default: previous remaining minus spent)")
	taskLogCmd.Flags().StringVar(&logComment, "comment", "", "Comment")
	_ = taskLogCmd.MarkFlagRequired("spent")

	taskCmd.AddCommand(taskAddCmd, taskStatusCmd, taskMoveCmd, taskDependCmd, taskLogCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
