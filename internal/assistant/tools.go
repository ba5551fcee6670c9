package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/abdallabushnaq/kassandra/internal/metrics"
	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

type tool struct {
	description string
	properties  map[string]any
	required    []string
	run         func(ctx context.Context, input json.RawMessage) (any, error)
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": desc}
}

// toolInput carries every argument any tool accepts; each tool reads the
// fields it documents
type toolInput struct {
	ProductID        int64   `json:"product_id"`
	VersionID        int64   `json:"version_id"`
	FeatureID        int64   `json:"feature_id"`
	SprintID         int64   `json:"sprint_id"`
	TaskID           int64   `json:"task_id"`
	TargetID         int64   `json:"target_id"`
	PredecessorID    int64   `json:"predecessor_id"`
	SuccessorID      int64   `json:"successor_id"`
	ParentID         *int64  `json:"parent_id"`
	AfterID          int64   `json:"after_id"`
	ResourceID       *int64  `json:"resource_id"`
	ClearResource    bool    `json:"clear_resource"`
	Name             *string `json:"name"`
	Kind             string  `json:"kind"`
	Status           *string `json:"status"`
	Position         string  `json:"position"`
	OriginalEstimate *int    `json:"original_estimate"`
	Remaining        *int    `json:"remaining"`
	TimeSpent        int     `json:"time_spent"`
	Impediment       *bool   `json:"impediment"`
	Notes            *string `json:"notes"`
	Comment          string  `json:"comment"`
}

func decode(raw json.RawMessage) (*toolInput, error) {
	var in toolInput
	if len(raw) == 0 || string(raw) == "null" {
		return &in, nil
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("failed to parse tool input: %w", err)
	}
	return &in, nil
}

func required(name string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

func (a *Assistant) registerTools() map[string]tool {
	taskID := prop("integer", "Task ID")
	return map[string]tool{
		"list_products": {
			description: "List the products the user can access.",
			run: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return a.p.ListProducts(ctx, a.actor)
			},
		},
		"list_versions": {
			description: "List the versions of a product.",
			properties:  map[string]any{"product_id": prop("integer", "Product ID")},
			required:    []string{"product_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("product_id", in.ProductID); err != nil {
					return nil, err
				}
				return a.p.ListVersions(ctx, a.actor, in.ProductID)
			}),
		},
		"list_features": {
			description: "List the features of a version.",
			properties:  map[string]any{"version_id": prop("integer", "Version ID")},
			required:    []string{"version_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("version_id", in.VersionID); err != nil {
					return nil, err
				}
				return a.p.ListFeatures(ctx, a.actor, in.VersionID)
			}),
		},
		"list_sprints": {
			description: "List the sprints of a feature.",
			properties:  map[string]any{"feature_id": prop("integer", "Feature ID")},
			required:    []string{"feature_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("feature_id", in.FeatureID); err != nil {
					return nil, err
				}
				return a.p.ListSprints(ctx, a.actor, in.FeatureID)
			}),
		},
		"get_sprint": {
			description: "Get a sprint with all its tasks in list order, including schedule, resources and dependencies.",
			properties:  map[string]any{"sprint_id": prop("integer", "Sprint ID")},
			required:    []string{"sprint_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("sprint_id", in.SprintID); err != nil {
					return nil, err
				}
				plan, err := a.p.LoadSprint(ctx, a.actor, in.SprintID)
				if err != nil {
					return nil, err
				}
				return newPlanView(plan), nil
			}),
		},
		"get_task": {
			description: "Get one task.",
			properties:  map[string]any{"task_id": taskID},
			required:    []string{"task_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("task_id", in.TaskID); err != nil {
					return nil, err
				}
				return a.p.GetTask(ctx, a.actor, in.TaskID)
			}),
		},
		"create_task": {
			description: "Create a task, story or milestone in a sprint. Without parent_id and after_id it is appended at the end.",
			properties: map[string]any{
				"sprint_id":         prop("integer", "Sprint ID"),
				"name":              prop("string", "Task name"),
				"kind":              enum("Kind (default: task)", "task", "story", "milestone"),
				"parent_id":         prop("integer", "Story that owns the new task"),
				"after_id":          prop("integer", "Insert right after this task"),
				"resource_id":       prop("integer", "Assigned user ID"),
				"original_estimate": prop("integer", "Estimate in minutes"),
				"notes":             prop("string", "Notes"),
			},
			required: []string{"sprint_id", "name"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("sprint_id", in.SprintID); err != nil {
					return nil, err
				}
				if in.Name == nil || *in.Name == "" {
					return nil, fmt.Errorf("name is required")
				}
				ti := planner.TaskInput{
					Name:       *in.Name,
					Kind:       types.TaskKind(in.Kind),
					ParentID:   in.ParentID,
					AfterID:    in.AfterID,
					ResourceID: in.ResourceID,
				}
				if ti.Kind == "" {
					ti.Kind = types.KindTask
				}
				if in.OriginalEstimate != nil {
					ti.OriginalEstimate = *in.OriginalEstimate
				}
				if in.Notes != nil {
					ti.Notes = *in.Notes
				}
				return a.p.CreateTask(ctx, a.actor, in.SprintID, ti)
			}),
		},
		"update_task": {
			description: "Change fields of a task. Only the given fields change.",
			properties: map[string]any{
				"task_id":           taskID,
				"name":              prop("string", "New name"),
				"status":            enum("New status", "todo", "in_progress", "done"),
				"resource_id":       prop("integer", "Assigned user ID"),
				"clear_resource":    prop("boolean", "Unassign the task"),
				"original_estimate": prop("integer", "Estimate in minutes"),
				"remaining":         prop("integer", "Remaining work in minutes"),
				"impediment":        prop("boolean", "Whether the task is impeded"),
				"notes":             prop("string", "Notes"),
			},
			required: []string{"task_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("task_id", in.TaskID); err != nil {
					return nil, err
				}
				patch := planner.TaskPatch{
					Name:             in.Name,
					ResourceID:       in.ResourceID,
					ClearResource:    in.ClearResource,
					OriginalEstimate: in.OriginalEstimate,
					Remaining:        in.Remaining,
					Impediment:       in.Impediment,
					Notes:            in.Notes,
				}
				if in.Status != nil {
					s := types.TaskStatus(*in.Status)
					patch.Status = &s
				}
				if patch.IsEmpty() {
					return nil, fmt.Errorf("nothing to change")
				}
				return a.p.UpdateTask(ctx, a.actor, in.TaskID, patch)
			}),
		},
		"move_task": {
			description: "Move a task with its subtree before or after another task, or into a story.",
			properties: map[string]any{
				"task_id":   taskID,
				"target_id": prop("integer", "Task to move relative to"),
				"position":  enum("Where to drop the task", "before", "after", "into"),
			},
			required: []string{"task_id", "target_id", "position"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("task_id", in.TaskID); err != nil {
					return nil, err
				}
				if err := required("target_id", in.TargetID); err != nil {
					return nil, err
				}
				plan, err := a.p.MoveTask(ctx, a.actor, in.TaskID, in.TargetID, tasklist.Position(in.Position))
				if err != nil {
					return nil, err
				}
				return newPlanView(plan), nil
			}),
		},
		"indent_task": {
			description: "Make a task a child of the story above it.",
			properties:  map[string]any{"task_id": taskID},
			required:    []string{"task_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("task_id", in.TaskID); err != nil {
					return nil, err
				}
				plan, err := a.p.IndentTask(ctx, a.actor, in.TaskID)
				if err != nil {
					return nil, err
				}
				return newPlanView(plan), nil
			}),
		},
		"outdent_task": {
			description: "Move a task out of its story, right after it.",
			properties:  map[string]any{"task_id": taskID},
			required:    []string{"task_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("task_id", in.TaskID); err != nil {
					return nil, err
				}
				plan, err := a.p.OutdentTask(ctx, a.actor, in.TaskID)
				if err != nil {
					return nil, err
				}
				return newPlanView(plan), nil
			}),
		},
		"toggle_dependency": {
			description: "Add a finish-to-start dependency, or remove it if it already exists.",
			properties: map[string]any{
				"predecessor_id": prop("integer", "Task that must finish first"),
				"successor_id":   prop("integer", "Task that waits"),
			},
			required: []string{"predecessor_id", "successor_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("predecessor_id", in.PredecessorID); err != nil {
					return nil, err
				}
				if err := required("successor_id", in.SuccessorID); err != nil {
					return nil, err
				}
				exists, err := a.p.ToggleDependency(ctx, a.actor, in.PredecessorID, in.SuccessorID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"predecessor_id": in.PredecessorID, "successor_id": in.SuccessorID, "exists": exists}, nil
			}),
		},
		"delete_task": {
			description: "Delete a task. Deleting a story deletes its children too.",
			properties:  map[string]any{"task_id": taskID},
			required:    []string{"task_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("task_id", in.TaskID); err != nil {
					return nil, err
				}
				removed, err := a.p.DeleteTask(ctx, a.actor, in.TaskID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"deleted": removed}, nil
			}),
		},
		"log_work": {
			description: "Book time spent on a task. Remaining work shrinks by the time spent unless given.",
			properties: map[string]any{
				"task_id":    taskID,
				"time_spent": prop("integer", "Minutes spent"),
				"remaining":  prop("integer", "Remaining minutes after this work"),
				"comment":    prop("string", "What was done"),
			},
			required: []string{"task_id", "time_spent"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("task_id", in.TaskID); err != nil {
					return nil, err
				}
				if in.TimeSpent <= 0 {
					return nil, fmt.Errorf("time_spent must be positive")
				}
				return a.p.LogWork(ctx, a.actor, in.TaskID, planner.WorkInput{
					TimeSpent: in.TimeSpent,
					Remaining: in.Remaining,
					Comment:   in.Comment,
				})
			}),
		},
		"recalculate_sprint": {
			description: "Reschedule every task of a sprint from its start date.",
			properties:  map[string]any{"sprint_id": prop("integer", "Sprint ID")},
			required:    []string{"sprint_id"},
			run: withInput(func(ctx context.Context, in *toolInput) (any, error) {
				if err := required("sprint_id", in.SprintID); err != nil {
					return nil, err
				}
				plan, err := a.p.Recalculate(ctx, a.actor, in.SprintID)
				if err != nil {
					return nil, err
				}
				return newPlanView(plan), nil
			}),
		},
		"list_users": {
			description: "List users with their IDs, availability and working period.",
			run: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return a.p.ListUsers(ctx, a.actor)
			},
		},
		"get_statistics": {
			description: "Count products, sprints, tasks by status and users.",
			run: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return a.p.Statistics(ctx, a.actor)
			},
		},
	}
}

func withInput(fn func(ctx context.Context, in *toolInput) (any, error)) func(context.Context, json.RawMessage) (any, error) {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		in, err := decode(raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// toolParams returns the tool definitions sorted by name
func (a *Assistant) toolParams() []anthropic.ToolUnionParam {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]anthropic.ToolUnionParam, 0, len(names))
	for _, name := range names {
		t := a.tools[name]
		props := t.properties
		if props == nil {
			props = map[string]any{}
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        name,
			Description: anthropic.String(t.description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   t.required,
			},
		}})
	}
	return out
}

// executeTool runs a tool and renders its result as JSON
func (a *Assistant) executeTool(ctx context.Context, name string, input json.RawMessage) (string, error) {
	t, ok := a.tools[name]
	if !ok {
		metrics.AssistantToolCalls.WithLabelValues("unknown", "error").Inc()
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	res, err := t.run(ctx, input)
	metrics.AssistantToolCalls.WithLabelValues(name, metrics.Result(err)).Inc()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s result: %w", name, err)
	}
	return string(data), nil
}

func observeUsage(u anthropic.Usage) {
	metrics.AssistantTokens.WithLabelValues("input").Add(float64(u.InputTokens))
	metrics.AssistantTokens.WithLabelValues("output").Add(float64(u.OutputTokens))
}

// planView is a compact rendering of a plan for the model
type planView struct {
	Sprint   *types.Sprint `json:"sprint"`
	Tasks    []taskView    `json:"tasks"`
	Warnings []string      `json:"warnings,omitempty"`
}

type taskView struct {
	ID           int64      `json:"id"`
	ParentID     *int64     `json:"parent_id,omitempty"`
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	Resource     string     `json:"resource,omitempty"`
	Start        *time.Time `json:"start,omitempty"`
	Finish       *time.Time `json:"finish,omitempty"`
	Estimate     int        `json:"original_estimate"`
	Remaining    int        `json:"remaining"`
	Impediment   bool       `json:"impediment,omitempty"`
	Predecessors []int64    `json:"predecessors,omitempty"`
}

func newPlanView(plan *planner.Plan) planView {
	v := planView{Sprint: plan.Sprint, Tasks: make([]taskView, 0, len(plan.Tasks)), Warnings: plan.Warnings}
	for _, t := range plan.Tasks {
		tv := taskView{
			ID:         t.ID,
			ParentID:   t.ParentID,
			Name:       t.Name,
			Kind:       string(t.Kind),
			Status:     string(t.Status),
			Start:      t.Start,
			Finish:     t.Finish,
			Estimate:   t.OriginalEstimate,
			Remaining:  t.Remaining,
			Impediment: t.Impediment,
		}
		if t.ResourceID != nil {
			if u := plan.Users[*t.ResourceID]; u != nil {
				tv.Resource = u.Name
			}
		}
		for _, r := range t.Predecessors {
			tv.Predecessors = append(tv.Predecessors, r.PredecessorID)
		}
		v.Tasks = append(v.Tasks, tv)
	}
	return v
}
