package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

const (
	// MaxTaskDays is the largest estimate a single task should carry.
	// Longer tasks should be broken down.
	MaxTaskDays = 5

	locationSprint = "sprint"
)

func taskLocation(t *types.Task) string {
	return fmt.Sprintf("task-%d", t.ID)
}

// isOpenLeaf reports whether the task is unfinished work someone must do
func isOpenLeaf(t *types.Task) bool {
	return t.Kind == types.KindTask && t.Status != types.TaskDone
}

// CycleValidator detects dependency and hierarchy cycles that make the
// sprint impossible to schedule.
type CycleValidator struct{}

// Name returns the validator identifier.
func (v *CycleValidator) Name() string { return "cycle_detection" }

// Priority returns 1 (runs first).
func (v *CycleValidator) Priority() int { return 1 }

// Validate builds the event graph and sorts it.
func (v *CycleValidator) Validate(ctx context.Context, plan *SprintPlan, vctx *ValidationContext) ValidationResult {
	result := newResult()
	g, err := tasklist.BuildGraph(plan.Tasks)
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Code:     "BROKEN_REFERENCE",
			Message:  err.Error(),
			Location: locationSprint,
		})
		return result
	}
	if _, err := g.TopologicalOrder(); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Code:     "DEPENDENCY_CYCLE",
			Message:  fmt.Sprintf("Sprint cannot be scheduled: %v", err),
			Location: locationSprint,
		})
	}
	return result
}

// StructureValidator checks the task hierarchy.
type StructureValidator struct{}

// Name returns the validator identifier.
func (v *StructureValidator) Name() string { return "structure" }

// Priority returns 5.
func (v *StructureValidator) Priority() int { return 5 }

// Validate flags parents that are not stories and stories without children.
func (v *StructureValidator) Validate(ctx context.Context, plan *SprintPlan, vctx *ValidationContext) ValidationResult {
	result := newResult()
	byID := make(map[int64]*types.Task, len(plan.Tasks))
	children := make(map[int64]int)
	for _, t := range plan.Tasks {
		byID[t.ID] = t
		if t.ParentID != nil {
			children[*t.ParentID]++
		}
	}
	for _, t := range plan.Tasks {
		if t.ParentID != nil {
			if p := byID[*t.ParentID]; p != nil && !p.IsStory() {
				result.Errors = append(result.Errors, ValidationError{
					Code:     "INVALID_PARENT",
					Message:  fmt.Sprintf("Task '%s' is nested under %s '%s'", t.Name, p.Kind, p.Name),
					Location: taskLocation(t),
				})
			}
		}
		if t.IsStory() && children[t.ID] == 0 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Code:     "EMPTY_STORY",
				Message:  fmt.Sprintf("Story '%s' has no tasks", t.Name),
				Location: taskLocation(t),
				Severity: WarningSeverityLow,
			})
		}
	}
	return result
}

// ScheduleValidator compares the computed schedule with the sprint's dates
// and the availability of the assigned users.
type ScheduleValidator struct{}

// Name returns the validator identifier.
func (v *ScheduleValidator) Name() string { return "schedule" }

// Priority returns 10.
func (v *ScheduleValidator) Priority() int { return 10 }

// Validate reports late sprints, overdue tasks and users leaving mid-task.
func (v *ScheduleValidator) Validate(ctx context.Context, plan *SprintPlan, vctx *ValidationContext) ValidationResult {
	result := newResult()
	sp := plan.Sprint
	if sp.Start == nil {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Code:     "SPRINT_NOT_SCHEDULED",
			Message:  fmt.Sprintf("Sprint '%s' has no start date, tasks are not scheduled", sp.Name),
			Location: locationSprint,
			Severity: WarningSeverityLow,
		})
		return result
	}
	loc := vctx.Location
	if loc == nil {
		loc = time.UTC
	}
	if sp.IsLate() {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Code: "SPRINT_LATE",
			Message: fmt.Sprintf("Sprint '%s' ends %s, after its release date %s",
				sp.Name, sp.End.Format("2006-01-02"), sp.ReleaseDate.Format("2006-01-02")),
			Location: locationSprint,
			Severity: WarningSeverityHigh,
		})
	}

	for _, t := range plan.Tasks {
		if !isOpenLeaf(t) || t.Finish == nil {
			continue
		}
		if t.Finish.Before(vctx.Now) {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Code:     "TASK_OVERDUE",
				Message:  fmt.Sprintf("Task '%s' was planned to finish %s but is still %s", t.Name, t.Finish.Format("2006-01-02 15:04"), t.Status),
				Location: taskLocation(t),
				Severity: WarningSeverityMedium,
			})
		}
		if t.ResourceID == nil {
			continue
		}
		u := plan.Users[*t.ResourceID]
		if u != nil && u.LastWorkingDay != nil && types.DayKey(t.Finish.In(loc)) > types.DayKey(u.LastWorkingDay.In(loc)) {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Code:     "RESOURCE_LEAVES",
				Message:  fmt.Sprintf("Task '%s' finishes after %s's last working day", t.Name, u.Name),
				Location: taskLocation(t),
				Severity: WarningSeverityHigh,
			})
		}
	}
	return result
}

// AssignmentValidator checks that open work has someone to do it.
type AssignmentValidator struct{}

// Name returns the validator identifier.
func (v *AssignmentValidator) Name() string { return "assignment" }

// Priority returns 20.
func (v *AssignmentValidator) Priority() int { return 20 }

// Validate flags open tasks with work but no user.
func (v *AssignmentValidator) Validate(ctx context.Context, plan *SprintPlan, vctx *ValidationContext) ValidationResult {
	result := newResult()
	for _, t := range plan.Tasks {
		if !isOpenLeaf(t) || t.ResourceID != nil || t.Work() == 0 {
			continue
		}
		result.Warnings = append(result.Warnings, ValidationWarning{
			Code:     "UNASSIGNED_TASK",
			Message:  fmt.Sprintf("Task '%s' has %d minutes of work but nobody assigned", t.Name, t.Work()),
			Location: taskLocation(t),
			Severity: WarningSeverityMedium,
		})
	}
	return result
}

// EstimateValidator checks that estimates are present and reasonable.
type EstimateValidator struct{}

// Name returns the validator identifier.
func (v *EstimateValidator) Name() string { return "estimate_reasonableness" }

// Priority returns 30.
func (v *EstimateValidator) Priority() int { return 30 }

// Validate flags missing, oversized and overrun estimates.
func (v *EstimateValidator) Validate(ctx context.Context, plan *SprintPlan, vctx *ValidationContext) ValidationResult {
	result := newResult()
	limit := MaxTaskDays * vctx.WorkingMinutesPerDay
	for _, t := range plan.Tasks {
		if t.Kind != types.KindTask {
			continue
		}
		switch {
		case t.OriginalEstimate == 0 && t.Status != types.TaskDone:
			result.Warnings = append(result.Warnings, ValidationWarning{
				Code:     "TASK_ESTIMATE_MISSING",
				Message:  fmt.Sprintf("Task '%s' has no estimate", t.Name),
				Location: taskLocation(t),
				Severity: WarningSeverityLow,
			})
		case t.OriginalEstimate > limit:
			result.Warnings = append(result.Warnings, ValidationWarning{
				Code:     "TASK_ESTIMATE_TOO_HIGH",
				Message:  fmt.Sprintf("Task '%s' estimates %d minutes, recommended maximum is %d (consider breaking down)", t.Name, t.OriginalEstimate, limit),
				Location: taskLocation(t),
				Severity: WarningSeverityMedium,
			})
		}
		if t.OriginalEstimate > 0 && t.TimeSpent > t.OriginalEstimate {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Code:     "TASK_OVERRUN",
				Message:  fmt.Sprintf("Task '%s' used %d of %d estimated minutes", t.Name, t.TimeSpent, t.OriginalEstimate),
				Location: taskLocation(t),
				Severity: WarningSeverityMedium,
			})
		}
	}
	return result
}

// ImpedimentValidator surfaces blocked work.
type ImpedimentValidator struct{}

// Name returns the validator identifier.
func (v *ImpedimentValidator) Name() string { return "impediments" }

// Priority returns 40.
func (v *ImpedimentValidator) Priority() int { return 40 }

// Validate flags unfinished tasks marked as impeded.
func (v *ImpedimentValidator) Validate(ctx context.Context, plan *SprintPlan, vctx *ValidationContext) ValidationResult {
	result := newResult()
	for _, t := range plan.Tasks {
		if !t.Impediment || t.Status == types.TaskDone {
			continue
		}
		result.Warnings = append(result.Warnings, ValidationWarning{
			Code:     "TASK_IMPEDED",
			Message:  fmt.Sprintf("Task '%s' is blocked by an impediment", t.Name),
			Location: taskLocation(t),
			Severity: WarningSeverityHigh,
		})
	}
	return result
}
