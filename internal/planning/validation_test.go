package planning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func ts(day int, hour int) *time.Time {
	return types.Time(time.Date(2025, 3, day, hour, 0, 0, 0, time.UTC))
}

func codes(r ValidationResult) []string {
	var out []string
	for _, e := range r.Errors {
		out = append(out, e.Code)
	}
	for _, w := range r.Warnings {
		out = append(out, w.Code)
	}
	return out
}

func basePlan() *SprintPlan {
	alice := &types.User{ID: 1, Name: "alice", Availability: 1}
	return &SprintPlan{
		Sprint: &types.Sprint{ID: 1, Name: "s1", Status: types.SprintStarted, Start: ts(3, 8), End: ts(7, 16)},
		Tasks: []*types.Task{
			{ID: 1, Name: "story", Kind: types.KindStory, Status: types.TaskTodo},
			{ID: 2, ParentID: types.Int64(1), Name: "build", Kind: types.KindTask, Status: types.TaskInProgress,
				ResourceID: types.Int64(1), OriginalEstimate: 900, Remaining: 450, TimeSpent: 450,
				Start: ts(3, 8), Finish: ts(11, 16)},
		},
		Users: map[int64]*types.User{1: alice},
	}
}

func TestRegistryOrderAndCleanPlan(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"cycle_detection", "structure", "schedule", "assignment", "estimate_reasonableness", "impediments"}, r.Names())

	result := r.ValidateAll(context.Background(), basePlan(), &ValidationContext{Now: now})
	assert.True(t, result.IsValid())
	assert.False(t, result.HasWarnings(), "unexpected warnings: %v", codes(result))
}

func TestCycleValidator(t *testing.T) {
	plan := basePlan()
	plan.Tasks = append(plan.Tasks,
		&types.Task{ID: 3, Name: "a", Kind: types.KindTask, Status: types.TaskTodo},
		&types.Task{ID: 4, Name: "b", Kind: types.KindTask, Status: types.TaskTodo},
	)
	plan.Tasks[2].Predecessors = []*types.Relation{{SuccessorID: 3, PredecessorID: 4}}
	plan.Tasks[3].Predecessors = []*types.Relation{{SuccessorID: 4, PredecessorID: 3}}

	result := (&CycleValidator{}).Validate(context.Background(), plan, &ValidationContext{Now: now})
	require.True(t, result.HasErrors())
	assert.Equal(t, "DEPENDENCY_CYCLE", result.Errors[0].Code)

	plan.Tasks[3].Predecessors = []*types.Relation{{SuccessorID: 4, PredecessorID: 99}}
	result = (&CycleValidator{}).Validate(context.Background(), plan, &ValidationContext{Now: now})
	require.True(t, result.HasErrors())
	assert.Equal(t, "BROKEN_REFERENCE", result.Errors[0].Code)
}

func TestStructureValidator(t *testing.T) {
	plan := basePlan()
	plan.Tasks = append(plan.Tasks,
		&types.Task{ID: 3, Name: "empty", Kind: types.KindStory, Status: types.TaskTodo},
		&types.Task{ID: 4, Name: "gate", Kind: types.KindMilestone, Status: types.TaskTodo},
		&types.Task{ID: 5, ParentID: types.Int64(4), Name: "orphan", Kind: types.KindTask, Status: types.TaskTodo},
	)
	result := (&StructureValidator{}).Validate(context.Background(), plan, &ValidationContext{Now: now})
	assert.ElementsMatch(t, []string{"INVALID_PARENT", "EMPTY_STORY"}, codes(result))
	assert.Equal(t, "task-5", result.Errors[0].Location)
}

func TestScheduleValidator(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *SprintPlan)
		want   []string
	}{
		{
			name:   "on time",
			mutate: func(p *SprintPlan) {},
		},
		{
			name:   "no start",
			mutate: func(p *SprintPlan) { p.Sprint.Start = nil },
			want:   []string{"SPRINT_NOT_SCHEDULED"},
		},
		{
			name:   "late sprint",
			mutate: func(p *SprintPlan) { p.Sprint.ReleaseDate = ts(5, 0) },
			want:   []string{"SPRINT_LATE"},
		},
		{
			name:   "overdue task",
			mutate: func(p *SprintPlan) { p.Tasks[1].Finish = ts(7, 16) },
			want:   []string{"TASK_OVERDUE"},
		},
		{
			name:   "done task is never overdue",
			mutate: func(p *SprintPlan) { p.Tasks[1].Finish = ts(7, 16); p.Tasks[1].Status = types.TaskDone },
		},
		{
			name:   "user leaves before finish",
			mutate: func(p *SprintPlan) { p.Users[1].LastWorkingDay = ts(10, 0) },
			want:   []string{"RESOURCE_LEAVES"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := basePlan()
			tt.mutate(plan)
			result := (&ScheduleValidator{}).Validate(context.Background(), plan, &ValidationContext{Now: now})
			assert.ElementsMatch(t, tt.want, codes(result))
		})
	}
}

func TestAssignmentAndImpediments(t *testing.T) {
	plan := basePlan()
	plan.Tasks[1].ResourceID = nil
	plan.Tasks[1].Impediment = true

	result := DefaultRegistry().ValidateAll(context.Background(), plan, &ValidationContext{Now: now})
	assert.Contains(t, codes(result), "UNASSIGNED_TASK")
	assert.Contains(t, codes(result), "TASK_IMPEDED")
	for _, w := range result.Warnings {
		if w.Code == "TASK_IMPEDED" {
			assert.Equal(t, WarningSeverityHigh, w.Severity)
		}
	}
}

func TestEstimateValidator(t *testing.T) {
	plan := basePlan()
	plan.Tasks = append(plan.Tasks,
		&types.Task{ID: 3, Name: "unknown", Kind: types.KindTask, Status: types.TaskTodo},
		&types.Task{ID: 4, Name: "huge", Kind: types.KindTask, Status: types.TaskTodo, OriginalEstimate: 3000, Remaining: 3000},
		&types.Task{ID: 5, Name: "overrun", Kind: types.KindTask, Status: types.TaskInProgress, OriginalEstimate: 60, TimeSpent: 90, Remaining: 30},
	)
	result := (&EstimateValidator{}).Validate(context.Background(), plan, &ValidationContext{Now: now, WorkingMinutesPerDay: 450})
	assert.ElementsMatch(t, []string{"TASK_ESTIMATE_MISSING", "TASK_ESTIMATE_TOO_HIGH", "TASK_OVERRUN"}, codes(result))
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "LOW", WarningSeverityLow.String())
	assert.Equal(t, "HIGH", WarningSeverityHigh.String())
	assert.Equal(t, "UNKNOWN", WarningSeverity(9).String())

	text, err := WarningSeverityMedium.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "MEDIUM", string(text))
}
