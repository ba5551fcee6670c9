package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

func leaf(id, parent, user int64, order, work int) *types.Task {
	t := &types.Task{
		ID: id, Name: "task", Kind: types.KindTask, Status: types.TaskTodo, OrderID: order,
		OriginalEstimate: work, Remaining: work,
	}
	if parent != 0 {
		t.ParentID = types.Int64(parent)
	}
	if user != 0 {
		t.ResourceID = types.Int64(user)
	}
	return t
}

func resources(ids ...int64) map[int64]*Resource {
	out := make(map[int64]*Resource, len(ids))
	for _, id := range ids {
		out[id] = &Resource{User: &types.User{ID: id, Name: "user", Availability: 1}}
	}
	return out
}

func assertTimes(t *testing.T, task *types.Task, start, finish time.Time) {
	t.Helper()
	require.NotNil(t, task.Start, "task %d start", task.ID)
	require.NotNil(t, task.Finish, "task %d finish", task.ID)
	assert.True(t, start.Equal(*task.Start), "task %d start = %v, want %v", task.ID, *task.Start, start)
	assert.True(t, finish.Equal(*task.Finish), "task %d finish = %v, want %v", task.ID, *task.Finish, finish)
}

func TestRecalculateLevelsAndAggregates(t *testing.T) {
	story := &types.Task{ID: 1, Name: "Login", Kind: types.KindStory, Status: types.TaskTodo}
	api := leaf(2, 1, 1, 1, 450)
	ui := leaf(3, 1, 1, 2, 450)
	docs := leaf(4, 0, 2, 3, 225)
	docs.Predecessors = []*types.Relation{{ID: 1, SuccessorID: 4, PredecessorID: 2}}
	release := &types.Task{
		ID: 5, Name: "Release", Kind: types.KindMilestone, Status: types.TaskTodo, OrderID: 4,
		Predecessors: []*types.Relation{{ID: 2, SuccessorID: 5, PredecessorID: 1}},
	}
	list, err := tasklist.New([]*types.Task{story, api, ui, docs, release})
	require.NoError(t, err)
	list.ResetChanges()

	sprint := &types.Sprint{ID: 7, Name: "S1", Start: types.Time(at(3, 8, 0))}
	res, err := Recalculate(sprint, list, resources(1, 2), DefaultCalendar(time.UTC))
	require.NoError(t, err)

	assertTimes(t, api, at(3, 8, 0), at(3, 15, 30))
	assertTimes(t, ui, at(4, 8, 0), at(4, 15, 30))
	assertTimes(t, docs, at(4, 8, 0), at(4, 11, 45))
	assertTimes(t, story, at(3, 8, 0), at(4, 15, 30))
	assertTimes(t, release, at(4, 15, 30), at(4, 15, 30))

	assert.Equal(t, 900, story.OriginalEstimate)
	assert.Equal(t, 900, story.Remaining)
	assert.Equal(t, types.TaskTodo, story.Status)

	require.NotNil(t, sprint.End)
	assert.True(t, at(4, 15, 30).Equal(*sprint.End))
	assert.Equal(t, 1125, sprint.OriginalEstimation)
	assert.Equal(t, 1125, sprint.Remaining)
	assert.Zero(t, sprint.Worked)
	assert.True(t, res.SprintChanged)
	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5}, res.Changed)
	assert.Len(t, list.Changes().Updated, 5)

	again, err := Recalculate(sprint, list, resources(1, 2), DefaultCalendar(time.UTC))
	require.NoError(t, err)
	assert.Empty(t, again.Changed)
	assert.False(t, again.SprintChanged)
}

func TestRecalculateLevelsInListOrder(t *testing.T) {
	first := leaf(1, 0, 1, 0, 120)
	second := leaf(2, 0, 1, 1, 120)
	list, err := tasklist.New([]*types.Task{first, second})
	require.NoError(t, err)

	sprint := &types.Sprint{ID: 1, Start: types.Time(at(3, 8, 0))}
	_, err = Recalculate(sprint, list, resources(1), nil)
	require.NoError(t, err)
	assertTimes(t, first, at(3, 8, 0), at(3, 10, 0))
	assertTimes(t, second, at(3, 10, 0), at(3, 12, 0))

	require.NoError(t, list.Move(2, 1, tasklist.Before))
	_, err = Recalculate(sprint, list, resources(1), nil)
	require.NoError(t, err)
	assertTimes(t, second, at(3, 8, 0), at(3, 10, 0))
	assertTimes(t, first, at(3, 10, 0), at(3, 12, 0))
}

func TestRecalculateUserConstraints(t *testing.T) {
	task := leaf(1, 0, 1, 0, 450)
	list, err := tasklist.New([]*types.Task{task})
	require.NoError(t, err)

	res := resources(1)
	res[1].User.Availability = 0.5
	res[1].OffDays = []*types.OffDay{{UserID: 1, FirstDay: at(3, 0, 0), LastDay: at(3, 0, 0), Type: types.OffDaySick}}

	sprint := &types.Sprint{ID: 1, Start: types.Time(at(3, 8, 0))}
	_, err = Recalculate(sprint, list, res, nil)
	require.NoError(t, err)
	assertTimes(t, task, at(4, 8, 0), at(5, 15, 30))
}

func TestRecalculateFallsBackWhenUserLeft(t *testing.T) {
	task := leaf(1, 0, 1, 0, 60)
	list, err := tasklist.New([]*types.Task{task})
	require.NoError(t, err)

	res := resources(1)
	res[1].User.LastWorkingDay = types.Time(at(1, 0, 0))

	sprint := &types.Sprint{ID: 1, Start: types.Time(at(3, 8, 0))}
	out, err := Recalculate(sprint, list, res, nil)
	require.NoError(t, err)
	require.Len(t, out.Warnings, 1)
	assertTimes(t, task, at(3, 8, 0), at(3, 9, 0))
}

func TestRecalculateMilestoneFixedStart(t *testing.T) {
	m := &types.Task{ID: 1, Name: "Demo", Kind: types.KindMilestone, Status: types.TaskTodo, FixedStart: types.Time(at(6, 12, 0))}
	list, err := tasklist.New([]*types.Task{m})
	require.NoError(t, err)

	sprint := &types.Sprint{ID: 1, Start: types.Time(at(3, 8, 0))}
	_, err = Recalculate(sprint, list, nil, nil)
	require.NoError(t, err)
	assertTimes(t, m, at(6, 12, 0), at(6, 12, 0))
	assert.True(t, at(6, 12, 0).Equal(*sprint.End))
}

func TestRecalculateStoryStatusAndProgress(t *testing.T) {
	story := &types.Task{ID: 1, Name: "Story", Kind: types.KindStory, Status: types.TaskTodo}
	done := leaf(2, 1, 0, 1, 60)
	done.Status = types.TaskDone
	done.TimeSpent = 90
	done.Remaining = 0
	open := leaf(3, 1, 0, 2, 30)
	list, err := tasklist.New([]*types.Task{story, done, open})
	require.NoError(t, err)

	sprint := &types.Sprint{ID: 1, Start: types.Time(at(3, 8, 0))}
	_, err = Recalculate(sprint, list, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, types.TaskInProgress, story.Status)
	assert.Equal(t, 1.0, done.Progress)
	assert.Equal(t, 0.0, open.Progress)
	assert.InDelta(t, 0.75, story.Progress, 1e-9)
	assert.Equal(t, 90, sprint.Worked)
	assert.Equal(t, 30, sprint.Remaining)
}

func TestRecalculateRequiresSprintStart(t *testing.T) {
	list, err := tasklist.New(nil)
	require.NoError(t, err)
	_, err = Recalculate(&types.Sprint{ID: 1}, list, nil, nil)
	assert.ErrorIs(t, err, ErrNoSprintStart)
}
