package clipboard

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

func storyList(t *testing.T) *tasklist.List {
	t.Helper()
	start := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	story := &types.Task{ID: 1, SprintID: 9, Name: "Login", Kind: types.KindStory, Status: types.TaskInProgress}
	api := &types.Task{
		ID: 2, SprintID: 9, ParentID: types.Int64(1), OrderID: 1, Name: "API",
		Kind: types.KindTask, Status: types.TaskInProgress, ResourceID: types.Int64(3),
		OriginalEstimate: 480, TimeSpent: 120, Remaining: 300, Progress: 0.29,
		Impediment: true, Start: types.Time(start), Finish: types.Time(start.Add(48 * time.Hour)),
	}
	ui := &types.Task{
		ID: 3, SprintID: 9, ParentID: types.Int64(1), OrderID: 2, Name: "UI",
		Kind: types.KindTask, Status: types.TaskTodo, OriginalEstimate: 240, Remaining: 240,
		Predecessors: []*types.Relation{{ID: 10, SuccessorID: 3, PredecessorID: 2, Visible: true}},
	}
	docs := &types.Task{
		ID: 4, SprintID: 9, OrderID: 3, Name: "Docs", Kind: types.KindTask, Status: types.TaskTodo,
		Predecessors: []*types.Relation{{ID: 11, SuccessorID: 4, PredecessorID: 3, Visible: true}},
	}
	l, err := tasklist.New([]*types.Task{story, api, ui, docs})
	require.NoError(t, err)
	return l
}

func TestCopyStoryKeepsInternalRelations(t *testing.T) {
	l := storyList(t)

	data, err := Copy(l, 1)
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, Format, p.Format)
	assert.Equal(t, Version, p.Version)
	assert.Equal(t, "story", p.Kind)
	assert.NotEmpty(t, p.ID)
	require.Len(t, p.Tasks, 3)
	assert.Nil(t, p.Tasks[0].ParentRef)
	require.NotNil(t, p.Tasks[1].ParentRef)
	assert.Equal(t, 1, *p.Tasks[1].ParentRef)
	assert.Equal(t, []RelationRef{{PredecessorRef: 2, SuccessorRef: 3, Visible: true}}, p.Relations)
}

func TestCopyLeafDropsOutsideRelations(t *testing.T) {
	l := storyList(t)

	data, err := Copy(l, 4)
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "task", p.Kind)
	assert.Len(t, p.Tasks, 1)
	assert.Empty(t, p.Relations)

	_, err = Copy(l, 42)
	assert.ErrorIs(t, err, tasklist.ErrNotFound)
}

func TestDecodeClearsFields(t *testing.T) {
	l := storyList(t)
	data, err := Copy(l, 1)
	require.NoError(t, err)

	b, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, b.Tasks, 3)
	assert.Equal(t, []int{-1, 0, 0}, b.Parents)

	api := b.Tasks[1]
	assert.Zero(t, api.ID)
	assert.Zero(t, api.SprintID)
	assert.Nil(t, api.ParentID)
	assert.Nil(t, api.Start)
	assert.Nil(t, api.Finish)
	assert.Zero(t, api.TimeSpent)
	assert.Zero(t, api.Progress)
	assert.False(t, api.Impediment)
	assert.Equal(t, types.TaskTodo, api.Status)
	assert.Equal(t, 480, api.Remaining)
	assert.Equal(t, int64(3), *api.ResourceID, "assignment survives the copy")
	assert.Equal(t, []Link{{Predecessor: 1, Successor: 2, Visible: true}}, b.Relations)

	// the source list is untouched
	orig, _ := l.Get(2)
	assert.Equal(t, 120, orig.TimeSpent)
}

func TestInstantiateAndPaste(t *testing.T) {
	l := storyList(t)
	data, err := Copy(l, 1)
	require.NoError(t, err)
	b, err := Decode(data)
	require.NoError(t, err)

	next := int64(0)
	tasks := b.Instantiate(9, func() int64 { next--; return next })
	require.Len(t, tasks, 3)
	assert.Equal(t, int64(-1), tasks[0].ID)
	assert.Equal(t, int64(-1), *tasks[1].ParentID)
	require.Len(t, tasks[2].Predecessors, 1)
	assert.Equal(t, int64(-2), tasks[2].Predecessors[0].PredecessorID)

	require.NoError(t, l.InsertBlock(tasks, 1))
	assert.Equal(t, 7, l.Len())
	assert.NoError(t, l.Validate())
	assert.Len(t, l.Changes().Added, 1)
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	task := func(kind string) string {
		return `{"name":"x","kind":"` + kind + `","status":"todo"}`
	}
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{`},
		{"wrong format", `{"format":"other","version":1,"tasks":[{"ref":1,"task":` + task("task") + `}]}`},
		{"wrong version", `{"format":"kassandra/clipboard","version":2,"tasks":[{"ref":1,"task":` + task("task") + `}]}`},
		{"empty", `{"format":"kassandra/clipboard","version":1,"tasks":[]}`},
		{"root with parent", `{"format":"kassandra/clipboard","version":1,"tasks":[{"ref":1,"parent_ref":1,"task":` + task("task") + `}]}`},
		{"orphan entry", `{"format":"kassandra/clipboard","version":1,"tasks":[{"ref":1,"task":` + task("story") + `},{"ref":2,"task":` + task("task") + `}]}`},
		{"parent not a story", `{"format":"kassandra/clipboard","version":1,"tasks":[{"ref":1,"task":` + task("task") + `},{"ref":2,"parent_ref":1,"task":` + task("task") + `}]}`},
		{"duplicate ref", `{"format":"kassandra/clipboard","version":1,"tasks":[{"ref":1,"task":` + task("story") + `},{"ref":1,"parent_ref":1,"task":` + task("task") + `}]}`},
		{"invalid task", `{"format":"kassandra/clipboard","version":1,"tasks":[{"ref":1,"task":` + task("epic") + `}]}`},
		{"dangling relation", `{"format":"kassandra/clipboard","version":1,"tasks":[{"ref":1,"task":` + task("task") + `}],"relations":[{"predecessor_ref":1,"successor_ref":5}]}`},
		{"duplicate relation", `{"format":"kassandra/clipboard","version":1,"tasks":[{"ref":1,"task":` + task("story") + `},{"ref":2,"parent_ref":1,"task":` + task("task") + `},{"ref":3,"parent_ref":1,"task":` + task("task") + `}],"relations":[{"predecessor_ref":2,"successor_ref":3},{"predecessor_ref":2,"successor_ref":3,"visible":true}]}`},
		{"self relation", `{"format":"kassandra/clipboard","version":1,"tasks":[{"ref":1,"task":` + task("task") + `}],"relations":[{"predecessor_ref":1,"successor_ref":1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}
