package tasklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

func newTask(id int64, kind types.TaskKind, parent int64, order int) *types.Task {
	t := &types.Task{ID: id, Name: "task", Kind: kind, Status: types.TaskTodo, OrderID: order}
	if parent != 0 {
		t.ParentID = types.Int64(parent)
	}
	return t
}

// sampleList builds:
//
//	0 story 1
//	1   task 2
//	2   task 3
//	3 task 4
//	4 milestone 5
func sampleList(t *testing.T) *List {
	t.Helper()
	l, err := New([]*types.Task{
		newTask(1, types.KindStory, 0, 0),
		newTask(2, types.KindTask, 1, 1),
		newTask(3, types.KindTask, 1, 2),
		newTask(4, types.KindTask, 0, 3),
		newTask(5, types.KindMilestone, 0, 4),
	})
	require.NoError(t, err)
	return l
}

func ids(l *List) []int64 {
	out := make([]int64, 0, l.Len())
	for _, t := range l.Tasks() {
		out = append(out, t.ID)
	}
	return out
}

func TestNewArrangesPreOrder(t *testing.T) {
	l, err := New([]*types.Task{
		newTask(4, types.KindTask, 0, 1),
		newTask(3, types.KindTask, 1, 9),
		newTask(1, types.KindStory, 0, 0),
		newTask(2, types.KindTask, 1, 5),
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3, 4}, ids(l))
	for i, task := range l.Tasks() {
		assert.Equal(t, i, task.OrderID)
	}
	assert.Len(t, l.Changes().Updated, 3, "tasks 2, 3 and 4 changed position")
	assert.NoError(t, l.Validate())
}

func TestNewRejectsInvalidInput(t *testing.T) {
	t.Run("parent is not a story", func(t *testing.T) {
		_, err := New([]*types.Task{
			newTask(1, types.KindTask, 0, 0),
			newTask(2, types.KindTask, 1, 1),
		})
		assert.ErrorIs(t, err, ErrNotAStory)
	})

	t.Run("missing parent", func(t *testing.T) {
		_, err := New([]*types.Task{newTask(2, types.KindTask, 7, 0)})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := New([]*types.Task{newTask(1, types.KindTask, 0, 0), newTask(1, types.KindTask, 0, 1)})
		assert.ErrorIs(t, err, ErrDuplicateTask)
	})

	t.Run("dependency cycle", func(t *testing.T) {
		a := newTask(1, types.KindTask, 0, 0)
		b := newTask(2, types.KindTask, 0, 1)
		a.Predecessors = []*types.Relation{{ID: 1, SuccessorID: 1, PredecessorID: 2}}
		b.Predecessors = []*types.Relation{{ID: 2, SuccessorID: 2, PredecessorID: 1}}
		_, err := New([]*types.Task{a, b})
		assert.ErrorIs(t, err, ErrDependencyCycle)
	})

	t.Run("dependency on ancestor", func(t *testing.T) {
		child := newTask(2, types.KindTask, 1, 1)
		child.Predecessors = []*types.Relation{{ID: 1, SuccessorID: 2, PredecessorID: 1}}
		_, err := New([]*types.Task{newTask(1, types.KindStory, 0, 0), child})
		assert.ErrorIs(t, err, ErrHierarchyDependency)
	})
}

func TestHierarchyQueries(t *testing.T) {
	l := sampleList(t)

	assert.Equal(t, []int64{1, 2, 3}, taskIDs(l.Subtree(1)))
	assert.Equal(t, []int64{2, 3}, taskIDs(l.Children(1)))
	assert.Equal(t, []int64{1, 4, 5}, taskIDs(l.Children(0)))
	assert.Equal(t, 1, l.Depth(3))
	assert.True(t, l.IsAncestorOf(1, 3))
	assert.True(t, l.IsDescendantOf(3, 1))
	assert.False(t, l.IsAncestorOf(4, 3))
	assert.Equal(t, int64(1), l.Parent(mustTask(t, l, 2)).ID)
	assert.Equal(t, -1, l.Position(99))
}

func TestTopologicalOrderRespectsEdges(t *testing.T) {
	l := sampleList(t)
	_, err := l.AddDependency(4, 5, true)
	require.NoError(t, err)
	_, err = l.AddDependency(2, 3, true)
	require.NoError(t, err)

	g := l.Graph()
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 2*l.Len())

	at := make(map[int]int, len(order))
	for i, n := range order {
		at[n] = i
	}
	for n := 0; n < g.Len(); n++ {
		for _, in := range g.Incoming(n) {
			assert.Less(t, at[in], at[n], "edge %d -> %d points backwards", in, n)
		}
	}
	assert.Equal(t, StartEvent, g.Kind(g.StartOf(2)))
	assert.Equal(t, int64(3), g.Task(g.FinishOf(2)).ID)
}

func taskIDs(tasks []*types.Task) []int64 {
	out := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func mustTask(t *testing.T, l *List, id int64) *types.Task {
	t.Helper()
	task, ok := l.Get(id)
	require.True(t, ok, "task %d not in list", id)
	return task
}
