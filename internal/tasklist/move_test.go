package tasklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

func TestMove(t *testing.T) {
	tests := []struct {
		name       string
		id, target int64
		pos        Position
		wantOrder  []int64
		wantParent int64
		wantErr    error
	}{
		{name: "before root", id: 4, target: 1, pos: Before, wantOrder: []int64{4, 1, 2, 3, 5}},
		{name: "after story keeps subtree together", id: 1, target: 4, pos: After, wantOrder: []int64{4, 1, 2, 3, 5}},
		{name: "into story", id: 4, target: 1, pos: Into, wantOrder: []int64{1, 2, 3, 4, 5}, wantParent: 1},
		{name: "before child adopts parent", id: 5, target: 2, pos: Before, wantOrder: []int64{1, 5, 2, 3, 4}, wantParent: 1},
		{name: "child after root leaves story", id: 2, target: 5, pos: After, wantOrder: []int64{1, 3, 4, 5, 2}},
		{name: "into task", id: 5, target: 4, pos: Into, wantErr: ErrNotAStory},
		{name: "into milestone", id: 4, target: 5, pos: Into, wantErr: ErrMilestoneChildren},
		{name: "into own subtree", id: 1, target: 2, pos: After, wantErr: ErrCircularHierarchy},
		{name: "onto itself", id: 4, target: 4, pos: Before, wantErr: ErrInvalidMove},
		{name: "unknown position", id: 4, target: 1, pos: "below", wantErr: ErrInvalidMove},
		{name: "unknown target", id: 4, target: 42, pos: Before, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := sampleList(t)
			err := l.Move(tt.id, tt.target, tt.pos)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(l), "failed move must not change the list")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrder, ids(l))
			moved := mustTask(t, l, tt.id)
			if tt.wantParent == 0 {
				assert.Nil(t, moved.ParentID)
			} else {
				require.NotNil(t, moved.ParentID)
				assert.Equal(t, tt.wantParent, *moved.ParentID)
			}
			assert.NoError(t, l.Validate())
		})
	}
}

func TestMoveRollsBackOnCycle(t *testing.T) {
	l := sampleList(t)
	_, err := l.AddDependency(4, 5, true)
	require.NoError(t, err)
	_, err = l.AddDependency(5, 1, true)
	require.NoError(t, err)
	l.ResetChanges()

	// 4 -> 5 -> 1 with 4 inside story 1 would make story 1 wait for itself
	err = l.Move(4, 1, Into)
	require.Error(t, err)

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(l))
	assert.Nil(t, mustTask(t, l, 4).ParentID)
	assert.True(t, l.Changes().IsEmpty())
}

func TestIndent(t *testing.T) {
	l := sampleList(t)

	require.NoError(t, l.Indent(4))
	assert.Equal(t, int64(1), *mustTask(t, l, 4).ParentID)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(l))

	assert.ErrorIs(t, l.Indent(1), ErrInvalidMove, "first root has no previous sibling")
	assert.ErrorIs(t, l.Indent(2), ErrInvalidMove, "first child has no previous sibling")
	assert.ErrorIs(t, l.Indent(3), ErrNotAStory, "previous sibling is a plain task")
}

func TestOutdent(t *testing.T) {
	l := sampleList(t)

	require.NoError(t, l.Outdent(2))
	assert.Nil(t, mustTask(t, l, 2).ParentID)
	assert.Equal(t, []int64{1, 3, 2, 4, 5}, ids(l))
	assert.ErrorIs(t, l.Outdent(4), ErrInvalidMove)
}

func TestInsert(t *testing.T) {
	l := sampleList(t)
	l.ResetChanges()

	require.NoError(t, l.Insert(newTask(6, types.KindTask, 0, 0), types.Int64(1), 0))
	assert.Equal(t, []int64{1, 2, 3, 6, 4, 5}, ids(l))

	require.NoError(t, l.Insert(newTask(7, types.KindTask, 0, 0), types.Int64(1), 1))
	assert.Equal(t, []int64{1, 7, 2, 3, 6, 4, 5}, ids(l))

	require.NoError(t, l.Insert(newTask(8, types.KindTask, 0, 0), nil, 0))
	assert.Equal(t, int64(8), ids(l)[l.Len()-1])

	err := l.Insert(newTask(9, types.KindTask, 0, 0), types.Int64(1), 4)
	assert.ErrorIs(t, err, ErrInvalidMove)
	err = l.Insert(newTask(9, types.KindTask, 0, 0), types.Int64(4), 0)
	assert.ErrorIs(t, err, ErrNotAStory)
	err = l.Insert(newTask(2, types.KindTask, 0, 0), nil, 0)
	assert.ErrorIs(t, err, ErrDuplicateTask)

	assert.NoError(t, l.Validate())
	updated := taskIDs(l.Changes().Updated)
	assert.Contains(t, updated, int64(6))
	assert.Contains(t, updated, int64(7))
	assert.Contains(t, updated, int64(4), "task 4 shifted down")
}

func TestInsertBlock(t *testing.T) {
	l := sampleList(t)

	story := newTask(10, types.KindStory, 0, 0)
	child := newTask(11, types.KindTask, 10, 1)
	child.Predecessors = []*types.Relation{{PredecessorID: 4, Visible: true}}
	require.NoError(t, l.InsertBlock([]*types.Task{story, child}, 1))

	assert.Equal(t, []int64{1, 2, 3, 10, 11, 4, 5}, ids(l))
	assert.Nil(t, mustTask(t, l, 10).ParentID)
	require.Len(t, l.Changes().Added, 1)
	assert.Equal(t, int64(11), l.Changes().Added[0].SuccessorID)

	orphan := newTask(12, types.KindTask, 0, 0)
	err := l.InsertBlock([]*types.Task{newTask(13, types.KindTask, 0, 0), orphan}, 0)
	assert.ErrorIs(t, err, ErrInvalidMove)
}

func TestRemove(t *testing.T) {
	four := newTask(4, types.KindTask, 0, 3)
	four.Predecessors = []*types.Relation{{ID: 77, SuccessorID: 4, PredecessorID: 2, Visible: true}}
	l, err := New([]*types.Task{
		newTask(1, types.KindStory, 0, 0),
		newTask(2, types.KindTask, 1, 1),
		newTask(3, types.KindTask, 1, 2),
		four,
	})
	require.NoError(t, err)

	removed, err := l.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, removed)
	assert.Equal(t, []int64{4}, ids(l))
	assert.Empty(t, mustTask(t, l, 4).Predecessors)

	changes := l.Changes()
	assert.Equal(t, []int64{1, 2, 3}, changes.Deleted)
	require.Len(t, changes.Removed, 1)
	assert.Equal(t, int64(77), changes.Removed[0].ID)
	assert.Equal(t, 0, mustTask(t, l, 4).OrderID)

	_, err = l.Remove(1)
	assert.ErrorIs(t, err, ErrNotFound)
}
