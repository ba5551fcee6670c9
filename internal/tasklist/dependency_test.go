package tasklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

func TestAddDependency(t *testing.T) {
	l := sampleList(t)

	r, err := l.AddDependency(4, 5, false)
	require.NoError(t, err)
	assert.Equal(t, int64(4), r.PredecessorID)
	assert.False(t, r.Visible)
	assert.True(t, mustTask(t, l, 5).HasPredecessor(4))

	again, err := l.AddDependency(4, 5, true)
	require.NoError(t, err)
	assert.Same(t, r, again)
	assert.Len(t, l.Changes().Added, 1)

	_, err = l.AddDependency(4, 4, true)
	assert.ErrorIs(t, err, ErrSelfDependency)
	_, err = l.AddDependency(1, 2, true)
	assert.ErrorIs(t, err, ErrHierarchyDependency)
	_, err = l.AddDependency(3, 1, true)
	assert.ErrorIs(t, err, ErrHierarchyDependency)
	_, err = l.AddDependency(99, 1, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddDependencyRejectsCycleThroughStory(t *testing.T) {
	l := sampleList(t)
	_, err := l.AddDependency(4, 3, true)
	require.NoError(t, err)

	// finish(1) -> start(4) -> finish(4) -> start(3) -> finish(3) -> finish(1)
	_, err = l.AddDependency(1, 4, true)
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.Empty(t, mustTask(t, l, 4).Predecessors)
	assert.Len(t, l.Changes().Added, 1)
}

func TestToggleDependency(t *testing.T) {
	l := sampleList(t)
	l.ResetChanges()

	exists, err := l.ToggleDependency(2, 3)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Len(t, l.Changes().Added, 1)

	exists, err = l.ToggleDependency(2, 3)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.True(t, l.Changes().IsEmpty(), "add then remove cancels out")
}

func TestToggleStoredDependencyRevivesIt(t *testing.T) {
	five := newTask(5, types.KindMilestone, 0, 1)
	five.Predecessors = []*types.Relation{{ID: 31, SuccessorID: 5, PredecessorID: 4, Visible: true}}
	l, err := New([]*types.Task{newTask(4, types.KindTask, 0, 0), five})
	require.NoError(t, err)

	exists, err := l.ToggleDependency(4, 5)
	require.NoError(t, err)
	assert.False(t, exists)
	require.Len(t, l.Changes().Removed, 1)

	exists, err = l.ToggleDependency(4, 5)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.True(t, l.Changes().IsEmpty())
	assert.Equal(t, int64(31), mustTask(t, l, 5).FindPredecessor(4).ID)
}

func TestRemoveDependencyUnknown(t *testing.T) {
	l := sampleList(t)
	assert.ErrorIs(t, l.RemoveDependency(4, 5), ErrNotFound)
}

func TestMarkDirty(t *testing.T) {
	l := sampleList(t)
	l.ResetChanges()

	l.MarkDirty(3, 99)
	assert.Equal(t, []int64{3}, taskIDs(l.Changes().Updated))

	l.MarkAllDirty()
	assert.Len(t, l.Changes().Updated, 5)
}
