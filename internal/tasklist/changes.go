package tasklist

import (
	"sort"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// Changeset is what a storage layer must persist after a series of edits
type Changeset struct {
	// Updated holds new and modified tasks in list order
	Updated []*types.Task
	// Added holds relations to insert; their IDs are zero
	Added []*types.Relation
	// Removed holds stored relations to delete
	Removed []*types.Relation
	// Deleted holds IDs of tasks to delete, subtrees included
	Deleted []int64
}

// IsEmpty reports whether there is nothing to persist
func (c *Changeset) IsEmpty() bool {
	return len(c.Updated) == 0 && len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Deleted) == 0
}

// Changes returns everything modified since New or the last ResetChanges
func (l *List) Changes() *Changeset {
	c := &Changeset{
		Added:   append([]*types.Relation(nil), l.added...),
		Removed: append([]*types.Relation(nil), l.removed...),
		Deleted: append([]int64(nil), l.deleted...),
	}
	for id := range l.dirty {
		if t, ok := l.Get(id); ok {
			c.Updated = append(c.Updated, t)
		}
	}
	sort.Slice(c.Updated, func(i, j int) bool { return c.Updated[i].OrderID < c.Updated[j].OrderID })
	return c
}

// MarkDirty flags a task as modified outside the list operations, for
// example after a field edit or a recalculation.
func (l *List) MarkDirty(ids ...int64) {
	for _, id := range ids {
		if _, ok := l.index[id]; ok {
			l.dirty[id] = true
		}
	}
}

// MarkAllDirty flags every task as modified
func (l *List) MarkAllDirty() {
	for _, t := range l.tasks {
		l.dirty[t.ID] = true
	}
}

// ResetChanges forgets tracked changes once they are persisted
func (l *List) ResetChanges() {
	l.dirty = make(map[int64]bool)
	l.added = nil
	l.removed = nil
	l.deleted = nil
}
