package tasklist

import (
	"fmt"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// Position tells Move where to drop a task relative to the target
type Position string

const (
	// Before places the task above the target, as its sibling
	Before Position = "before"
	// After places the task below the target's subtree, as its sibling
	After Position = "after"
	// Into makes the task the last child of the target story
	Into Position = "into"
)

// IsValid checks if the position value is valid
func (p Position) IsValid() bool {
	switch p {
	case Before, After, Into:
		return true
	}
	return false
}

// Move relocates a task together with its subtree relative to a target task.
// Before and After adopt the target's parent; Into re-parents the task under
// the target, which must be a story.
func (l *List) Move(id, targetID int64, pos Position) error {
	if !pos.IsValid() {
		return fmt.Errorf("%w: unknown position %q", ErrInvalidMove, pos)
	}
	if id == targetID {
		return fmt.Errorf("%w: task %d dropped onto itself", ErrInvalidMove, id)
	}
	task, err := l.mustGet(id)
	if err != nil {
		return err
	}
	target, err := l.mustGet(targetID)
	if err != nil {
		return err
	}
	if l.IsAncestorOf(id, targetID) {
		return fmt.Errorf("task %d into %d: %w", id, targetID, ErrCircularHierarchy)
	}
	if pos == Into && !target.IsStory() {
		return notAStory(id, target)
	}

	return l.apply(func() error {
		block := l.extract(id)
		tpos := l.index[targetID]

		var parent *int64
		var at int
		switch pos {
		case Before:
			parent, at = target.ParentID, tpos
		case After:
			parent, at = target.ParentID, l.subtreeEnd(tpos)
		case Into:
			parent, at = types.Int64(targetID), l.subtreeEnd(tpos)
		}
		l.setParent(task, parent)
		l.insertAt(at, block)
		return nil
	})
}

// Indent makes the task the last child of its previous sibling, which must
// be a story.
func (l *List) Indent(id int64) error {
	task, err := l.mustGet(id)
	if err != nil {
		return err
	}
	prev := l.previousSibling(task)
	if prev == nil {
		return fmt.Errorf("%w: task %d has no previous sibling", ErrInvalidMove, id)
	}
	if !prev.IsStory() {
		return notAStory(id, prev)
	}
	return l.Move(id, prev.ID, Into)
}

// Outdent lifts the task one level: it becomes the sibling of its former
// parent, placed after the parent's remaining subtree.
func (l *List) Outdent(id int64) error {
	task, err := l.mustGet(id)
	if err != nil {
		return err
	}
	if task.ParentID == nil {
		return fmt.Errorf("%w: task %d is already at the top level", ErrInvalidMove, id)
	}
	return l.Move(id, *task.ParentID, After)
}

// Insert adds a new task. With afterID 0 the task is appended as the last
// child of parentID (or at the end of the list for root tasks). Otherwise
// afterID must be the parent itself, making the task its first child, or a
// sibling, after whose subtree the task is placed.
func (l *List) Insert(task *types.Task, parentID *int64, afterID int64) error {
	if task.ID == 0 {
		return fmt.Errorf("task %q has no ID", task.Name)
	}
	if _, exists := l.index[task.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateTask, task.ID)
	}

	at := len(l.tasks)
	if parentID != nil {
		ppos, ok := l.index[*parentID]
		if !ok {
			return fmt.Errorf("parent %d: %w", *parentID, ErrNotFound)
		}
		at = l.subtreeEnd(ppos)
	}
	if afterID != 0 {
		after, err := l.mustGet(afterID)
		if err != nil {
			return err
		}
		apos := l.index[afterID]
		switch {
		case parentID != nil && afterID == *parentID:
			at = apos + 1
		case sameParent(after.ParentID, parentID):
			at = l.subtreeEnd(apos)
		default:
			return fmt.Errorf("%w: task %d is neither the parent nor a sibling", ErrInvalidMove, afterID)
		}
	}

	return l.apply(func() error {
		task.ParentID = cloneID(parentID)
		l.insertAt(at, []*types.Task{task})
		l.dirty[task.ID] = true
		for _, r := range task.Predecessors {
			r.SuccessorID = task.ID
			l.recordAdded(r)
		}
		return nil
	})
}

// InsertBlock adds a pre-ordered block of new tasks, such as a pasted story
// with its children. The first task is the block root; it becomes a sibling
// placed after the subtree of afterID, or a root appended at the end of the
// list when afterID is 0. Every other task must have its parent inside the
// block.
func (l *List) InsertBlock(block []*types.Task, afterID int64) error {
	if len(block) == 0 {
		return nil
	}
	inBlock := make(map[int64]bool, len(block))
	for i, t := range block {
		if t.ID == 0 {
			return fmt.Errorf("task %q has no ID", t.Name)
		}
		if _, exists := l.index[t.ID]; exists || inBlock[t.ID] {
			return fmt.Errorf("%w: %d", ErrDuplicateTask, t.ID)
		}
		if i > 0 && (t.ParentID == nil || !inBlock[*t.ParentID]) {
			return fmt.Errorf("%w: task %d of the block has no parent inside the block", ErrInvalidMove, t.ID)
		}
		inBlock[t.ID] = true
	}

	at := len(l.tasks)
	var parent *int64
	if afterID != 0 {
		after, err := l.mustGet(afterID)
		if err != nil {
			return err
		}
		at = l.subtreeEnd(l.index[afterID])
		parent = cloneID(after.ParentID)
	}

	return l.apply(func() error {
		block[0].ParentID = parent
		l.insertAt(at, block)
		for _, t := range block {
			l.dirty[t.ID] = true
			for _, r := range t.Predecessors {
				r.SuccessorID = t.ID
				l.recordAdded(r)
			}
		}
		return nil
	})
}

// Remove deletes the task and its subtree together with every relation that
// touches them. It returns the deleted task IDs.
func (l *List) Remove(id int64) ([]int64, error) {
	if _, err := l.mustGet(id); err != nil {
		return nil, err
	}
	var removed []int64
	err := l.apply(func() error {
		block := l.extract(id)
		gone := make(map[int64]bool, len(block))
		for _, t := range block {
			gone[t.ID] = true
			removed = append(removed, t.ID)
			delete(l.dirty, t.ID)
			l.forgetAdded(t.ID)
		}
		for _, t := range l.tasks {
			kept := t.Predecessors[:0]
			for _, r := range t.Predecessors {
				if gone[r.PredecessorID] {
					l.recordRemoved(r)
					continue
				}
				kept = append(kept, r)
			}
			t.Predecessors = kept
		}
		l.deleted = append(l.deleted, removed...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// previousSibling returns the nearest task above with the same parent
func (l *List) previousSibling(t *types.Task) *types.Task {
	for i := l.index[t.ID] - 1; i >= 0; i-- {
		c := l.tasks[i]
		if t.ParentID != nil && c.ID == *t.ParentID {
			return nil
		}
		if sameParent(c.ParentID, t.ParentID) {
			return c
		}
	}
	return nil
}

// extract cuts the subtree of id out of the list and returns it
func (l *List) extract(id int64) []*types.Task {
	pos := l.index[id]
	end := l.subtreeEnd(pos)
	block := append([]*types.Task(nil), l.tasks[pos:end]...)
	l.tasks = append(l.tasks[:pos], l.tasks[end:]...)
	l.reindex()
	return block
}

func (l *List) insertAt(at int, block []*types.Task) {
	tail := append([]*types.Task(nil), l.tasks[at:]...)
	l.tasks = append(append(l.tasks[:at], block...), tail...)
	l.reindex()
}

func (l *List) setParent(t *types.Task, parent *int64) {
	if sameParent(t.ParentID, parent) {
		return
	}
	t.ParentID = cloneID(parent)
	l.dirty[t.ID] = true
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneID(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
