package tasklist

import (
	"fmt"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// AddDependency makes succID wait for predID to finish. Adding a relation
// that already exists returns it unchanged.
func (l *List) AddDependency(predID, succID int64, visible bool) (*types.Relation, error) {
	if predID == succID {
		return nil, fmt.Errorf("task %d: %w", succID, ErrSelfDependency)
	}
	succ, err := l.mustGet(succID)
	if err != nil {
		return nil, err
	}
	if _, err := l.mustGet(predID); err != nil {
		return nil, err
	}
	if r := succ.FindPredecessor(predID); r != nil {
		return r, nil
	}
	if l.IsAncestorOf(predID, succID) || l.IsAncestorOf(succID, predID) {
		return nil, fmt.Errorf("task %d and %d: %w", predID, succID, ErrHierarchyDependency)
	}

	r := &types.Relation{SuccessorID: succID, PredecessorID: predID, Visible: visible}
	err = l.apply(func() error {
		succ.Predecessors = append(succ.Predecessors, r)
		l.recordAdded(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RemoveDependency drops the relation predID -> succID
func (l *List) RemoveDependency(predID, succID int64) error {
	succ, err := l.mustGet(succID)
	if err != nil {
		return err
	}
	if !succ.HasPredecessor(predID) {
		return fmt.Errorf("dependency %d -> %d: %w", predID, succID, ErrNotFound)
	}
	return l.apply(func() error {
		kept := make([]*types.Relation, 0, len(succ.Predecessors))
		for _, r := range succ.Predecessors {
			if r.PredecessorID == predID {
				l.recordRemoved(r)
				continue
			}
			kept = append(kept, r)
		}
		succ.Predecessors = kept
		return nil
	})
}

// ToggleDependency removes the relation predID -> succID if present and adds
// a visible one otherwise. It reports whether the relation exists afterwards.
func (l *List) ToggleDependency(predID, succID int64) (bool, error) {
	succ, err := l.mustGet(succID)
	if err != nil {
		return false, err
	}
	if succ.HasPredecessor(predID) {
		return false, l.RemoveDependency(predID, succID)
	}
	if _, err := l.AddDependency(predID, succID, true); err != nil {
		return false, err
	}
	return true, nil
}

// recordAdded tracks a new relation. Re-adding a relation removed earlier in
// the same change set revives the stored one instead.
func (l *List) recordAdded(r *types.Relation) {
	for i, old := range l.removed {
		if old.PredecessorID == r.PredecessorID && old.SuccessorID == r.SuccessorID {
			r.ID = old.ID
			l.removed = append(l.removed[:i:i], l.removed[i+1:]...)
			if old.Visible != r.Visible {
				l.dirty[r.SuccessorID] = true
			}
			return
		}
	}
	l.added = append(l.added, r)
}

// recordRemoved tracks a dropped relation. Relations never stored are simply
// forgotten.
func (l *List) recordRemoved(r *types.Relation) {
	for i, a := range l.added {
		if a == r {
			l.added = append(l.added[:i:i], l.added[i+1:]...)
			return
		}
	}
	if r.ID != 0 {
		l.removed = append(l.removed, r)
	}
}

// forgetAdded drops pending relations owned by a deleted task
func (l *List) forgetAdded(taskID int64) {
	kept := make([]*types.Relation, 0, len(l.added))
	for _, r := range l.added {
		if r.SuccessorID != taskID {
			kept = append(kept, r)
		}
	}
	l.added = kept
}
