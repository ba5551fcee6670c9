// Package tasklist keeps the ordered task tree of one sprint together with its
// predecessor/successor graph, and applies the edits a scheduling grid
// performs: drag-and-drop reordering, indent/outdent re-parenting,
// dependency toggling, paste and removal.
//
// Invariants held after every successful operation:
//   - every parent exists in the list and is a story
//   - the list is a depth-first pre-order: a task's descendants directly follow it
//   - no task depends on itself, an ancestor or a descendant
//   - the dependency graph expanded through the hierarchy is acyclic
//   - OrderID equals the list position
//
// A failed operation leaves the list unchanged.
package tasklist

import (
	"errors"
	"fmt"
	"sort"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

var (
	// ErrNotFound is returned when a task or dependency is not in the list
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTask is returned when inserting a task whose ID is already present
	ErrDuplicateTask = errors.New("duplicate task")
	// ErrInvalidMove is returned for moves that have no meaning (onto itself, no sibling to indent under, ...)
	ErrInvalidMove = errors.New("invalid move")
	// ErrNotAStory is returned when a task would become the child of a non-story
	ErrNotAStory = errors.New("parent must be a story")
	// ErrMilestoneChildren is returned when a task would become the child of a milestone.
	// It is always reported together with ErrNotAStory.
	ErrMilestoneChildren = errors.New("milestone cannot have children")
	// ErrCircularHierarchy is returned when a task would become its own ancestor
	ErrCircularHierarchy = errors.New("task cannot be moved into its own subtree")
	// ErrSelfDependency is returned when a task would depend on itself
	ErrSelfDependency = errors.New("task cannot depend on itself")
	// ErrHierarchyDependency is returned for dependencies between a task and its ancestor or descendant
	ErrHierarchyDependency = errors.New("task cannot depend on its ancestor or descendant")
	// ErrDependencyCycle is returned when the dependency graph would become cyclic
	ErrDependencyCycle = errors.New("dependency cycle")
)

// List is the ordered task tree of one sprint. It is not safe for
// concurrent use.
type List struct {
	tasks []*types.Task
	index map[int64]int

	dirty   map[int64]bool
	added   []*types.Relation
	removed []*types.Relation
	deleted []int64
}

// New builds a list from the tasks of one sprint. Tasks are arranged in
// depth-first pre-order following their parent links, siblings ordered by
// OrderID; tasks whose position changes are marked as updated.
func New(tasks []*types.Task) (*List, error) {
	l := &List{dirty: make(map[int64]bool)}

	byID := make(map[int64]*types.Task, len(tasks))
	for _, t := range tasks {
		if t.ID == 0 {
			return nil, fmt.Errorf("task %q has no ID", t.Name)
		}
		if _, exists := byID[t.ID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTask, t.ID)
		}
		byID[t.ID] = t
	}

	sorted := make([]*types.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderID < sorted[j].OrderID })

	children := make(map[int64][]*types.Task)
	var roots []*types.Task
	for _, t := range sorted {
		if t.ParentID == nil {
			roots = append(roots, t)
			continue
		}
		if _, ok := byID[*t.ParentID]; !ok {
			return nil, fmt.Errorf("task %d references missing parent %d: %w", t.ID, *t.ParentID, ErrNotFound)
		}
		children[*t.ParentID] = append(children[*t.ParentID], t)
	}

	var walk func(t *types.Task)
	walk = func(t *types.Task) {
		l.tasks = append(l.tasks, t)
		for _, c := range children[t.ID] {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	if len(l.tasks) != len(tasks) {
		return nil, fmt.Errorf("%d tasks are unreachable from the roots: %w", len(tasks)-len(l.tasks), ErrCircularHierarchy)
	}

	l.reindex()
	if err := l.checkGraph(); err != nil {
		return nil, err
	}
	l.renumber()
	return l, nil
}

// Len returns the number of tasks
func (l *List) Len() int { return len(l.tasks) }

// Tasks returns the tasks in list order
func (l *List) Tasks() []*types.Task {
	out := make([]*types.Task, len(l.tasks))
	copy(out, l.tasks)
	return out
}

// Get returns the task with the given ID
func (l *List) Get(id int64) (*types.Task, bool) {
	pos, ok := l.index[id]
	if !ok {
		return nil, false
	}
	return l.tasks[pos], true
}

func (l *List) mustGet(id int64) (*types.Task, error) {
	t, ok := l.Get(id)
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return t, nil
}

// Position returns the list index of the task, or -1
func (l *List) Position(id int64) int {
	if pos, ok := l.index[id]; ok {
		return pos
	}
	return -1
}

// Parent returns the parent of the task, or nil for root tasks
func (l *List) Parent(t *types.Task) *types.Task {
	if t.ParentID == nil {
		return nil
	}
	p, _ := l.Get(*t.ParentID)
	return p
}

// Children returns the direct children of the task in list order.
// An ID of 0 returns the root tasks.
func (l *List) Children(id int64) []*types.Task {
	var out []*types.Task
	for _, t := range l.tasks {
		if (id == 0 && t.ParentID == nil) || (t.ParentID != nil && *t.ParentID == id) {
			out = append(out, t)
		}
	}
	return out
}

// Subtree returns the task followed by all of its descendants
func (l *List) Subtree(id int64) []*types.Task {
	pos, ok := l.index[id]
	if !ok {
		return nil
	}
	end := l.subtreeEnd(pos)
	out := make([]*types.Task, end-pos)
	copy(out, l.tasks[pos:end])
	return out
}

// Depth returns the number of ancestors of the task
func (l *List) Depth(id int64) int {
	depth := 0
	t, ok := l.Get(id)
	for ok && t.ParentID != nil {
		depth++
		t, ok = l.Get(*t.ParentID)
	}
	return depth
}

// IsAncestorOf reports whether ancestorID is a (transitive) parent of id
func (l *List) IsAncestorOf(ancestorID, id int64) bool {
	t, ok := l.Get(id)
	seen := 0
	for ok && t.ParentID != nil {
		if *t.ParentID == ancestorID {
			return true
		}
		seen++
		if seen > len(l.tasks) {
			return false
		}
		t, ok = l.Get(*t.ParentID)
	}
	return false
}

// IsDescendantOf reports whether id lies in the subtree of ancestorID
func (l *List) IsDescendantOf(id, ancestorID int64) bool {
	return l.IsAncestorOf(ancestorID, id)
}

// subtreeEnd returns the index just past the last descendant of tasks[pos]
func (l *List) subtreeEnd(pos int) int {
	root := l.tasks[pos].ID
	end := pos + 1
	for end < len(l.tasks) && l.IsAncestorOf(root, l.tasks[end].ID) {
		end++
	}
	return end
}

func (l *List) reindex() {
	l.index = make(map[int64]int, len(l.tasks))
	for i, t := range l.tasks {
		l.index[t.ID] = i
	}
}

func (l *List) renumber() {
	for i, t := range l.tasks {
		if t.OrderID != i {
			t.OrderID = i
			l.dirty[t.ID] = true
		}
	}
}

// Validate re-checks every invariant of the list
func (l *List) Validate() error {
	if err := l.checkContiguity(); err != nil {
		return err
	}
	if err := l.checkGraph(); err != nil {
		return err
	}
	for i, t := range l.tasks {
		if t.OrderID != i {
			return fmt.Errorf("task %d has order %d at position %d", t.ID, t.OrderID, i)
		}
	}
	return nil
}

// checkContiguity verifies the list is a depth-first pre-order
func (l *List) checkContiguity() error {
	var stack []int64
	for _, t := range l.tasks {
		if t.ParentID == nil {
			stack = stack[:0]
		} else {
			for len(stack) > 0 && stack[len(stack)-1] != *t.ParentID {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return fmt.Errorf("%w: task %d is separated from its parent %d", ErrInvalidMove, t.ID, *t.ParentID)
			}
		}
		stack = append(stack, t.ID)
	}
	return nil
}

// checkGraph verifies parents, relations and acyclicity
func (l *List) checkGraph() error {
	for _, t := range l.tasks {
		if t.ParentID != nil {
			p, ok := l.Get(*t.ParentID)
			if !ok {
				return fmt.Errorf("task %d references missing parent %d: %w", t.ID, *t.ParentID, ErrNotFound)
			}
			if !p.IsStory() {
				return notAStory(t.ID, p)
			}
		}
		for _, r := range t.Predecessors {
			if r.PredecessorID == t.ID {
				return fmt.Errorf("task %d: %w", t.ID, ErrSelfDependency)
			}
			if _, ok := l.Get(r.PredecessorID); !ok {
				return fmt.Errorf("task %d depends on missing task %d: %w", t.ID, r.PredecessorID, ErrNotFound)
			}
			if l.IsAncestorOf(r.PredecessorID, t.ID) || l.IsAncestorOf(t.ID, r.PredecessorID) {
				return fmt.Errorf("task %d and %d: %w", r.PredecessorID, t.ID, ErrHierarchyDependency)
			}
		}
	}
	g, err := BuildGraph(l.tasks)
	if err != nil {
		return err
	}
	if _, err := g.TopologicalOrder(); err != nil {
		return err
	}
	return nil
}

type snapshot struct {
	order   []*types.Task
	values  map[*types.Task]types.Task
	dirty   map[int64]bool
	added   []*types.Relation
	removed []*types.Relation
	deleted []int64
}

func (l *List) snapshot() *snapshot {
	s := &snapshot{
		order:   append([]*types.Task(nil), l.tasks...),
		values:  make(map[*types.Task]types.Task, len(l.tasks)),
		dirty:   make(map[int64]bool, len(l.dirty)),
		added:   append([]*types.Relation(nil), l.added...),
		removed: append([]*types.Relation(nil), l.removed...),
		deleted: append([]int64(nil), l.deleted...),
	}
	for _, t := range l.tasks {
		v := *t
		v.Predecessors = append([]*types.Relation(nil), t.Predecessors...)
		s.values[t] = v
	}
	for id := range l.dirty {
		s.dirty[id] = true
	}
	return s
}

func (l *List) restore(s *snapshot) {
	l.tasks = s.order
	for t, v := range s.values {
		*t = v
	}
	l.dirty = s.dirty
	l.added = s.added
	l.removed = s.removed
	l.deleted = s.deleted
	l.reindex()
}

// apply runs an edit and keeps it only if every invariant still holds
func (l *List) apply(edit func() error) error {
	snap := l.snapshot()
	if err := edit(); err != nil {
		l.restore(snap)
		return err
	}
	l.reindex()
	if err := l.checkContiguity(); err != nil {
		l.restore(snap)
		return err
	}
	if err := l.checkGraph(); err != nil {
		l.restore(snap)
		return err
	}
	l.renumber()
	return nil
}

func notAStory(childID int64, parent *types.Task) error {
	if parent.IsMilestone() {
		return fmt.Errorf("task %d under milestone %d: %w: %w", childID, parent.ID, ErrNotAStory, ErrMilestoneChildren)
	}
	return fmt.Errorf("task %d under %s %d: %w", childID, parent.Kind, parent.ID, ErrNotAStory)
}
