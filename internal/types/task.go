package types

import (
	"fmt"
	"time"
)

// TaskKind distinguishes work items from containers and date markers
type TaskKind string

const (
	// KindTask is a unit of work assigned to at most one user
	KindTask TaskKind = "task"
	// KindStory owns child tasks; its dates and work are aggregated
	KindStory TaskKind = "story"
	// KindMilestone is a zero-duration date marker
	KindMilestone TaskKind = "milestone"
)

// IsValid checks if the task kind value is valid
func (k TaskKind) IsValid() bool {
	switch k {
	case KindTask, KindStory, KindMilestone:
		return true
	}
	return false
}

// TaskStatus represents the progress state of a task
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// IsValid checks if the task status value is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

// ValidTransitions defines the task state machine.
//
//	todo ⇄ in_progress → done
//	 ↑ └──────────────────┘ │
//	 └──────── reopen ──────┘
func (s TaskStatus) ValidTransitions() []TaskStatus {
	switch s {
	case TaskTodo:
		return []TaskStatus{TaskInProgress, TaskDone}
	case TaskInProgress:
		return []TaskStatus{TaskTodo, TaskDone}
	case TaskDone:
		return []TaskStatus{TaskTodo}
	default:
		return []TaskStatus{}
	}
}

// CanTransitionTo checks if a transition from this status to the target is valid.
// Staying in the same status is always allowed.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	if s == target {
		return true
	}
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// Task is a node of a sprint's task tree. Work amounts are minutes.
// Start, Finish and Progress are derived by recalculation.
type Task struct {
	ID               int64       `json:"id"`
	SprintID         int64       `json:"sprint_id"`
	ParentID         *int64      `json:"parent_id,omitempty"`
	OrderID          int         `json:"order_id"`
	Name             string      `json:"name"`
	Kind             TaskKind    `json:"kind"`
	Status           TaskStatus  `json:"status"`
	ResourceID       *int64      `json:"resource_id,omitempty"`
	Start            *time.Time  `json:"start,omitempty"`
	Finish           *time.Time  `json:"finish,omitempty"`
	FixedStart       *time.Time  `json:"fixed_start,omitempty"`
	OriginalEstimate int         `json:"original_estimate"`
	MinEstimate      int         `json:"min_estimate,omitempty"`
	MaxEstimate      int         `json:"max_estimate,omitempty"`
	Remaining        int         `json:"remaining"`
	TimeSpent        int         `json:"time_spent"`
	Progress         float64     `json:"progress"`
	Impediment       bool        `json:"impediment,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	Predecessors     []*Relation `json:"predecessors,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Validate checks if the task has valid field values
func (t *Task) Validate() error {
	if err := validateName("task", t.Name, 200); err != nil {
		return err
	}
	if !t.Kind.IsValid() {
		return fmt.Errorf("invalid task kind: %s", t.Kind)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid task status: %s", t.Status)
	}
	if t.OriginalEstimate < 0 || t.MinEstimate < 0 || t.MaxEstimate < 0 || t.Remaining < 0 || t.TimeSpent < 0 {
		return fmt.Errorf("task work amounts cannot be negative")
	}
	if t.MinEstimate > 0 && t.MinEstimate > t.OriginalEstimate {
		return fmt.Errorf("min_estimate (%d) cannot exceed original_estimate (%d)", t.MinEstimate, t.OriginalEstimate)
	}
	if t.MaxEstimate > 0 && t.MaxEstimate < t.OriginalEstimate {
		return fmt.Errorf("max_estimate (%d) cannot be below original_estimate (%d)", t.MaxEstimate, t.OriginalEstimate)
	}
	switch t.Kind {
	case KindMilestone:
		if t.ResourceID != nil {
			return fmt.Errorf("milestone cannot have a resource")
		}
		if t.OriginalEstimate != 0 || t.Remaining != 0 || t.TimeSpent != 0 {
			return fmt.Errorf("milestone cannot carry work")
		}
	case KindStory:
		if t.ResourceID != nil {
			return fmt.Errorf("story cannot have a resource")
		}
		if t.FixedStart != nil {
			return fmt.Errorf("only milestones can have a fixed start")
		}
	default:
		if t.FixedStart != nil {
			return fmt.Errorf("only milestones can have a fixed start")
		}
	}
	return nil
}

// IsStory reports whether the task is a container
func (t *Task) IsStory() bool { return t.Kind == KindStory }

// IsMilestone reports whether the task is a date marker
func (t *Task) IsMilestone() bool { return t.Kind == KindMilestone }

// Work returns the planned work in minutes: time already spent plus what is
// left when either is known, the original estimate otherwise.
func (t *Task) Work() int {
	if t.TimeSpent > 0 || t.Remaining > 0 {
		return t.TimeSpent + t.Remaining
	}
	return t.OriginalEstimate
}

// HasPredecessor reports whether a relation from predecessorID exists
func (t *Task) HasPredecessor(predecessorID int64) bool {
	return t.FindPredecessor(predecessorID) != nil
}

// FindPredecessor returns the relation from predecessorID, or nil
func (t *Task) FindPredecessor(predecessorID int64) *Relation {
	for _, r := range t.Predecessors {
		if r.PredecessorID == predecessorID {
			return r
		}
	}
	return nil
}

// Clone returns a deep copy of the task including its relations
func (t *Task) Clone() *Task {
	c := *t
	c.ParentID = cloneInt64(t.ParentID)
	c.ResourceID = cloneInt64(t.ResourceID)
	c.Start = cloneTime(t.Start)
	c.Finish = cloneTime(t.Finish)
	c.FixedStart = cloneTime(t.FixedStart)
	if t.Predecessors != nil {
		c.Predecessors = make([]*Relation, len(t.Predecessors))
		for i, r := range t.Predecessors {
			rc := *r
			c.Predecessors[i] = &rc
		}
	}
	return &c
}

// Relation is a finish-to-start dependency: the successor cannot start
// before the predecessor finishes.
type Relation struct {
	ID            int64 `json:"id"`
	SuccessorID   int64 `json:"successor_id"`
	PredecessorID int64 `json:"predecessor_id"`
	Visible       bool  `json:"visible"`
}

// Worklog records time a user spent on a task
type Worklog struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    int64     `json:"user_id"`
	Start     time.Time `json:"start"`
	TimeSpent int       `json:"time_spent"` // minutes
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the worklog has valid field values
func (w *Worklog) Validate() error {
	if w.TaskID <= 0 {
		return fmt.Errorf("worklog task_id is required")
	}
	if w.UserID <= 0 {
		return fmt.Errorf("worklog user_id is required")
	}
	if w.TimeSpent <= 0 {
		return fmt.Errorf("worklog time_spent must be positive (got %d)", w.TimeSpent)
	}
	return nil
}

// TaskFilter narrows task queries across sprints
type TaskFilter struct {
	SprintID   *int64
	ResourceID *int64
	Status     *TaskStatus
	Query      string
	Limit      int
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 { return &v }

// Time returns a pointer to v
func Time(v time.Time) *time.Time { return &v }

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
