package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

var (
	// ErrCycle is returned when the task graph cannot be ordered
	ErrCycle = errors.New("task graph contains a cycle")
	// ErrNoSprintStart is returned when the sprint has no start date
	ErrNoSprintStart = errors.New("sprint has no start date")
)

// Resource is a user together with the days they are away
type Resource struct {
	User    *types.User
	OffDays []*types.OffDay
}

// Availability returns the days the user works on sprint tasks: not off,
// and inside their working period. Dates are compared in loc.
func (r *Resource) Availability(loc *time.Location) Availability {
	if r == nil || r.User == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	first, last := 0, 0
	if r.User.FirstWorkingDay != nil {
		first = types.DayKey(r.User.FirstWorkingDay.In(loc))
	}
	if r.User.LastWorkingDay != nil {
		last = types.DayKey(r.User.LastWorkingDay.In(loc))
	}
	return func(day time.Time) bool {
		day = day.In(loc)
		key := types.DayKey(day)
		if first != 0 && key < first {
			return false
		}
		if last != 0 && key > last {
			return false
		}
		for _, o := range r.OffDays {
			if o.Covers(day) {
				return false
			}
		}
		return true
	}
}

func (r *Resource) factor() float64 {
	if r == nil || r.User == nil {
		return 1
	}
	return r.User.Availability
}

// Result lists what a recalculation changed
type Result struct {
	// Changed holds the IDs of tasks whose schedule or aggregates moved
	Changed []int64
	// SprintChanged is set when the sprint's end or totals moved
	SprintChanged bool
	// Warnings describe tasks scheduled without their user's constraints
	Warnings []string
}

// Recalculate schedules every task of the sprint and refreshes the derived
// fields of the tasks and the sprint. Changed tasks are marked dirty in the
// list.
//
// Events are visited in topological order, lowest list position first. A
// plain task starts at the latest of the sprint start, its incoming events
// and the time its user becomes free, so a user works on one task at a time
// in list order. Milestones take the latest of their incoming events and
// their fixed start. Stories span their children and sum their work.
func Recalculate(sprint *types.Sprint, list *tasklist.List, resources map[int64]*Resource, cal *Calendar) (*Result, error) {
	if sprint.Start == nil {
		return nil, fmt.Errorf("sprint %d: %w", sprint.ID, ErrNoSprintStart)
	}
	if cal == nil {
		cal = DefaultCalendar(time.UTC)
	}

	g := list.Graph()
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCycle, err)
	}
	tasks := list.Tasks()
	pos := make(map[int64]int, len(tasks))
	for i, t := range tasks {
		pos[t.ID] = i
	}

	res := &Result{}
	origin := sprint.Start.In(cal.Location)
	times := make([]time.Time, g.Len())
	finishes := make([]time.Time, len(tasks))
	free := make(map[int64]time.Time)

	for _, n := range order {
		earliest := origin
		for _, in := range g.Incoming(n) {
			if times[in].After(earliest) {
				earliest = times[in]
			}
		}
		t := g.Task(n)
		i := pos[t.ID]

		if g.Kind(n) == tasklist.FinishEvent {
			if t.Kind == types.KindTask && finishes[i].After(earliest) {
				earliest = finishes[i]
			}
			times[n] = earliest
			continue
		}

		switch t.Kind {
		case types.KindMilestone:
			if t.FixedStart != nil && t.FixedStart.After(earliest) {
				earliest = t.FixedStart.In(cal.Location)
			}
			times[n] = earliest
		case types.KindStory:
			times[n] = earliest
		default:
			start, finish, warn, err := scheduleLeaf(t, earliest, free, resources, cal)
			if err != nil {
				return nil, err
			}
			if warn != "" {
				res.Warnings = append(res.Warnings, warn)
			}
			times[n] = start
			finishes[i] = finish
		}
	}

	before := make([]types.Task, len(tasks))
	for i, t := range tasks {
		before[i] = *t
	}

	// children follow their story, so a reverse walk sees them first
	for i := len(tasks) - 1; i >= 0; i-- {
		t := tasks[i]
		start, finish := times[g.StartOf(i)], times[g.FinishOf(i)]
		if t.IsStory() {
			aggregate(t, list.Children(t.ID), start)
			continue
		}
		t.Start = types.Time(start)
		t.Finish = types.Time(finish)
		t.Progress = progress(t)
	}

	for i, t := range tasks {
		if taskChanged(&before[i], t) {
			res.Changed = append(res.Changed, t.ID)
		}
	}
	list.MarkDirty(res.Changed...)

	res.SprintChanged = summarize(sprint, tasks, origin)
	return res, nil
}

func scheduleLeaf(t *types.Task, earliest time.Time, free map[int64]time.Time, resources map[int64]*Resource, cal *Calendar) (time.Time, time.Time, string, error) {
	var r *Resource
	if t.ResourceID != nil {
		r = resources[*t.ResourceID]
		if busy, ok := free[*t.ResourceID]; ok && busy.After(earliest) {
			earliest = busy
		}
	}

	var warn string
	avail := r.Availability(cal.Location)
	start, err := cal.NextWorkingTime(earliest, avail)
	if errors.Is(err, ErrNoWorkingTime) && avail != nil {
		warn = fmt.Sprintf("task %d: assigned user has no working time, scheduled on the plain calendar", t.ID)
		avail = nil
		start, err = cal.NextWorkingTime(earliest, nil)
	}
	if err != nil {
		return time.Time{}, time.Time{}, "", fmt.Errorf("task %d: %w", t.ID, err)
	}
	finish, err := cal.Add(start, t.Work(), r.factor(), avail)
	if err != nil {
		return time.Time{}, time.Time{}, "", fmt.Errorf("task %d: %w", t.ID, err)
	}

	if t.ResourceID != nil {
		free[*t.ResourceID] = finish
	}
	return start, finish, warn, nil
}

// aggregate derives a story from its direct children, which are already final
func aggregate(story *types.Task, children []*types.Task, eventStart time.Time) {
	if len(children) == 0 {
		story.Start = types.Time(eventStart)
		story.Finish = types.Time(eventStart)
		story.Progress = progress(story)
		return
	}

	var start, finish time.Time
	original, remaining, spent := 0, 0, 0
	done, started := 0, 0
	for i, c := range children {
		if i == 0 || c.Start.Before(start) {
			start = *c.Start
		}
		if i == 0 || c.Finish.After(finish) {
			finish = *c.Finish
		}
		original += c.OriginalEstimate
		remaining += c.Remaining
		spent += c.TimeSpent
		switch c.Status {
		case types.TaskDone:
			done++
		case types.TaskInProgress:
			started++
		}
	}

	story.Start = types.Time(start)
	story.Finish = types.Time(finish)
	story.OriginalEstimate = original
	story.Remaining = remaining
	story.TimeSpent = spent
	switch {
	case done == len(children):
		story.Status = types.TaskDone
	case done > 0 || started > 0:
		story.Status = types.TaskInProgress
	default:
		story.Status = types.TaskTodo
	}
	story.Progress = progress(story)
}

func progress(t *types.Task) float64 {
	if total := t.TimeSpent + t.Remaining; total > 0 {
		return float64(t.TimeSpent) / float64(total)
	}
	if t.Status == types.TaskDone {
		return 1
	}
	return 0
}

// summarize refreshes the sprint end and totals over plain tasks
func summarize(s *types.Sprint, tasks []*types.Task, origin time.Time) bool {
	end := origin
	original, worked, remaining := 0, 0, 0
	for _, t := range tasks {
		if t.Finish != nil && t.Finish.After(end) {
			end = *t.Finish
		}
		if t.IsStory() {
			continue
		}
		original += t.OriginalEstimate
		worked += t.TimeSpent
		remaining += t.Remaining
	}

	changed := s.End == nil || !s.End.Equal(end) ||
		s.OriginalEstimation != original || s.Worked != worked || s.Remaining != remaining
	s.End = types.Time(end)
	s.OriginalEstimation = original
	s.Worked = worked
	s.Remaining = remaining
	return changed
}

func taskChanged(a, b *types.Task) bool {
	return !sameTime(a.Start, b.Start) || !sameTime(a.Finish, b.Finish) ||
		a.Progress != b.Progress || a.Status != b.Status ||
		a.OriginalEstimate != b.OriginalEstimate || a.Remaining != b.Remaining || a.TimeSpent != b.TimeSpent
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
