// Package planner is the application service behind every surface: it
// checks product access, serializes edits per sprint, applies task list
// operations, reschedules the sprint and persists the result atomically.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abdallabushnaq/kassandra/internal/metrics"
	"github.com/abdallabushnaq/kassandra/internal/schedule"
	"github.com/abdallabushnaq/kassandra/internal/storage"
	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

var (
	// ErrAccessDenied is returned when the actor may not see or edit a product
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound is returned for unknown records
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for input that breaks a rule of the plan
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSprintClosed is returned for edits to a closed sprint
	ErrSprintClosed = errors.New("sprint is closed")
	// ErrConflict is returned for duplicate names and similar clashes
	ErrConflict = errors.New("conflict")
)

// Planner coordinates storage, the task list model and the scheduler
type Planner struct {
	store storage.Storage
	cal   *schedule.Calendar
	log   *zap.SugaredLogger
	now   func() time.Time

	mu    sync.Mutex
	locks map[int64]*sprintLock
}

type sprintLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a planner. A nil calendar means the default UTC calendar.
func New(store storage.Storage, cal *schedule.Calendar, log *zap.SugaredLogger) *Planner {
	if cal == nil {
		cal = schedule.DefaultCalendar(time.UTC)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Planner{
		store: store,
		cal:   cal,
		log:   log,
		now:   time.Now,
		locks: make(map[int64]*sprintLock),
	}
}

// Calendar returns the business calendar used for scheduling
func (p *Planner) Calendar() *schedule.Calendar { return p.cal }

// lockSprint serializes edits of one sprint; other sprints proceed in parallel
func (p *Planner) lockSprint(id int64) func() {
	p.mu.Lock()
	l := p.locks[id]
	if l == nil {
		l = &sprintLock{}
		p.locks[id] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
	}
}

// ResolveUser returns the user with the given name
func (p *Planner) ResolveUser(ctx context.Context, name string) (*types.User, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: no user given", ErrAccessDenied)
	}
	u, err := p.store.GetUserByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: unknown user %q", ErrAccessDenied, name)
	}
	return u, nil
}

// canAccess reports whether actor may see and edit the product: admins
// always, others when listed directly or through a group.
func (p *Planner) canAccess(ctx context.Context, actor *types.User, productID int64) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if actor.Admin {
		return true, nil
	}
	return p.store.HasAccess(ctx, productID, actor.ID)
}

func (p *Planner) requireProduct(ctx context.Context, actor *types.User, productID int64) (*types.Product, error) {
	prod, err := p.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if prod == nil {
		return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	ok, err := p.canAccess(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: product %d", ErrAccessDenied, productID)
	}
	return prod, nil
}

func (p *Planner) requireSprintAccess(ctx context.Context, actor *types.User, sprintID int64) error {
	productID, err := p.store.ProductOfSprint(ctx, sprintID)
	if err != nil {
		return err
	}
	if productID == 0 {
		return fmt.Errorf("sprint %d: %w", sprintID, ErrNotFound)
	}
	_, err = p.requireProduct(ctx, actor, productID)
	return err
}

func requireAdmin(actor *types.User) error {
	if actor == nil || !actor.Admin {
		return fmt.Errorf("%w: administrator required", ErrAccessDenied)
	}
	return nil
}

// Plan is a sprint with its tasks in list order and the users they reference
type Plan struct {
	Sprint   *types.Sprint         `json:"sprint"`
	Tasks    []*types.Task         `json:"tasks"`
	Users    map[int64]*types.User `json:"users"`
	OffDays  []*types.OffDay       `json:"off_days,omitempty"`
	Warnings []string              `json:"warnings,omitempty"`
}

// state is the in-memory working copy of a sprint during one operation
type state struct {
	sprint    *types.Sprint
	list      *tasklist.List
	users     map[int64]*types.User
	offDays   []*types.OffDay
	resources map[int64]*schedule.Resource

	worklogs []*types.Worklog
	events   []*types.Event
	tempID   int64
}

func (st *state) nextTempID() int64 {
	st.tempID--
	return st.tempID
}

// event queues an audit event written with the plan
func (st *state) event(entity types.EntityType, id int64, typ types.EventType, oldValue, newValue any, comment string) {
	e := &types.Event{EntityType: entity, EntityID: id, EventType: typ}
	if oldValue != nil {
		e.OldValue = jsonString(oldValue)
	}
	if newValue != nil {
		e.NewValue = jsonString(newValue)
	}
	if comment != "" {
		e.Comment = &comment
	}
	st.events = append(st.events, e)
}

func jsonString(v any) *string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// load fetches a sprint with its tasks, users and off days concurrently
func (p *Planner) load(ctx context.Context, sprintID int64) (*state, error) {
	var (
		sprint  *types.Sprint
		tasks   []*types.Task
		users   []*types.User
		offDays []*types.OffDay
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sprint, err = p.store.GetSprint(gctx, sprintID)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = p.store.ListTasks(gctx, sprintID)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = p.store.ListUsers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		offDays, err = p.store.ListOffDays(gctx, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load sprint %d: %w", sprintID, err)
	}
	if sprint == nil {
		return nil, fmt.Errorf("sprint %d: %w", sprintID, ErrNotFound)
	}

	list, err := tasklist.New(tasks)
	if err != nil {
		return nil, fmt.Errorf("sprint %d has an inconsistent plan: %w", sprintID, err)
	}

	st := &state{
		sprint:    sprint,
		list:      list,
		users:     make(map[int64]*types.User, len(users)),
		offDays:   offDays,
		resources: make(map[int64]*schedule.Resource, len(users)),
	}
	for _, u := range users {
		st.users[u.ID] = u
		st.resources[u.ID] = &schedule.Resource{User: u}
	}
	for _, o := range offDays {
		if r := st.resources[o.UserID]; r != nil {
			r.OffDays = append(r.OffDays, o)
		}
	}
	return st, nil
}

// LoadSprint returns the sprint plan as stored
func (p *Planner) LoadSprint(ctx context.Context, actor *types.User, sprintID int64) (*Plan, error) {
	if err := p.requireSprintAccess(ctx, actor, sprintID); err != nil {
		return nil, err
	}
	st, err := p.load(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	return st.plan(nil), nil
}

func (st *state) plan(warnings []string) *Plan {
	pl := &Plan{
		Sprint:   st.sprint,
		Tasks:    st.list.Tasks(),
		Users:    make(map[int64]*types.User),
		Warnings: warnings,
	}
	for _, t := range pl.Tasks {
		if t.ResourceID == nil {
			continue
		}
		if u := st.users[*t.ResourceID]; u != nil {
			pl.Users[u.ID] = u
		}
	}
	for _, o := range st.offDays {
		if pl.Users[o.UserID] != nil {
			pl.OffDays = append(pl.OffDays, o)
		}
	}
	return pl
}

// editOptions tunes the edit pipeline
type editOptions struct {
	// allowClosed lets the edit run on a closed sprint
	allowClosed bool
}

// edit runs fn on the working copy of a sprint under the sprint lock, then
// reschedules and persists everything fn changed. A failing fn leaves the
// stored plan untouched.
func (p *Planner) edit(ctx context.Context, actor *types.User, sprintID int64, op string, opts editOptions, fn func(st *state) error) (res *Plan, err error) {
	start := p.now()
	defer func() {
		metrics.ObserveOperation(op, start, err)
		if err != nil {
			p.log.Debugw("operation failed", "operation", op, "sprint", sprintID, "error", err)
		}
	}()

	if err := p.requireSprintAccess(ctx, actor, sprintID); err != nil {
		return nil, err
	}

	unlock := p.lockSprint(sprintID)
	defer unlock()

	st, err := p.load(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	if st.sprint.IsClosed() && !opts.allowClosed {
		return nil, fmt.Errorf("sprint %d: %w", sprintID, ErrSprintClosed)
	}

	if err := fn(st); err != nil {
		return nil, translate(err)
	}

	warnings, err := p.reschedule(st)
	if err != nil {
		return nil, translate(err)
	}

	changes := st.list.Changes()
	if _, err := p.store.SaveSprintPlan(ctx, &storage.PlanUpdate{
		Sprint:   st.sprint,
		Changes:  changes,
		Worklogs: st.worklogs,
		Events:   st.events,
	}, actor.Name); err != nil {
		return nil, translate(err)
	}
	st.list.ResetChanges()

	p.log.Infow("sprint updated",
		"operation", op,
		"sprint", sprintID,
		"actor", actor.Name,
		"tasks_written", len(changes.Updated),
		"tasks_deleted", len(changes.Deleted),
		"duration_ms", float64(p.now().Sub(start).Microseconds())/1000.0,
	)
	return st.plan(warnings), nil
}

// reschedule recalculates the sprint. Without a start date nothing can be
// scheduled yet, which is not an error.
func (p *Planner) reschedule(st *state) ([]string, error) {
	if st.sprint.Start == nil {
		return nil, nil
	}
	res, err := schedule.Recalculate(st.sprint, st.list, st.resources, p.cal)
	if err != nil {
		return nil, err
	}
	metrics.RecalculatedTasks.Observe(float64(len(res.Changed)))
	return res.Warnings, nil
}

// translate maps lower-level errors onto the planner's error kinds while
// keeping the original in the chain
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrAccessDenied), errors.Is(err, ErrSprintClosed), errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, tasklist.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, tasklist.ErrDuplicateTask),
		errors.Is(err, tasklist.ErrInvalidMove),
		errors.Is(err, tasklist.ErrNotAStory),
		errors.Is(err, tasklist.ErrCircularHierarchy),
		errors.Is(err, tasklist.ErrSelfDependency),
		errors.Is(err, tasklist.ErrHierarchyDependency),
		errors.Is(err, tasklist.ErrDependencyCycle),
		errors.Is(err, schedule.ErrCycle):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return err
}

// invalid wraps a validation failure
func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
}
