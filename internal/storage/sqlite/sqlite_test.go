package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

const actor = "test-user"

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "kassandra.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedSprint creates product -> version -> feature -> sprint
func seedSprint(t *testing.T, store *SQLiteStorage) (*types.Product, *types.Sprint) {
	t.Helper()
	ctx := context.Background()

	p := &types.Product{Name: "Kassandra"}
	require.NoError(t, store.CreateProduct(ctx, p, actor))
	v := &types.Version{ProductID: p.ID, Name: "1.0.0"}
	require.NoError(t, store.CreateVersion(ctx, v, actor))
	f := &types.Feature{VersionID: v.ID, Name: "Planning"}
	require.NoError(t, store.CreateFeature(ctx, f, actor))
	start := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	sp := &types.Sprint{FeatureID: f.ID, Name: "Sprint 1", Start: &start}
	require.NoError(t, store.CreateSprint(ctx, sp, actor))
	return p, sp
}

func TestNewAppliesSchema(t *testing.T) {
	store := setupTestDB(t)
	v, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	// reopening is a no-op migration
	require.NoError(t, store.Close())
	again, err := New(store.Path())
	require.NoError(t, err)
	defer again.Close()
	v, err = again.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMigrationStatusAndRollback(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	_, sp := seedSprint(t, store)
	path := store.Path()
	require.NoError(t, store.Close())

	status, err := MigrationStatus(ctx, path)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Applied)
	assert.True(t, status[1].Applied)

	v, err := RollbackMigration(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	status, err = MigrationStatus(ctx, path)
	require.NoError(t, err)
	assert.True(t, status[0].Applied)
	assert.False(t, status[1].Applied, "rolled back migration is pending")

	// reopening applies the pending migration and keeps the data
	again, err := New(path)
	require.NoError(t, err)
	defer again.Close()
	v, err = again.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	got, err := again.GetSprint(ctx, sp.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestMigrationStatusOfFreshDatabase(t *testing.T) {
	status, err := MigrationStatus(context.Background(), filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	require.Len(t, status, 2)
	for _, s := range status {
		assert.False(t, s.Applied, "migration %d", s.Version)
	}
}

func TestCatalogCRUD(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	p, sp := seedSprint(t, store)

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Kassandra", got.Name)

	missing, err := store.GetProduct(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	// duplicate names conflict
	err = store.CreateProduct(ctx, &types.Product{Name: "Kassandra"}, actor)
	assert.ErrorIs(t, err, ErrConflict)

	p.Name = "Kassandra Pro"
	require.NoError(t, store.UpdateProduct(ctx, p, actor))
	got, err = store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kassandra Pro", got.Name)

	err = store.UpdateProduct(ctx, &types.Product{ID: 999, Name: "x"}, actor)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"1.10.0", "1.2.0"} {
		require.NoError(t, store.CreateVersion(ctx, &types.Version{ProductID: p.ID, Name: name}, actor))
	}
	versions, err := store.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, []string{"1.0.0", "1.2.0", "1.10.0"}, []string{versions[0].Name, versions[1].Name, versions[2].Name})

	productID, err := store.ProductOfSprint(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, productID)

	// deleting the product cascades to the sprint
	require.NoError(t, store.DeleteProduct(ctx, p.ID, actor))
	gone, err := store.GetSprint(ctx, sp.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.ErrorIs(t, store.DeleteProduct(ctx, p.ID, actor), ErrNotFound)
}

func TestUpdateSprintRecordsStatusChange(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	_, sp := seedSprint(t, store)

	sp.Status = types.SprintStarted
	require.NoError(t, store.UpdateSprint(ctx, sp, actor))

	got, err := store.GetSprint(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SprintStarted, got.Status)
	require.NotNil(t, got.Start)
	assert.True(t, got.Start.Equal(*sp.Start))

	events, err := store.GetEvents(ctx, types.EventFilter{EntityType: types.EntitySprint, EntityID: sp.ID})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventStatusChanged, events[0].EventType)
	assert.Equal(t, types.EventCreated, events[1].EventType)
	assert.Equal(t, actor, events[0].Actor)
}

func TestAccessThroughGroup(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	p, _ := seedSprint(t, store)

	alice := &types.User{Name: "alice"}
	bob := &types.User{Name: "bob", Email: "bob@example.com"}
	require.NoError(t, store.CreateUser(ctx, alice, actor))
	require.NoError(t, store.CreateUser(ctx, bob, actor))
	assert.Equal(t, 1.0, alice.Availability)

	g := &types.UserGroup{Name: "devs", MemberIDs: []int64{bob.ID}}
	require.NoError(t, store.CreateGroup(ctx, g, actor))

	ok, err := store.HasAccess(ctx, p.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.GrantAccess(ctx, &types.ACLEntry{ProductID: p.ID, GroupID: &g.ID}, actor))
	require.NoError(t, store.GrantAccess(ctx, &types.ACLEntry{ProductID: p.ID, GroupID: &g.ID}, actor), "granting twice is a no-op")

	ok, err = store.HasAccess(ctx, p.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.HasAccess(ctx, p.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	acl, err := store.ListACL(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, acl, 1)
	assert.Equal(t, g.ID, *acl[0].GroupID)

	groups, err := store.ListGroupsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []int64{bob.ID}, groups[0].MemberIDs)

	require.NoError(t, store.RevokeAccess(ctx, &types.ACLEntry{ProductID: p.ID, GroupID: &g.ID}, actor))
	assert.ErrorIs(t, store.RevokeAccess(ctx, &types.ACLEntry{ProductID: p.ID, GroupID: &g.ID}, actor), ErrNotFound)
}

func TestOffDays(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	u := &types.User{Name: "carol", Availability: 0.5}
	require.NoError(t, store.CreateUser(ctx, u, actor))

	off := &types.OffDay{
		UserID:   u.ID,
		FirstDay: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		LastDay:  time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Type:     types.OffDayVacation,
	}
	require.NoError(t, store.AddOffDay(ctx, off, actor))

	days, err := store.ListOffDays(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.True(t, days[0].Covers(time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)))

	all, err := store.ListOffDays(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeleteOffDay(ctx, off.ID, actor))
	assert.ErrorIs(t, store.DeleteOffDay(ctx, off.ID, actor), ErrNotFound)
}

func TestSaveSprintPlanAssignsIDs(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	_, sp := seedSprint(t, store)

	u := &types.User{Name: "dave"}
	require.NoError(t, store.CreateUser(ctx, u, actor))

	list, err := tasklist.New(nil)
	require.NoError(t, err)

	story := &types.Task{ID: -1, SprintID: sp.ID, Name: "Story", Kind: types.KindStory, Status: types.TaskTodo}
	first := &types.Task{ID: -2, SprintID: sp.ID, Name: "First", Kind: types.KindTask, Status: types.TaskTodo, ResourceID: &u.ID, OriginalEstimate: 60, Remaining: 60}
	second := &types.Task{ID: -3, SprintID: sp.ID, Name: "Second", Kind: types.KindTask, Status: types.TaskTodo, OriginalEstimate: 30, Remaining: 30}
	require.NoError(t, list.Insert(story, nil, 0))
	require.NoError(t, list.Insert(first, &story.ID, 0))
	require.NoError(t, list.Insert(second, &story.ID, 0))
	_, err = list.AddDependency(first.ID, second.ID, true)
	require.NoError(t, err)

	sp.Remaining = 90
	idMap, err := store.SaveSprintPlan(ctx, &PlanUpdate{
		Sprint:  sp,
		Changes: list.Changes(),
		Events:  []*types.Event{{EntityType: types.EntityTask, EntityID: -2, EventType: types.EventCreated}},
	}, actor)
	require.NoError(t, err)
	require.Len(t, idMap, 3)
	assert.Positive(t, idMap[-1])
	assert.Equal(t, idMap[-2], first.ID)

	tasks, err := store.ListTasks(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "Story", tasks[0].Name)
	require.NotNil(t, tasks[1].ParentID)
	assert.Equal(t, tasks[0].ID, *tasks[1].ParentID)
	require.Len(t, tasks[2].Predecessors, 1)
	assert.Equal(t, tasks[1].ID, tasks[2].Predecessors[0].PredecessorID)
	assert.True(t, tasks[2].Predecessors[0].Visible)
	assert.Equal(t, u.ID, *tasks[1].ResourceID)

	got, err := store.GetSprint(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, got.Remaining)

	events, err := store.GetEvents(ctx, types.EventFilter{EntityType: types.EntityTask, EntityID: first.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, actor, events[0].Actor)
}

func TestSaveSprintPlanRemovesAndDeletes(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	_, sp := seedSprint(t, store)

	list, err := tasklist.New(nil)
	require.NoError(t, err)
	a := &types.Task{ID: -1, SprintID: sp.ID, Name: "A", Kind: types.KindTask, Status: types.TaskTodo}
	b := &types.Task{ID: -2, SprintID: sp.ID, Name: "B", Kind: types.KindTask, Status: types.TaskTodo}
	c := &types.Task{ID: -3, SprintID: sp.ID, Name: "C", Kind: types.KindTask, Status: types.TaskTodo}
	require.NoError(t, list.Insert(a, nil, 0))
	require.NoError(t, list.Insert(b, nil, 0))
	require.NoError(t, list.Insert(c, nil, 0))
	_, err = list.AddDependency(a.ID, b.ID, true)
	require.NoError(t, err)
	_, err = store.SaveSprintPlan(ctx, &PlanUpdate{Changes: list.Changes()}, actor)
	require.NoError(t, err)

	// reload and edit the stored plan
	tasks, err := store.ListTasks(ctx, sp.ID)
	require.NoError(t, err)
	list, err = tasklist.New(tasks)
	require.NoError(t, err)
	_, err = list.ToggleDependency(tasks[0].ID, tasks[1].ID)
	require.NoError(t, err)
	_, err = list.Remove(tasks[2].ID)
	require.NoError(t, err)

	changes := list.Changes()
	require.Len(t, changes.Removed, 1)
	_, err = store.SaveSprintPlan(ctx, &PlanUpdate{Changes: changes}, actor)
	require.NoError(t, err)

	tasks, err = store.ListTasks(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Empty(t, tasks[1].Predecessors)
}

func TestWorklogsAndStatistics(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	_, sp := seedSprint(t, store)

	u := &types.User{Name: "erin"}
	require.NoError(t, store.CreateUser(ctx, u, actor))

	list, err := tasklist.New(nil)
	require.NoError(t, err)
	task := &types.Task{ID: -1, SprintID: sp.ID, Name: "Work", Kind: types.KindTask, Status: types.TaskInProgress,
		ResourceID: &u.ID, OriginalEstimate: 120, TimeSpent: 45, Remaining: 75}
	require.NoError(t, list.Insert(task, nil, 0))

	logStart := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	_, err = store.SaveSprintPlan(ctx, &PlanUpdate{
		Changes:  list.Changes(),
		Worklogs: []*types.Worklog{{TaskID: -1, UserID: u.ID, Start: logStart, TimeSpent: 45, Comment: "kickoff"}},
	}, actor)
	require.NoError(t, err)

	logs, err := store.ListWorklogs(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 45, logs[0].TimeSpent)
	assert.True(t, logs[0].Start.Equal(logStart))

	status := types.TaskInProgress
	found, err := store.SearchTasks(ctx, types.TaskFilter{ResourceID: &u.ID, Status: &status, Query: "wor"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	st, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Products)
	assert.Equal(t, 1, st.Sprints)
	assert.Equal(t, 1, st.Tasks)
	assert.Equal(t, 1, st.InProgressTasks)
	assert.Equal(t, 120, st.OriginalEstimate)
	assert.Equal(t, 45, st.TimeSpent)
	assert.Equal(t, 75, st.Remaining)
	assert.Equal(t, 1, st.Users)
}

func TestConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	v, err := store.GetConfig(ctx, "calendar.holidays")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, store.SetConfig(ctx, "calendar.holidays", "2025-12-25"))
	require.NoError(t, store.SetConfig(ctx, "calendar.holidays", "2025-12-26"))
	v, err = store.GetConfig(ctx, "calendar.holidays")
	require.NoError(t, err)
	assert.Equal(t, "2025-12-26", v)
}

func TestPruneEvents(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	require.NoError(t, store.CreateProduct(ctx, &types.Product{Name: "old"}, actor))

	n, err := store.PruneEvents(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.PruneEvents(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := store.GetEvents(ctx, types.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}
