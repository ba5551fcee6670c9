package repl

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/schedule"
	"github.com/abdallabushnaq/kassandra/internal/storage"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

type fakeConversation struct {
	sent   []string
	resets int
	reply  string
	err    error
}

func (f *fakeConversation) Send(_ context.Context, message string) (string, error) {
	f.sent = append(f.sent, message)
	return f.reply, f.err
}

func (f *fakeConversation) Reset() { f.resets++ }

type fixture struct {
	r      *REPL
	out    *bytes.Buffer
	conv   *fakeConversation
	sprint *types.Sprint
	task   *types.Task
}

func setup(t *testing.T) *fixture {
	t.Helper()
	color.NoColor = true
	ctx := context.Background()
	store, err := storage.NewStorage(ctx, &storage.Config{Path: filepath.Join(t.TempDir(), "kassandra.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p := planner.New(store, schedule.DefaultCalendar(time.UTC), nil)
	admin := &types.User{Name: "admin"}
	require.NoError(t, p.CreateUser(ctx, nil, admin))
	prod, err := p.CreateProduct(ctx, admin, "Kassandra")
	require.NoError(t, err)
	v, err := p.CreateVersion(ctx, admin, prod.ID, "1.0.0")
	require.NoError(t, err)
	feat, err := p.CreateFeature(ctx, admin, v.ID, "Planning")
	require.NoError(t, err)
	sp, err := p.CreateSprint(ctx, admin, feat.ID, planner.SprintInput{
		Name:  "Sprint 1",
		Start: types.Time(time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	task, err := p.CreateTask(ctx, admin, sp.ID, planner.TaskInput{
		Name: "API", ResourceID: types.Int64(admin.ID), OriginalEstimate: 600,
	})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	conv := &fakeConversation{reply: "Sure."}
	r, err := New(&Config{Planner: p, Actor: admin, Conversation: conv, Out: out})
	require.NoError(t, err)
	return &fixture{r: r, out: out, conv: conv, sprint: sp, task: task}
}

func TestNewRequiresPlannerAndActor(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)
	_, err = New(&Config{Planner: planner.New(nil, nil, nil)})
	assert.Error(t, err)
}

func TestProductsCommand(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.r.processInput("products"))
	out := f.out.String()
	assert.Contains(t, out, "Kassandra")
	assert.Contains(t, out, "version 1.0.0")
	assert.Contains(t, out, "feature Planning")
}

func TestSprintsCommand(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.r.processInput("sprints"))
	assert.Contains(t, f.out.String(), "Sprint 1")
	assert.Contains(t, f.out.String(), "2025-03-03 08:00")

	assert.Error(t, f.r.processInput("sprints 999"), "unknown feature")
}

func TestSprintCommandPrintsPlan(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.r.processInput("sprint " + itoa(f.sprint.ID)))
	out := f.out.String()
	assert.Contains(t, out, "API")
	assert.Contains(t, out, "admin")
	// 600 minutes on a 450 minute day
	assert.Contains(t, out, "1d 2h 30m")
	assert.Contains(t, out, "2025-03-04 10:30")
}

func TestRecalcAndCheckCommands(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.r.processInput("recalc "+itoa(f.sprint.ID)))
	assert.Contains(t, f.out.String(), "Recalculated 1 tasks")

	f.out.Reset()
	require.NoError(t, f.r.processInput("check "+itoa(f.sprint.ID)))
	assert.NotEmpty(t, f.out.String())
}

func TestCommandArgumentErrors(t *testing.T) {
	f := setup(t)
	assert.Error(t, f.r.processInput("sprint"))
	assert.Error(t, f.r.processInput("sprint abc"))
	assert.Error(t, f.r.processInput("recalc -1"))
	assert.Error(t, f.r.processInput("sprint 999"))
}

func TestNaturalLanguageGoesToAssistant(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.r.processInput("what is left in sprint 1?"))
	require.Len(t, f.conv.sent, 1)
	assert.Equal(t, "what is left in sprint 1?", f.conv.sent[0])
	assert.Contains(t, f.out.String(), "Sure.")

	f.conv.err = errors.New("overloaded")
	assert.ErrorContains(t, f.r.processInput("again"), "overloaded")
}

func TestWithoutAssistant(t *testing.T) {
	f := setup(t)
	f.r.conversation = nil
	require.NoError(t, f.r.processInput("hello"))
	assert.Contains(t, f.out.String(), "needs an API key")
}

func TestClearHelpAndExit(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.r.processInput("clear"))
	assert.Equal(t, 1, f.conv.resets)

	require.NoError(t, f.r.processInput("help"))
	assert.Contains(t, f.out.String(), "recalc <id>")

	assert.ErrorIs(t, f.r.processInput("exit"), errExit)
	assert.ErrorIs(t, f.r.processInput("QUIT"), errExit)
}

func TestFormatWork(t *testing.T) {
	f := setup(t)
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "0m"},
		{45, "45m"},
		{90, "1h 30m"},
		{450, "1d"},
		{960, "2d 1h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatWork(f.r.p.Calendar(), tt.minutes), "%d minutes", tt.minutes)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
