package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/schedule"
	"github.com/abdallabushnaq/kassandra/internal/storage"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

type step struct {
	message string
	err     error
}

// scriptedClient replays canned API responses and records the requests
type scriptedClient struct {
	mu    sync.Mutex
	steps []step
	calls []anthropic.MessageNewParams
}

func (c *scriptedClient) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := len(c.calls)
	c.calls = append(c.calls, body)
	if i >= len(c.steps) {
		return nil, fmt.Errorf("unexpected call %d", i+1)
	}
	if c.steps[i].err != nil {
		return nil, c.steps[i].err
	}
	var m anthropic.Message
	if err := json.Unmarshal([]byte(c.steps[i].message), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func textReply(text string) string {
	return fmt.Sprintf(`{"id":"msg_t","type":"message","role":"assistant","model":"test",
		"content":[{"type":"text","text":%q}],"stop_reason":"end_turn",
		"usage":{"input_tokens":12,"output_tokens":3}}`, text)
}

func toolCall(id, name, input string) string {
	return fmt.Sprintf(`{"id":"msg_%s","type":"message","role":"assistant","model":"test",
		"content":[{"type":"text","text":"Let me check."},{"type":"tool_use","id":%q,"name":%q,"input":%s}],
		"stop_reason":"tool_use","usage":{"input_tokens":20,"output_tokens":8}}`, id, id, name, input)
}

type fixture struct {
	p      *planner.Planner
	admin  *types.User
	sprint *types.Sprint
}

func setup(t *testing.T) *fixture {
	t.Helper()
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
	return &fixture{p: p, admin: admin, sprint: sp}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = fastRetry()
	cfg.RequestsPerMinute = 0
	return cfg
}

func TestSendPlainAnswer(t *testing.T) {
	f := setup(t)
	client := &scriptedClient{steps: []step{{message: textReply("Hello!")}}}
	a := New(client, f.p, f.admin, testConfig(), nil)

	answer, err := a.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", answer)

	require.Len(t, client.calls, 1)
	call := client.calls[0]
	assert.Len(t, call.Messages, 1)
	require.Len(t, call.System, 1)
	assert.Contains(t, call.System[0].Text, "admin")
	assert.Len(t, call.Tools, 17)
}

func TestSendRunsTools(t *testing.T) {
	f := setup(t)
	input := fmt.Sprintf(`{"sprint_id":%d,"name":"API","resource_id":%d,"original_estimate":450}`, f.sprint.ID, f.admin.ID)
	client := &scriptedClient{steps: []step{
		{message: toolCall("toolu_1", "create_task", input)},
		{message: textReply("Created the API task.")},
	}}
	a := New(client, f.p, f.admin, testConfig(), nil)

	answer, err := a.Send(context.Background(), "add an API task for me, one day")
	require.NoError(t, err)
	assert.Equal(t, "Created the API task.", answer)

	plan, err := f.p.LoadSprint(context.Background(), f.admin, f.sprint.ID)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	task := plan.Tasks[0]
	assert.Equal(t, "API", task.Name)
	require.NotNil(t, task.Finish)
	assert.True(t, task.Finish.Equal(time.Date(2025, 3, 3, 15, 30, 0, 0, time.UTC)))

	require.Len(t, client.calls, 2)
	second := client.calls[1].Messages
	require.Len(t, second, 3, "user, assistant tool call, tool result")
	last := second[2]
	require.Len(t, last.Content, 1)
	result := last.Content[0].OfToolResult
	require.NotNil(t, result)
	assert.Equal(t, "toolu_1", result.ToolUseID)
	assert.False(t, result.IsError.Value)
}

func TestToolErrorsAreReportedToTheModel(t *testing.T) {
	f := setup(t)
	client := &scriptedClient{steps: []step{
		{message: toolCall("toolu_1", "get_task", `{"task_id":999}`)},
		{message: toolCall("toolu_2", "launch_rocket", `{}`)},
		{message: textReply("That task does not exist.")},
	}}
	a := New(client, f.p, f.admin, testConfig(), nil)

	answer, err := a.Send(context.Background(), "show task 999")
	require.NoError(t, err)
	assert.Equal(t, "That task does not exist.", answer)

	require.Len(t, client.calls, 3)
	for i, call := range client.calls[1:] {
		last := call.Messages[len(call.Messages)-1]
		require.NotNil(t, last.Content[0].OfToolResult, "call %d", i+2)
		assert.True(t, last.Content[0].OfToolResult.IsError.Value, "call %d", i+2)
	}
}

func TestSendStopsAfterMaxIterations(t *testing.T) {
	f := setup(t)
	cfg := testConfig()
	cfg.MaxIterations = 2
	client := &scriptedClient{steps: []step{
		{message: toolCall("toolu_1", "list_products", `{}`)},
		{message: toolCall("toolu_2", "list_products", `{}`)},
	}}
	a := New(client, f.p, f.admin, cfg, nil)

	_, err := a.Send(context.Background(), "loop forever")
	require.ErrorIs(t, err, ErrMaxIterations)
	assert.Empty(t, a.history, "failed exchanges are rolled back")
}

func TestSendRetriesOverloadedAPI(t *testing.T) {
	f := setup(t)
	client := &scriptedClient{steps: []step{
		{err: apiError(529)},
		{message: textReply("Back again.")},
	}}
	a := New(client, f.p, f.admin, testConfig(), nil)

	answer, err := a.Send(context.Background(), "hello?")
	require.NoError(t, err)
	assert.Equal(t, "Back again.", answer)
	assert.Len(t, client.calls, 2)
}

func TestHistoryAndReset(t *testing.T) {
	f := setup(t)
	client := &scriptedClient{steps: []step{
		{message: textReply("One.")},
		{message: textReply("Two.")},
		{message: textReply("Fresh.")},
	}}
	a := New(client, f.p, f.admin, testConfig(), nil)
	ctx := context.Background()

	_, err := a.Send(ctx, "first")
	require.NoError(t, err)
	_, err = a.Send(ctx, "second")
	require.NoError(t, err)
	assert.Len(t, client.calls[1].Messages, 3)

	session := a.SessionID()
	a.Reset()
	assert.NotEqual(t, session, a.SessionID())

	_, err = a.Send(ctx, "third")
	require.NoError(t, err)
	assert.Len(t, client.calls[2].Messages, 1)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	c, err := NewClient("sk-test")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestSendStopsWhenBudgetIsUsedUp(t *testing.T) {
	f := setup(t)
	client := &scriptedClient{steps: []step{{message: textReply("first")}, {message: textReply("second")}}}
	cfg := testConfig()
	cfg.HourlyTokenBudget = 10
	a := New(client, f.p, f.admin, cfg, nil)

	_, err := a.Send(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, BudgetExceeded, a.Budget().Stats().Status)

	_, err = a.Send(context.Background(), "two")
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Len(t, client.calls, 1)
}
