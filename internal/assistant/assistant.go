// Package assistant lets a language model read and edit sprint plans
// through the planner, using the Anthropic Messages API tool-use loop.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

var (
	// ErrNoAPIKey is returned when no API key is configured
	ErrNoAPIKey = errors.New("assistant API key not set")
	// ErrMaxIterations is returned when the model keeps calling tools
	ErrMaxIterations = errors.New("conversation exceeded maximum iterations")
)

// MessageClient is the part of the Anthropic client the assistant uses.
// *anthropic.MessageService satisfies it.
type MessageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// NewClient returns the Anthropic messages client for apiKey
func NewClient(apiKey string) (MessageClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &client.Messages, nil
}

// Config tunes the assistant
type Config struct {
	Model         string
	MaxTokens     int
	MaxIterations int
	MaxConcurrent int
	// RequestsPerMinute limits model API calls
	RequestsPerMinute int
	// HourlyTokenBudget caps input plus output tokens per hour; 0 is unlimited
	HourlyTokenBudget int64
	Retry             RetryConfig
}

// DefaultConfig returns the assistant defaults
func DefaultConfig() Config {
	return Config{
		Model:             "claude-sonnet-4-5",
		MaxTokens:         4096,
		MaxIterations:     10,
		MaxConcurrent:     2,
		RequestsPerMinute: 50,
		Retry:             DefaultRetryConfig(),
	}
}

// Assistant holds one conversation on behalf of one user
type Assistant struct {
	client MessageClient
	p      *planner.Planner
	actor  *types.User
	cfg    Config
	guard  *Guard
	budget *Budget
	log    *zap.SugaredLogger
	tools  map[string]tool
	now    func() time.Time

	mu        sync.Mutex
	sessionID string
	history   []anthropic.MessageParam
}

// New creates an assistant acting as actor
func New(client MessageClient, p *planner.Planner, actor *types.User, cfg Config, log *zap.SugaredLogger) *Assistant {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = d.MaxIterations
	}
	a := &Assistant{
		client:    client,
		p:         p,
		actor:     actor,
		cfg:       cfg,
		guard:     NewGuard(cfg.Retry, cfg.MaxConcurrent, cfg.RequestsPerMinute, log),
		budget:    NewBudget(cfg.HourlyTokenBudget, log),
		now:       time.Now,
		sessionID: uuid.NewString(),
	}
	a.log = log.With("session", a.sessionID, "actor", actor.Name)
	a.tools = a.registerTools()
	return a
}

// Budget exposes the token budget
func (a *Assistant) Budget() *Budget { return a.budget }

// SessionID identifies the current conversation in logs
func (a *Assistant) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Reset forgets the conversation and starts a new session
func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	a.sessionID = uuid.NewString()
}

func (a *Assistant) systemPrompt() string {
	return fmt.Sprintf(`You are Kassandra, a sprint planning assistant. You talk to %s.

Data is organized as product > version > feature > sprint > task. Inside a
sprint, tasks form an ordered tree: stories group tasks, milestones mark
dates. Tasks can depend on each other (finish to start). Work amounts are
minutes; a working day has %d minutes.

Use the tools to look things up before answering and to make the changes
the user asks for. Every change reschedules the sprint. When a tool fails,
explain the error in plain words instead of retrying the same call.

Today is %s.`, a.actor.Name, a.p.Calendar().WorkingMinutesPerDay, a.now().Format("Monday, 2006-01-02"))
}

// Send adds a user message to the conversation, runs the tool loop and
// returns the final text answer
func (a *Assistant) Send(ctx context.Context, message string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// a failed exchange leaves the history as it was
	mark := len(a.history)
	a.history = append(a.history, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))

	answer, err := a.loop(ctx)
	if err != nil {
		a.history = a.history[:mark]
		return "", err
	}
	return answer, nil
}

func (a *Assistant) loop(ctx context.Context) (string, error) {
	tools := a.toolParams()
	for iteration := 0; iteration < a.cfg.MaxIterations; iteration++ {
		if err := a.budget.CanProceed(); err != nil {
			return "", err
		}
		var response *anthropic.Message
		err := a.guard.Do(ctx, "messages", func(ctx context.Context) error {
			var err error
			response, err = a.client.New(ctx, anthropic.MessageNewParams{
				Model:     anthropic.Model(a.cfg.Model),
				MaxTokens: int64(a.cfg.MaxTokens),
				System:    []anthropic.TextBlockParam{{Text: a.systemPrompt()}},
				Messages:  a.history,
				Tools:     tools,
			})
			return err
		})
		if err != nil {
			return "", fmt.Errorf("API call failed: %w", err)
		}
		observeUsage(response.Usage)
		a.budget.Record(response.Usage.InputTokens, response.Usage.OutputTokens)

		switch response.StopReason {
		case anthropic.StopReasonToolUse:
			a.history = append(a.history, response.ToParam())
			var results []anthropic.ContentBlockParamUnion
			for _, block := range response.Content {
				if block.Type != "tool_use" {
					continue
				}
				out, err := a.executeTool(ctx, block.Name, block.Input)
				if err != nil {
					a.log.Infow("tool failed", "tool", block.Name, "error", err)
					results = append(results, anthropic.NewToolResultBlock(block.ID, fmt.Sprintf("Error: %v", err), true))
					continue
				}
				a.log.Debugw("tool succeeded", "tool", block.Name)
				results = append(results, anthropic.NewToolResultBlock(block.ID, out, false))
			}
			if len(results) == 0 {
				return "", fmt.Errorf("model stopped for tool use without calling a tool")
			}
			a.history = append(a.history, anthropic.NewUserMessage(results...))

		case anthropic.StopReasonEndTurn, anthropic.StopReasonMaxTokens, anthropic.StopReasonStopSequence:
			text := responseText(response)
			a.history = append(a.history, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
			return text, nil

		default:
			return "", fmt.Errorf("unexpected stop reason: %s", response.StopReason)
		}
	}
	return "", fmt.Errorf("%w (%d)", ErrMaxIterations, a.cfg.MaxIterations)
}

func responseText(m *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
