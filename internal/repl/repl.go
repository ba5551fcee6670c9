// Package repl is the interactive Kassandra shell. Lines starting with a
// known command run it; anything else is sent to the assistant.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/abdallabushnaq/kassandra/internal/planner"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

// errExit ends the loop
var errExit = errors.New("exit")

// Conversation is the assistant as seen by the shell
type Conversation interface {
	Send(ctx context.Context, message string) (string, error)
	Reset()
}

// REPL represents the interactive shell
type REPL struct {
	p            *planner.Planner
	actor        *types.User
	conversation Conversation
	out          io.Writer
	historyFile  string
	ctx          context.Context
	commands     map[string]CommandHandler
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Planner *planner.Planner
	Actor   *types.User
	// Conversation may be nil when no API key is configured
	Conversation Conversation
	// HistoryFile persists input history; empty keeps it in memory
	HistoryFile string
	Out         io.Writer
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if cfg.Actor == nil {
		return nil, fmt.Errorf("actor is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		p:            cfg.Planner,
		actor:        cfg.Actor,
		conversation: cfg.Conversation,
		out:          out,
		historyFile:  cfg.HistoryFile,
		ctx:          context.Background(),
		commands:     make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("kassandra> "),
		HistoryFile:       r.historyFile,
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            r.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			} else if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := r.processInput(line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	if handler, ok := r.commands[strings.ToLower(parts[0])]; ok {
		return handler(parts[1:])
	}
	return r.processNaturalLanguage(line)
}

func (r *REPL) processNaturalLanguage(input string) error {
	if r.conversation == nil {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(r.out, "\n%s The assistant needs an API key (KASSANDRA_ASSISTANT_API_KEY or ANTHROPIC_API_KEY).\n", yellow("Note:"))
		fmt.Fprintln(r.out, "Use 'help' for the built-in commands.")
		fmt.Fprintln(r.out)
		return nil
	}

	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintln(r.out, gray("Thinking..."))

	response, err := r.conversation.Send(r.ctx, input)
	if err != nil {
		return fmt.Errorf("assistant failed: %w", err)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, response)
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
	r.commands["products"] = r.cmdProducts
	r.commands["sprints"] = r.cmdSprints
	r.commands["sprint"] = r.cmdSprint
	r.commands["recalc"] = r.cmdRecalc
	r.commands["check"] = r.cmdCheck
	r.commands["clear"] = r.cmdClear
}

func (r *REPL) completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(r.commands))
	for name := range r.commands {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("Kassandra sprint planner"))
	fmt.Fprintf(r.out, "Signed in as %s\n\n", r.actor.Name)
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"help, ?", "Show this help message"},
		{"products", "List products with their versions and features"},
		{"sprints [feature-id]", "List sprints, of one feature or of all products"},
		{"sprint <id>", "Show a sprint plan"},
		{"recalc <id>", "Reschedule a sprint"},
		{"check <id>", "Check a sprint plan for problems"},
		{"clear", "Start a new assistant conversation"},
		{"exit, quit", "Exit the shell"},
	}
	for _, cmd := range commands {
		fmt.Fprintf(r.out, "  %-22s %s\n", green(cmd.name), cmd.desc)
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Anything else goes to the assistant, for example:")
	fmt.Fprintln(r.out, "  'What is left in sprint 3?'")
	fmt.Fprintln(r.out, "  'Move the login story before the API story'")
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	return errExit
}

func (r *REPL) cmdClear(args []string) error {
	if r.conversation != nil {
		r.conversation.Reset()
	}
	fmt.Fprintln(r.out, "Conversation cleared.")
	return nil
}
