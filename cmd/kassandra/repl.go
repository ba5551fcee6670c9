package main

import (
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abdallabushnaq/kassandra/internal/assistant"
	"github.com/abdallabushnaq/kassandra/internal/repl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive planning shell",
	Long: `Start an interactive shell for the user given with --user.

Built-in commands list products and sprints, show and reschedule plans.
Anything else is sent to the planning assistant, which can look up and
edit plans on your behalf. The assistant needs KASSANDRA_ASSISTANT_API_KEY
or ANTHROPIC_API_KEY.

Type 'help' in the shell for available commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()
		u := requireActor(ctx)

		var conversation repl.Conversation
		client, err := assistant.NewClient(cfg.Assistant.APIKey)
		switch {
		case err == nil:
			retry := assistant.DefaultRetryConfig()
			retry.MaxRetries = cfg.Assistant.MaxRetries
			conversation = assistant.New(client, plan, u, assistant.Config{
				Model:             cfg.Assistant.Model,
				MaxTokens:         cfg.Assistant.MaxTokens,
				MaxIterations:     cfg.Assistant.MaxIterations,
				MaxConcurrent:     cfg.Assistant.MaxConcurrent,
				RequestsPerMinute: cfg.Assistant.RequestsPerMinute,
				HourlyTokenBudget: cfg.Assistant.HourlyTokenBudget,
				Retry:             retry,
			}, log)
		case errors.Is(err, assistant.ErrNoAPIKey):
			log.Debugw("assistant disabled", "reason", err)
		default:
			return err
		}

		r, err := repl.New(&repl.Config{
			Planner:      plan,
			Actor:        u,
			Conversation: conversation,
			HistoryFile:  filepath.Join(filepath.Dir(dbPath), ".repl_history"),
		})
		if err != nil {
			return err
		}
		return r.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
