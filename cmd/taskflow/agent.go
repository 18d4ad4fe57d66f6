package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/taskflow-agent/internal/agent"
	"github.com/MimeLyc/taskflow-agent/internal/auth"
)

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Talk to the todo assistant",
	}
	cmd.AddCommand(agentRunCmd())
	return cmd
}

func agentRunCmd() *cobra.Command {
	var (
		email   string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "run <message>",
		Short: "Run the assistant once for a user",
		Example: `  taskflow agent run --user ada@example.com "add buy milk with high priority"
  taskflow agent run --user ada@example.com -v "what is left for today?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.store.GetUserByEmail(cmd.Context(), strings.ToLower(strings.TrimSpace(email)))
			if errors.Is(err, auth.ErrUserNotFound) {
				return fmt.Errorf("no user with email %q, create one with 'taskflow user add'", email)
			}
			if err != nil {
				return err
			}

			var onStep func(agent.Step)
			if verbose && !asJSON {
				onStep = printStep
			}
			result, err := a.agents.RunWithProgress(cmd.Context(), u.ID, strings.Join(args, " "), nil, onStep)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(result)
			}
			fmt.Println(result.FinalResponse)
			if verbose {
				fmt.Printf("\nrun %s: %d iteration(s), %d step(s)\n", result.RunID, result.Iterations, len(result.Steps))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "user", "u", "", "Email of the user to act for")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print each step as it happens")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printStep(step agent.Step) {
	tool := step.Tool
	if tool == "" {
		tool = "(answer)"
	}
	if step.Thought != "" {
		fmt.Printf("- %s: %s\n", tool, step.Thought)
		return
	}
	fmt.Printf("- %s\n", tool)
}
