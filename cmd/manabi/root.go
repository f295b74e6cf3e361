package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manabi",
		Short: "Manabi - checkpointed LLM batch runner for student mastery assessment and tutoring",
		Long: `Manabi runs large batches of LLM requests over student learning records.

It assesses per-student mastery of knowledge components from exam
transaction logs, and generates tutoring content for weak components.
Every outcome is checkpointed, so interrupted runs resume where they
left off.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newAssessCommand())
	cmd.AddCommand(newTutorCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newCompactCommand())
	cmd.AddCommand(newValidateCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
