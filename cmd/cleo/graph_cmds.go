package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(
		newAnalyzeCmd(), newDepsCmd(), newWavesCmd(), newNextCmd(),
		newBlockersCmd(), newCriticalPathCmd(), newStalenessCmd(),
	)
}

func newAnalyzeCmd() *cobra.Command {
	var epic string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the task graph: cycles, bottlenecks, recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("analyze", params{}.str("epic", epic))
		},
	}
	cmd.Flags().StringVar(&epic, "epic", "", "restrict to one epic's subtree")
	return cmd
}

func newDepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <id>",
		Short: "Show what a task depends on, what blocks it, and what it unblocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("deps", params{"id": args[0]})
		},
	}
}

func newWavesCmd() *cobra.Command {
	var epic string
	cmd := &cobra.Command{
		Use:   "waves",
		Short: "Group ready work into parallel execution waves",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("waves", params{}.str("epic", epic))
		},
	}
	cmd.Flags().StringVar(&epic, "epic", "", "restrict to one epic's subtree")
	return cmd
}

func newNextCmd() *cobra.Command {
	var epic string
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Pick the next task to work on",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("next", params{}.str("epic", epic))
		},
	}
	cmd.Flags().StringVar(&epic, "epic", "", "restrict to one epic's subtree")
	return cmd
}

func newBlockersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blockers",
		Short: "Rank tasks by how much work they block",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("blockers", params{})
		},
	}
}

func newCriticalPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "critical-path",
		Short: "Show the longest dependency chain through open work",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("critical-path", params{})
		},
	}
}

func newStalenessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "staleness",
		Short: "Classify tasks by how long they have sat untouched",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("staleness", params{})
		},
	}
}
