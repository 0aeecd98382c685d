package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(
		newInitCmd(), newValidateCmd(), newDoctorCmd(), newMigrateCmd(),
		newBackupCmd(), newRestoreCmd(), newRoadmapCmd(), newDashCmd(),
		newStatsCmd(), newVersionCmd(), newMetricsCmd(), newABTestCmd(),
	)
}

func newInitCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the .cleo state directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("init", params{}.str("name", name))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name (default: directory name)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate all state documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("validate", params{})
		},
	}
}

func newDoctorCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose (and optionally repair) state inconsistencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("doctor", params{}.flag("fix", fix))
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "apply repairs")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade state documents to the current schema versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("migrate", params{})
		},
	}
}

func newBackupCmd() *cobra.Command {
	var tier string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Take a timestamped backup of all state files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("backup", params{}.str("tier", tier))
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "", "backup tier (default safety)")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var tier, backup string
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore a state file from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("restore", params{"file": args[0]}.
				str("tier", tier).
				str("backup", backup))
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "", "backup tier (default safety)")
	cmd.Flags().StringVar(&backup, "backup", "", "backup filename (default: newest)")
	return cmd
}

func newRoadmapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roadmap",
		Short: "Show per-phase progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("roadmap", params{})
		},
	}
}

func newDashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Show the project dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("dash", params{})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show project statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("stats", params{})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show CLEO and schema versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("version", params{})
		},
	}
}

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Token usage metrics",
	}

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Summarize recorded token usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("metrics-summary", params{})
		},
	}
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Sync compliance records to the global cross-project stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("metrics-sync", params{})
		},
	}

	cmd.AddCommand(summary, sync)
	return cmd
}

func newABTestCmd() *cobra.Command {
	var label, cleoID, baseID string
	cmd := &cobra.Command{
		Use:   "ab-test",
		Short: "Compare token efficiency between two ended sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("ab-test", params{
				"label":             label,
				"cleoSessionId":     cleoID,
				"baselineSessionId": baseID,
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "experiment label")
	cmd.Flags().StringVar(&cleoID, "cleo", "", "session run with CLEO")
	cmd.Flags().StringVar(&baseID, "baseline", "", "session run without CLEO")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("cleo")
	_ = cmd.MarkFlagRequired("baseline")
	return cmd
}
