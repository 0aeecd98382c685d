package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSessionCmd(), newFocusCmd())
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage work sessions and their scopes",
	}

	var (
		name, scopeType, epicID, rootID string
		taskIDs                         []string
		allowOverlap                    bool
	)
	start := &cobra.Command{
		Use:   "start",
		Short: "Start a session with a declared scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("session-start", params{}.
				str("name", name).
				str("scopeType", scopeType).
				str("epicId", epicID).
				str("rootId", rootID).
				strs("taskIds", taskIDs).
				flag("allowOverlap", allowOverlap))
		},
	}
	start.Flags().StringVar(&name, "name", "", "session name")
	start.Flags().StringVar(&scopeType, "scope", "", "scope type: global, epic, subtree, tasks")
	start.Flags().StringVar(&epicID, "epic", "", "epic id for epic scope")
	start.Flags().StringVar(&rootID, "root", "", "root task id for subtree scope")
	start.Flags().StringSliceVar(&taskIDs, "tasks", nil, "explicit task ids for tasks scope")
	start.Flags().BoolVar(&allowOverlap, "allow-overlap", false, "accept a soft scope conflict")

	end := &cobra.Command{
		Use:   "end <id>",
		Short: "End a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("session-end", params{"id": args[0]})
		},
	}
	suspend := &cobra.Command{
		Use:   "suspend <id>",
		Short: "Suspend a session, freeing its scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("session-suspend", params{"id": args[0]})
		},
	}
	resume := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a suspended session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("session-resume", params{"id": args[0]})
		},
	}
	status := &cobra.Command{
		Use:   "status [id]",
		Short: "Show active sessions, or one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := params{}
			if len(args) == 1 {
				p["id"] = args[0]
			}
			return runOp("session-status", p)
		},
	}
	gc := &cobra.Command{
		Use:   "gc",
		Short: "Mark expired and inactive sessions as orphaned",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("session-gc", params{})
		},
	}

	cmd.AddCommand(start, end, suspend, resume, status, gc)
	return cmd
}

func newFocusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "focus",
		Short: "Manage the focused task within a session",
	}

	set := &cobra.Command{
		Use:   "set <session-id> <task-id>",
		Short: "Focus a task (pending tasks go active)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("focus-set", params{"sessionId": args[0], "taskId": args[1]})
		},
	}
	clear := &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Clear the session focus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("focus-clear", params{"sessionId": args[0]})
		},
	}
	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show the current focus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("focus-show", params{"sessionId": args[0]})
		},
	}
	history := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show the focus history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("focus-history", params{"sessionId": args[0]})
		},
	}

	cmd.AddCommand(set, clear, show, history)
	return cmd
}
