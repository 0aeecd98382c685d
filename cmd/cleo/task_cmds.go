package main

import (
	"github.com/spf13/cobra"
)

// params builds an operation parameter map, skipping zero values so handlers
// can distinguish "absent" from "set to empty".
type params map[string]any

func (p params) str(key, v string) params {
	if v != "" {
		p[key] = v
	}
	return p
}

func (p params) strs(key string, v []string) params {
	if len(v) > 0 {
		p[key] = v
	}
	return p
}

func (p params) flag(key string, v bool) params {
	if v {
		p[key] = true
	}
	return p
}

func init() {
	rootCmd.AddCommand(
		newAddCmd(), newShowCmd(), newListCmd(), newFindCmd(), newUpdateCmd(),
		newCompleteCmd(), newReopenCmd(), newCancelCmd(), newUncancelCmd(),
		newDeleteCmd(), newArchiveCmd(), newUnarchiveCmd(), newVerifyCmd(),
	)
}

func newAddCmd() *cobra.Command {
	var (
		description string
		taskType    string
		priority    string
		parent      string
		phase       string
		size        string
		depends     []string
		labels      []string
		files       []string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("add", params{"title": args[0]}.
				str("description", description).
				str("type", taskType).
				str("priority", priority).
				str("parentId", parent).
				str("phase", phase).
				str("size", size).
				strs("depends", depends).
				strs("labels", labels).
				strs("files", files))
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&taskType, "type", "t", "", "task type (task, epic, bug, spike, chore)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "priority (low, medium, high, critical)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent task id")
	cmd.Flags().StringVar(&phase, "phase", "", "project phase")
	cmd.Flags().StringVar(&size, "size", "", "size estimate (xs, s, m, l, xl)")
	cmd.Flags().StringSliceVar(&depends, "depends", nil, "dependency task ids")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "labels")
	cmd.Flags().StringSliceVar(&files, "files", nil, "associated file paths")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task (active or archived)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("show", params{"id": args[0]})
		},
	}
}

func newListCmd() *cobra.Command {
	var status, taskType, phase, label, parent string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("list", params{}.
				str("status", status).
				str("type", taskType).
				str("phase", phase).
				str("label", label).
				str("parentId", parent))
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&taskType, "type", "", "filter by type")
	cmd.Flags().StringVar(&phase, "phase", "", "filter by phase")
	cmd.Flags().StringVar(&label, "label", "", "filter by label")
	cmd.Flags().StringVar(&parent, "parent", "", "filter by parent id")
	return cmd
}

func newFindCmd() *cobra.Command {
	var includeArchive bool
	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Search tasks by title, description, or label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("find", params{"query": args[0]}.flag("includeArchive", includeArchive))
		},
	}
	cmd.Flags().BoolVar(&includeArchive, "archive", false, "include archived tasks")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var (
		title, description, priority, status, phase, size, note string
		labels, files, depends                                  []string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := params{"id": args[0]}.
				str("title", title).
				str("description", description).
				str("priority", priority).
				str("status", status).
				str("phase", phase).
				str("size", size).
				str("note", note)
			// Changed-flag checks let an explicit empty slice clear the field.
			if cmd.Flags().Changed("labels") {
				p["labels"] = labels
			}
			if cmd.Flags().Changed("files") {
				p["files"] = files
			}
			if cmd.Flags().Changed("depends") {
				p["depends"] = depends
			}
			return runOp("update", p)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "new priority")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&phase, "phase", "", "new phase")
	cmd.Flags().StringVar(&size, "size", "", "new size estimate")
	cmd.Flags().StringVar(&note, "note", "", "append a note")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "replace labels")
	cmd.Flags().StringSliceVar(&files, "files", nil, "replace file list")
	cmd.Flags().StringSliceVar(&depends, "depends", nil, "replace dependencies")
	return cmd
}

func newCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a task (auto-completes exhausted parents)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("complete", params{"id": args[0]})
		},
	}
}

func newReopenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reopen a done task (cascades through auto-completed parents)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("reopen", params{"id": args[0]})
		},
	}
}

func newCancelCmd() *cobra.Command {
	var reason, children string
	var force bool
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("cancel", params{"id": args[0], "reason": reason}.
				str("children", children).
				flag("force", force))
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the task is cancelled (required)")
	cmd.Flags().StringVar(&children, "children", "", "child handling: block, cascade, orphan")
	cmd.Flags().BoolVar(&force, "force", false, "override the cascade threshold")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newUncancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uncancel <id>",
		Short: "Restore a cancelled task to its prior status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("uncancel", params{"id": args[0]})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var children string
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Physically remove a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("delete", params{"id": args[0]}.
				str("children", children).
				flag("force", force))
		},
	}
	cmd.Flags().StringVar(&children, "children", "", "child handling: block, cascade, orphan")
	cmd.Flags().BoolVar(&force, "force", false, "override the cascade threshold")
	return cmd
}

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Move a terminal task subtree to the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("archive", params{"id": args[0]})
		},
	}
}

func newUnarchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <id>",
		Short: "Restore a task subtree from the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("unarchive", params{"id": args[0]})
		},
	}
}

func newVerifyCmd() *cobra.Command {
	var value bool
	var reason string
	cmd := &cobra.Command{
		Use:   "verify <id> <gate>",
		Short: "Mark a verification gate pass or fail",
		Long: `Gates pass in order: implemented, testsPassed, qaPassed, cleanupDone,
securityPassed, documented. A failure needs --reason and resets every
later gate; repeated failures block the task.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := params{"id": args[0], "gate": args[1], "value": value}.str("reason", reason)
			return runOp("verify", p)
		},
	}
	cmd.Flags().BoolVar(&value, "pass", true, "gate outcome (use --pass=false for a failure)")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "failure reason (required on fail)")
	return cmd
}
