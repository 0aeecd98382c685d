package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newOrchestratorCmd(), newResearchCmd(), newComplianceCmd())
}

func newOrchestratorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orchestrator",
		Aliases: []string{"orch"},
		Short:   "Coordinate subagent work across an epic",
	}

	ready := &cobra.Command{
		Use:   "ready <epic-id>",
		Short: "List tasks ready to spawn in the current wave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("orchestrator-ready", params{"epic": args[0]})
		},
	}
	next := &cobra.Command{
		Use:   "next <epic-id>",
		Short: "Pick the next task within an epic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("orchestrator-next", params{"epic": args[0]})
		},
	}
	spawn := &cobra.Command{
		Use:   "spawn <epic-id> <task-id>",
		Short: "Compose a spawn prompt and open a deadline-tracked record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("orchestrator-spawn", params{"epic": args[0], "taskId": args[1]})
		},
	}
	spawnWave := &cobra.Command{
		Use:   "spawn-wave <epic-id>",
		Short: "Spawn every task in the current wave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("orchestrator-spawn-wave", params{"epic": args[0]})
		},
	}

	var output, manifestFile string
	ret := &cobra.Command{
		Use:   "return <task-id>",
		Short: "Record a subagent return and score its compliance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := params{"taskId": args[0], "output": output}
			if manifestFile != "" {
				m, err := readManifestFile(manifestFile)
				if err != nil {
					return err
				}
				p["manifest"] = m
			}
			return runOp("orchestrator-return", p)
		},
	}
	ret.Flags().StringVarP(&output, "output", "o", "", "the subagent's return text")
	ret.Flags().StringVar(&manifestFile, "manifest", "", "JSON file with the manifest entry")
	_ = ret.MarkFlagRequired("output")

	blocked := &cobra.Command{
		Use:   "blocked",
		Short: "Report spawns that missed their return deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("orchestrator-blocked", params{})
		},
	}

	cmd.AddCommand(ready, next, spawn, spawnWave, ret, blocked)
	return cmd
}

// readManifestFile parses a manifest entry from a JSON file into the loose
// map shape the operation surface expects.
func readManifestFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

func newResearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Manage the research manifest",
	}

	var manifestFile string
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append a manifest entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readManifestFile(manifestFile)
			if err != nil {
				return err
			}
			return runOp("research-append", params{"manifest": m})
		},
	}
	appendCmd.Flags().StringVar(&manifestFile, "manifest", "", "JSON file with the manifest entry")
	_ = appendCmd.MarkFlagRequired("manifest")

	var docsDir string
	gaps := &cobra.Command{
		Use:   "gaps",
		Short: "Find manifest topics not yet covered by the docs corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("research-gaps", params{}.str("docsDir", docsDir))
		},
	}
	gaps.Flags().StringVar(&docsDir, "docs", "", "docs corpus directory (default <project>/docs)")

	cmd.AddCommand(appendCmd, gaps)
	return cmd
}

func newComplianceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compliance",
		Short: "Report subagent compliance scoring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp("compliance-report", params{})
		},
	}
}
