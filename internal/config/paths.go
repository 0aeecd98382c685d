package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths locates every file CLEO reads or writes for one project.
type Paths struct {
	ProjectRoot string // directory containing .cleo
	StateDir    string // <ProjectRoot>/.cleo
	GlobalDir   string // $CLEO_HOME or ~/.cleo
}

// Resolve walks up from startDir looking for an existing state directory;
// when none is found the start directory itself becomes the project root.
// The global directory honors CLEO_HOME.
func Resolve(startDir string) (Paths, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve project dir: %w", err)
	}

	root := abs
	for dir := abs; ; dir = filepath.Dir(dir) {
		if info, err := os.Stat(filepath.Join(dir, StateDirName)); err == nil && info.IsDir() {
			root = dir
			break
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}

	globalDir := os.Getenv("CLEO_HOME")
	if globalDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("resolve home dir: %w", err)
		}
		globalDir = filepath.Join(home, StateDirName)
	}

	return Paths{
		ProjectRoot: root,
		StateDir:    filepath.Join(root, StateDirName),
		GlobalDir:   globalDir,
	}, nil
}

// Todo returns the active tasks document path.
func (p Paths) Todo() string { return filepath.Join(p.StateDir, TodoFileName) }

// Archive returns the archive document path.
func (p Paths) Archive() string { return filepath.Join(p.StateDir, ArchiveFileName) }

// Sessions returns the sessions document path.
func (p Paths) Sessions() string { return filepath.Join(p.StateDir, SessionsFileName) }

// Log returns the audit log path.
func (p Paths) Log() string { return filepath.Join(p.StateDir, LogFileName) }

// Database returns the embedded store path.
func (p Paths) Database() string { return filepath.Join(p.StateDir, DatabaseFileName) }

// MetricsDir returns the per-project metrics directory.
func (p Paths) MetricsDir() string { return filepath.Join(p.StateDir, "metrics") }

// BackupDir returns the backup directory for a tier (operational, safety,
// snapshot, migration).
func (p Paths) BackupDir(tier string) string {
	return filepath.Join(p.StateDir, "backups", tier)
}

// ManifestLog returns the subagent manifest log path.
func (p Paths) ManifestLog() string { return filepath.Join(p.StateDir, "manifest.jsonl") }

// SpawnLog returns the orchestrator spawn record stream path.
func (p Paths) SpawnLog() string { return filepath.Join(p.StateDir, "spawns.jsonl") }

// ComplianceLog returns the compliance scoring stream path.
func (p Paths) ComplianceLog() string { return filepath.Join(p.MetricsDir(), "COMPLIANCE.jsonl") }

// ViolationsLog returns the violations stream path.
func (p Paths) ViolationsLog() string { return filepath.Join(p.MetricsDir(), "VIOLATIONS.jsonl") }

// TokenUsageLog returns the per-event token stream path.
func (p Paths) TokenUsageLog() string { return filepath.Join(p.MetricsDir(), "TOKEN_USAGE.jsonl") }

// SessionMetricsLog returns the per-session metrics stream path.
func (p Paths) SessionMetricsLog() string { return filepath.Join(p.MetricsDir(), "SESSIONS.jsonl") }

// ABTestsLog returns the A/B test stream path.
func (p Paths) ABTestsLog() string {
	return filepath.Join(p.MetricsDir(), "ab-tests", "AB_TESTS.jsonl")
}

// GlobalMetricsLog returns the aggregated global stream path.
func (p Paths) GlobalMetricsLog() string {
	return filepath.Join(p.GlobalDir, "metrics", "GLOBAL.jsonl")
}

// Registry returns the global project registry path.
func (p Paths) Registry() string { return filepath.Join(p.GlobalDir, "registry.json") }

// EnsureStateDir creates the state directory tree.
func (p Paths) EnsureStateDir() error {
	for _, dir := range []string{
		p.StateDir,
		p.MetricsDir(),
		filepath.Join(p.MetricsDir(), "ab-tests"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
