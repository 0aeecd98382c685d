// Package config resolves where CLEO state lives and what the effective
// configuration is. Resolution is fully explicit: a Config is built once at
// entry from defaults, the global file, the project file, the environment,
// and CLI overrides, then threaded through every operation. There is no
// process-wide mutable state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// StateDirName is the per-project state directory.
const StateDirName = ".cleo"

// File names inside the state directory.
const (
	TodoFileName     = "todo.json"
	ArchiveFileName  = "todo-archive.json"
	SessionsFileName = "sessions.json"
	LogFileName      = "todo-log.jsonl"
	ConfigFileName   = "config.json"
	DatabaseFileName = "cleo.db"
)

// SizeStrategy selects the leverage weighting table.
type SizeStrategy string

const (
	StrategyQuickWins SizeStrategy = "quick-wins"
	StrategyBigImpact SizeStrategy = "big-impact"
	StrategyBalanced  SizeStrategy = "balanced"
)

// ChildHandling is the default strategy for cancel/delete on tasks with
// children.
type ChildHandling string

const (
	ChildBlock   ChildHandling = "block"
	ChildCascade ChildHandling = "cascade"
	ChildOrphan  ChildHandling = "orphan"
)

// StorageEngine selects the data accessor back-end.
type StorageEngine string

const (
	EngineFile StorageEngine = "file"
	EngineSQL  StorageEngine = "sql"
	EngineDual StorageEngine = "dual"
	EngineAuto StorageEngine = "auto"
)

// Config is the effective, merged configuration.
type Config struct {
	// Limits
	MaxTitleLength       int `json:"maxTitleLength"`
	MaxDescriptionLength int `json:"maxDescriptionLength"`
	MaxDepth             int `json:"maxDepth"`
	MinReasonLength      int `json:"minReasonLength"`

	// Lifecycle behavior
	CascadeThreshold     int           `json:"cascadeThreshold"`
	DefaultChildHandling ChildHandling `json:"defaultChildHandling"`
	MaxVerifyRounds      int           `json:"maxVerifyRounds"`
	RequiredGates        []string      `json:"requiredGates,omitempty"`

	// Analysis
	SizeStrategy        SizeStrategy `json:"sizeStrategy"`
	StaleDays           int          `json:"staleDays"`
	CriticalDays        int          `json:"criticalDays"`
	AbandonedDays       int          `json:"abandonedDays"`
	SoftConflictAllowed bool         `json:"softConflictAllowed"`

	// Sessions
	SessionMaxAgeDays int `json:"sessionMaxAgeDays"`

	// Orchestrator
	SpawnDeadlineMinutes int `json:"spawnDeadlineMinutes"`

	// Storage
	Engine        StorageEngine `json:"engine"`
	LockTimeoutMs int           `json:"lockTimeoutMs"`
	BackupCopies  int           `json:"backupCopies"`

	// Metrics
	TrackTokens    bool   `json:"trackTokens"`
	OtelMetricsDir string `json:"otelMetricsDir,omitempty"`

	// Output
	Format  string `json:"format,omitempty"` // json | text | markdown
	NoColor bool   `json:"noColor,omitempty"`
}

// Default returns the compiled-in baseline configuration.
func Default() Config {
	return Config{
		MaxTitleLength:       200,
		MaxDescriptionLength: 5000,
		MaxDepth:             3,
		MinReasonLength:      10,
		CascadeThreshold:     10,
		DefaultChildHandling: ChildBlock,
		MaxVerifyRounds:      5,
		SizeStrategy:         StrategyBalanced,
		StaleDays:            7,
		CriticalDays:         14,
		AbandonedDays:        30,
		SoftConflictAllowed:  true,
		SessionMaxAgeDays:    30,
		SpawnDeadlineMinutes: 60,
		Engine:               EngineAuto,
		LockTimeoutMs:        10000,
		BackupCopies:         10,
		TrackTokens:          true,
	}
}

// LockTimeout converts the configured milliseconds into a duration.
func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMs) * time.Millisecond
}

// Load builds the effective config for a project: defaults, then the global
// file, then the project file, then environment variables. CLI overrides are
// applied by the adapter after Load.
func Load(paths Paths) (Config, error) {
	cfg := Default()

	for _, p := range []string{
		filepath.Join(paths.GlobalDir, ConfigFileName),
		filepath.Join(paths.StateDir, ConfigFileName),
	} {
		if err := mergeFile(&cfg, p); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// mergeFile overlays the JSON file at path onto cfg. Absent files are
// skipped; malformed files are an error rather than silently ignored.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays recognized environment variables.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("CLEO_TRACK_TOKENS"); ok {
		cfg.TrackTokens = v != "0" && v != "false"
	}
	if v := os.Getenv("OTEL_METRICS_DIR"); v != "" {
		cfg.OtelMetricsDir = v
	}
	if v := os.Getenv("CLEO_FORMAT"); v != "" {
		cfg.Format = v
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		cfg.NoColor = true
	}
	if _, ok := os.LookupEnv("FORCE_COLOR"); ok {
		cfg.NoColor = false
	}
	if v := os.Getenv("CLEO_LOCK_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LockTimeoutMs = n
		}
	}
	if v := os.Getenv("CLEO_ENGINE"); v != "" {
		cfg.Engine = StorageEngine(v)
	}
}
