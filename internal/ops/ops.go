// Package ops is the public operation surface: a closed registry of named
// operations over the accessor layer. The CLI dispatcher and the MCP server
// are thin adapters over Dispatch; neither can bypass validation or audit
// logging because both live inside the operations themselves.
package ops

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/audit"
	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/metrics"
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/orchestrator"
	"github.com/dsj7419/cleo/internal/session"
	"github.com/dsj7419/cleo/internal/store"
	"github.com/dsj7419/cleo/internal/task"
	"github.com/dsj7419/cleo/internal/validate"
)

// Version is the CLEO release version stamped into envelopes.
const Version = "0.9.0"

// envelopeSchema is the $schema URL emitted on every response envelope.
const envelopeSchema = "https://cleo.dev/schemas/response/v1"

// Request is one operation invocation. Params carry the operation arguments
// as loosely typed values; handlers pull them out through the typed getters.
type Request struct {
	Op     string         `json:"op"`
	Actor  string         `json:"actor,omitempty"`
	DryRun bool           `json:"dryRun,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// EnvelopeMeta is the _meta block of a response envelope.
type EnvelopeMeta struct {
	Cmd     string    `json:"cmd"`
	TS      time.Time `json:"ts"`
	Version string    `json:"version"`
}

// Envelope is the uniform operation response.
type Envelope struct {
	Schema  string       `json:"$schema"`
	Meta    EnvelopeMeta `json:"_meta"`
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *model.Error `json:"error,omitempty"`
}

// Env bundles everything an operation needs. Operations never reach around
// it to globals.
type Env struct {
	Cfg      config.Config
	Paths    config.Paths
	Accessor store.Accessor
	Clock    model.Clock
	Logger   *zap.Logger
	Store    *fsstore.Store

	Validator *validate.Validator
	Audit     *audit.Log
	Mutator   *task.Mutator
	Sessions  *session.Manager
	Orch      *orchestrator.Orchestrator
	Recorder  *metrics.Recorder
}

// NewEnv wires the full operation environment over an accessor.
func NewEnv(cfg config.Config, paths config.Paths, acc store.Accessor, clock model.Clock, logger *zap.Logger) (*Env, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	validator, err := validate.New(cfg)
	if err != nil {
		return nil, err
	}
	fs := fsstore.New(
		fsstore.WithLogger(logger.Named("fsstore")),
		fsstore.WithLockTimeout(cfg.LockTimeout()),
		fsstore.WithBackupRetention(cfg.BackupCopies),
	)
	recorder := metrics.NewRecorder(fs, paths, cfg, clock, logger.Named("metrics"))
	return &Env{
		Cfg:       cfg,
		Paths:     paths,
		Accessor:  acc,
		Clock:     clock,
		Logger:    logger,
		Store:     fs,
		Validator: validator,
		Audit:     audit.NewLog(fs, paths.Log()),
		Mutator:   task.NewMutator(cfg, clock),
		Sessions:  session.NewManager(cfg, clock),
		Orch:      orchestrator.New(cfg, paths, fs, clock, recorder, logger.Named("orchestrator")),
		Recorder:  recorder,
	}, nil
}

// Handler is one registered operation.
type Handler func(ctx context.Context, env *Env, req Request) (any, error)

// registry is the closed operation set. Adapters dispatch by name; an
// unknown name is INVALID_INPUT with the known names as alternatives.
var registry = map[string]Handler{}

func register(name string, h Handler) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("ops: duplicate operation %q", name))
	}
	registry[name] = h
}

// Names returns the registered operation names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs one operation and wraps the outcome in the response
// envelope. Handler panics become INTERNAL errors rather than crashing the
// adapter.
func Dispatch(ctx context.Context, env *Env, req Request) Envelope {
	envl := Envelope{
		Schema: envelopeSchema,
		Meta: EnvelopeMeta{
			Cmd:     req.Op,
			TS:      env.Clock.Now(),
			Version: Version,
		},
	}

	h, ok := registry[req.Op]
	if !ok {
		envl.Error = model.NewError(model.ErrInvalidInput, "unknown operation %q", req.Op).
			WithAlternatives(Names()...)
		return envl
	}

	data, err := func() (data any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = model.NewError(model.ErrInternal, "operation %s panicked: %v", req.Op, r)
				env.Logger.Error("operation panic", zap.String("op", req.Op), zap.Any("panic", r))
			}
		}()
		return h(ctx, env, req)
	}()
	if err != nil {
		envl.Error = model.AsError(err)
		return envl
	}
	envl.Success = true
	envl.Data = data
	return envl
}

// actor defaults the audit actor to "user" when the request names none.
func (r Request) actor() string {
	if r.Actor == "" {
		return "user"
	}
	return r.Actor
}

// --- typed param getters -------------------------------------------------

func (r Request) str(key string) string {
	if v, ok := r.Params[key].(string); ok {
		return v
	}
	return ""
}

func (r Request) requireStr(key string) (string, error) {
	v := r.str(key)
	if v == "" {
		return "", model.NewError(model.ErrInvalidInput, "missing required parameter %q", key).WithField(key)
	}
	return v, nil
}

func (r Request) boolean(key string) bool {
	if v, ok := r.Params[key].(bool); ok {
		return v
	}
	return false
}

func (r Request) strSlice(key string) []string {
	switch v := r.Params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// strPtr distinguishes "absent" from "present but empty" for update-style
// operations.
func (r Request) strPtr(key string) *string {
	if v, ok := r.Params[key]; ok {
		if s, ok := v.(string); ok {
			return &s
		}
	}
	return nil
}

func (r Request) strSlicePtr(key string) *[]string {
	if _, ok := r.Params[key]; !ok {
		return nil
	}
	v := r.strSlice(key)
	return &v
}

// --- shared load/save plumbing -------------------------------------------

// loadAll loads the three documents in one shot.
func loadAll(ctx context.Context, env *Env) (*model.TodoFile, *model.ArchiveFile, *model.SessionsFile, error) {
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	archive, err := env.Accessor.LoadArchive(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	sessions, err := env.Accessor.LoadSessions(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return todo, archive, sessions, nil
}

// saveTodo persists the active document through full validation, then writes
// the audit entry.
func saveTodo(ctx context.Context, env *Env, req Request, todo *model.TodoFile, archive *model.ArchiveFile,
	taskID string, before, after any) error {
	if req.DryRun {
		return nil
	}
	if err := env.Accessor.SaveTodo(ctx, todo, func() error {
		return env.Validator.ValidateTodo(todo, archive, env.Clock.Now()).Err()
	}); err != nil {
		return err
	}
	return env.Audit.Record(ctx, env.Clock.Now(), req.Op, req.actor(), taskID, "", before, after)
}

// saveArchive persists the archive document with validation and audit.
func saveArchive(ctx context.Context, env *Env, req Request, archive *model.ArchiveFile, taskID string) error {
	if req.DryRun {
		return nil
	}
	if err := env.Accessor.SaveArchive(ctx, archive, func() error {
		return env.Validator.ValidateArchive(archive, env.Clock.Now()).Err()
	}); err != nil {
		return err
	}
	return env.Audit.Record(ctx, env.Clock.Now(), req.Op, req.actor(), taskID, "", nil, nil)
}

// saveSessions persists the sessions document with validation and audit.
func saveSessions(ctx context.Context, env *Env, req Request, sessions *model.SessionsFile, todo *model.TodoFile,
	sessionID string, after any) error {
	if req.DryRun {
		return nil
	}
	if err := env.Accessor.SaveSessions(ctx, sessions, func() error {
		return env.Validator.ValidateSessions(sessions, todo, env.Clock.Now()).Err()
	}); err != nil {
		return err
	}
	return env.Audit.Record(ctx, env.Clock.Now(), req.Op, req.actor(), "", sessionID, nil, after)
}
