// cleo is the command-line adapter over the operation surface. Every
// subcommand builds an ops.Request, dispatches it, and renders the response
// envelope; no business logic lives here.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/logging"
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/ops"
	"github.com/dsj7419/cleo/internal/store"
)

var (
	// Global flags
	flagFormat  string
	flagHuman   bool
	flagJSON    bool
	flagQuiet   bool
	flagVerbose bool
	flagDryRun  bool
	flagNoColor bool
	flagActor   string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cleo",
	Short: "CLEO - task management for humans and coding agents",
	Long: `CLEO is a local-first task manager built for collaboration between
humans and AI coding agents. State lives in plain JSON under .cleo/;
every command is atomic, validated, and audit-logged.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.New(logging.Options{
			Verbose: flagVerbose,
			Quiet:   flagQuiet,
			JSON:    flagJSON,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagFormat, "format", "json", "output format: json or text")
	pf.BoolVar(&flagHuman, "human", false, "shorthand for --format text")
	pf.BoolVar(&flagJSON, "json", false, "force JSON output and JSON logs")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress logs")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&flagDryRun, "dry-run", false, "run without persisting")
	pf.BoolVar(&flagNoColor, "no-color", false, "disable colored text output")
	pf.StringVar(&flagActor, "actor", "", "actor recorded in the audit log")
}

// newEnv wires the operation environment for the current working directory.
func newEnv() (*ops.Env, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	paths, err := config.Resolve(wd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths)
	if err != nil {
		return nil, err
	}
	acc, err := store.Open(paths, cfg, model.SystemClock{}, logger)
	if err != nil {
		return nil, err
	}
	return ops.NewEnv(cfg, paths, acc, model.SystemClock{}, logger)
}

// runOp is the shared dispatch path: build env, run the operation, render the
// envelope, and translate failure into the stable exit code.
func runOp(op string, params map[string]any) error {
	env, err := newEnv()
	if err != nil {
		return renderFatal(err)
	}
	defer env.Accessor.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envl := ops.Dispatch(ctx, env, ops.Request{
		Op:     op,
		Actor:  flagActor,
		DryRun: flagDryRun,
		Params: params,
	})
	if err := render(envl); err != nil {
		return err
	}
	if !envl.Success {
		os.Exit(envl.Error.ExitCode)
	}
	return nil
}

// render writes the envelope to stdout in the selected format.
func render(envl ops.Envelope) error {
	if flagHuman && flagFormat == "json" {
		flagFormat = "text"
	}
	switch flagFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(envl)
	case "text":
		return renderText(os.Stdout, envl, !flagNoColor)
	default:
		return fmt.Errorf("unknown format %q (json, text)", flagFormat)
	}
}

// renderFatal reports a pre-dispatch failure in the same envelope shape so
// scripted callers never see a bare error string on stdout.
func renderFatal(err error) error {
	e := model.AsError(err)
	envl := ops.Envelope{Schema: "https://cleo.dev/schemas/response/v1", Error: e}
	if rerr := render(envl); rerr != nil {
		fmt.Fprintln(os.Stderr, e.Error())
	}
	os.Exit(e.ExitCode)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(model.ErrInvalidInput.ExitCode())
	}
}
