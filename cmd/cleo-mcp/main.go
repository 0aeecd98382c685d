// cleo-mcp serves the CLEO operation surface to AI agents over the Model
// Context Protocol (JSON-RPC 2.0 on stdio). Logs go to stderr; stdout carries
// only protocol frames.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/logging"
	"github.com/dsj7419/cleo/internal/mcp"
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/ops"
	"github.com/dsj7419/cleo/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New(logging.Options{
		Verbose: os.Getenv("CLEO_MCP_DEBUG") != "",
		JSON:    true,
	})
	defer logger.Sync()

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	paths, err := config.Resolve(wd)
	if err != nil {
		return err
	}

	env, err := buildEnv(paths, logger)
	if err != nil {
		return err
	}
	defer env.Accessor.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(env, logger.Named("mcp"), os.Stdin, os.Stdout)

	// Config edits take effect without restarting the server; agents hold
	// long-lived sessions.
	go func() {
		werr := config.Watch(ctx, paths, logger.Named("config"), func(cfg config.Config) {
			fresh, berr := buildEnv(paths, logger)
			if berr != nil {
				logger.Warn("config reload failed, keeping previous environment", zap.Error(berr))
				return
			}
			srv.SwapEnv(fresh)
			logger.Info("configuration reloaded")
		})
		if werr != nil && ctx.Err() == nil {
			logger.Warn("config watcher stopped", zap.Error(werr))
		}
	}()

	logger.Info("cleo-mcp serving", zap.String("project", paths.ProjectRoot), zap.String("version", ops.Version))
	return srv.Serve(ctx)
}

func buildEnv(paths config.Paths, logger *zap.Logger) (*ops.Env, error) {
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
