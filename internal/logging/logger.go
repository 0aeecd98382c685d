// Package logging builds the project logger. The core never prints; every
// component receives a named zap sub-logger and writes structured entries to
// stderr (CLI) or the configured log sink (MCP server).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Verbose bool // debug level
	Quiet   bool // discard everything
	JSON    bool // JSON encoding instead of console
}

// New constructs the root logger. Callers derive component loggers with
// Named; the returned logger is safe for concurrent use.
func New(opts Options) *zap.Logger {
	if opts.Quiet {
		return zap.NewNop()
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Verbose {
		level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if !opts.JSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	logger, err := cfg.Build()
	if err != nil {
		// Construction only fails on bad sink paths; stderr always works.
		return zap.NewNop()
	}
	return logger
}

// Nop returns a discard logger for tests and disabled components.
func Nop() *zap.Logger { return zap.NewNop() }
